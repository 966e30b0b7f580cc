package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	netmail "net/mail"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/josephlewis42/magpie/internal/config"
	"github.com/josephlewis42/magpie/internal/metrics"
	"github.com/josephlewis42/magpie/internal/report"
	"github.com/josephlewis42/magpie/internal/submission"
)

// Frontend is the name recorded on documents that arrive by email.
const Frontend = "SMTP"

// Message is a raw RFC 5322 message and the id its mailbox knows it by.
type Message struct {
	UID string
	Raw []byte
}

// Mailbox holds incoming submissions. Fetch leaves messages in place; the
// poller deletes each one once it has been answered.
type Mailbox interface {
	Fetch(ctx context.Context) ([]Message, error)
	Delete(ctx context.Context, uids []string) error
}

// Submitter runs checkers on a document. *core.Magpie implements it.
type Submitter interface {
	Submit(ctx context.Context, doc *submission.Document) error
	TestNames() []string
	Config() *config.Config
}

// Poller turns mailbox messages into submissions and mails back results.
type Poller struct {
	magpie Submitter
	store  *submission.Store
	logger *zap.Logger

	mailbox func(config.Mail) Mailbox
	sender  func(config.Mail) Sender
}

// Option configures a Poller.
type Option func(*Poller)

// WithMailbox replaces the POP3 mailbox.
func WithMailbox(m Mailbox) Option {
	return func(p *Poller) { p.mailbox = func(config.Mail) Mailbox { return m } }
}

// WithSender replaces the SMTP sender.
func WithSender(s Sender) Option {
	return func(p *Poller) { p.sender = func(config.Mail) Sender { return s } }
}

// NewPoller creates a Poller. Unless overridden, the mailbox and sender are
// built from the mail configuration current at each poll.
func NewPoller(m Submitter, store *submission.Store, logger *zap.Logger, opts ...Option) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Poller{
		magpie:  m,
		store:   store,
		logger:  logger.Named("mail"),
		mailbox: popMailbox,
		sender:  smtpSender,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func popMailbox(cfg config.Mail) Mailbox {
	return &POP3Mailbox{
		Addr:     net.JoinHostPort(cfg.POPHost, strconv.Itoa(cfg.POPPort)),
		TLS:      cfg.POPTLS,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  2 * time.Minute,
	}
}

func smtpSender(cfg config.Mail) Sender {
	return &SMTPSender{
		Addr:     net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort)),
		TLS:      cfg.SMTPTLS,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  2 * time.Minute,
	}
}

// Poll fetches new mail, submits each message and replies to its sender.
// It does nothing while mail is disabled. A message is deleted from the
// mailbox once its reply is sent, or when it cannot be read at all; anything
// else stays for the next poll.
func (p *Poller) Poll(ctx context.Context) error {
	cfg := p.magpie.Config()
	if !cfg.Mail.Enabled {
		return nil
	}

	mailbox := p.mailbox(cfg.Mail)
	messages, err := mailbox.Fetch(ctx)
	if err != nil {
		metrics.RecordError("pop3")
		return fmt.Errorf("fetch mail: %w", err)
	}
	if len(messages) == 0 {
		return nil
	}
	p.logger.Info("fetched mail", zap.Int("messages", len(messages)))

	sender := p.sender(cfg.Mail)
	var done []string
	var errs []error
	for _, msg := range messages {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := p.handle(ctx, msg, cfg, sender); err != nil {
			var unreadable unreadableError
			if !errors.As(err, &unreadable) {
				errs = append(errs, err)
				continue
			}
			p.logger.Warn("skipping message", zap.String("uid", msg.UID), zap.Error(err))
			metrics.RecordError("mail")
		}
		done = append(done, msg.UID)
	}

	// Answered mail must go even when shutting down, or it is answered twice.
	if err := mailbox.Delete(context.WithoutCancel(ctx), done); err != nil {
		metrics.RecordError("pop3")
		errs = append(errs, fmt.Errorf("delete mail: %w", err))
	}
	return errors.Join(errs...)
}

// unreadableError marks a message that no later poll could process either.
type unreadableError struct{ err error }

func (e unreadableError) Error() string { return e.err.Error() }
func (e unreadableError) Unwrap() error { return e.err }

// handle submits one message and mails back its results.
func (p *Poller) handle(ctx context.Context, msg Message, cfg *config.Config, sender Sender) error {
	doc, err := p.documentFor(msg.Raw)
	if err != nil {
		return unreadableError{err}
	}
	if err := p.magpie.Submit(ctx, doc); err != nil {
		p.discard(doc)
		return err
	}
	if err := p.store.Save(doc); err != nil {
		p.logger.Warn("saving document", zap.String("document", doc.ID), zap.Error(err))
	}
	reply, err := replyFor(doc, cfg)
	if err != nil {
		return err
	}
	if err := sender.Send(ctx, reply); err != nil {
		metrics.RecordError("smtp")
		return fmt.Errorf("send reply to %s: %w", reply.To, err)
	}
	return nil
}

// discard removes the files of a document that will be submitted again.
func (p *Poller) discard(doc *submission.Document) {
	if len(doc.Files) == 0 {
		return
	}
	if err := p.store.Remove(doc.ID); err != nil {
		p.logger.Warn("removing document", zap.String("document", doc.ID), zap.Error(err))
	}
}

// documentFor parses a message into a document holding its attachments.
func (p *Poller) documentFor(raw []byte) (*submission.Document, error) {
	msg, err := netmail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	from, err := netmail.ParseAddress(msg.Header.Get("From"))
	if err != nil {
		return nil, fmt.Errorf("parse sender %q: %w", msg.Header.Get("From"), err)
	}

	subject := decodeHeader(msg.Header.Get("Subject"))
	doc := submission.New(from.Address, Frontend, testFor(subject, p.magpie.TestNames()))
	if subject != "" {
		doc.Meta["subject"] = subject
	}

	err = walkParts(msg.Header, msg.Body, func(name string, r io.Reader) error {
		if _, err := p.store.AddFile(doc, name, r); err != nil {
			p.logger.Warn("skipping attachment",
				zap.String("from", from.Address),
				zap.String("file", name),
				zap.Error(err))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read message from %s: %w", from.Address, err)
	}
	return doc, nil
}

// testFor picks the test whose name appears in subject, ignoring case. The
// longest matching name wins, so "week 10" beats "week 1".
func testFor(subject string, names []string) string {
	subject = strings.ToLower(subject)
	best := ""
	for _, name := range names {
		if name == "" || !strings.Contains(subject, strings.ToLower(name)) {
			continue
		}
		if len(name) > len(best) {
			best = name
		}
	}
	return best
}

var wordDecoder = mime.WordDecoder{}

func decodeHeader(v string) string {
	out, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return out
}

// header is the view of part headers walkParts needs.
type header interface {
	Get(key string) string
}

// walkParts calls fn for every part of a message that carries a file name,
// recursing into nested multiparts.
func walkParts(h header, body io.Reader, fn func(name string, r io.Reader) error) error {
	mediaType, params, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return fmt.Errorf("%s without boundary", mediaType)
		}
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			err = walkParts(part.Header, part, fn)
			part.Close()
			if err != nil {
				return err
			}
		}
	}

	name := fileName(h, params)
	if name == "" {
		return nil
	}
	return fn(name, decodeBody(h.Get("Content-Transfer-Encoding"), body))
}

func fileName(h header, typeParams map[string]string) string {
	if _, params, err := mime.ParseMediaType(h.Get("Content-Disposition")); err == nil {
		if name := params["filename"]; name != "" {
			return decodeHeader(name)
		}
	}
	return decodeHeader(typeParams["name"])
}

// decodeBody undoes a transfer encoding. multipart.Reader already decodes
// quoted-printable parts and drops the header, so this only sees it on
// single-part messages.
func decodeBody(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

// replyFor renders the results mail for doc.
func replyFor(doc *submission.Document, cfg *config.Config) (Reply, error) {
	opts := report.Options{
		Header: cfg.Mail.Header,
		Footer: cfg.Mail.Footer,
		Labels: cfg.Labels,
	}
	html, err := report.Page(doc, opts)
	if err != nil {
		return Reply{}, fmt.Errorf("render reply for %s: %w", doc.ID, err)
	}
	from := cfg.Mail.From
	if from == "" {
		from = cfg.Mail.Username
	}
	return Reply{
		From:    from,
		To:      doc.User,
		Subject: cfg.Mail.ReplySubject,
		Text:    report.Text(doc, opts),
		HTML:    html,
	}, nil
}
