package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"time"
)

// Reply is an outgoing results message.
type Reply struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers replies.
type Sender interface {
	Send(ctx context.Context, replies ...Reply) error
}

// SMTPSender delivers replies over one SMTP session per batch. With TLS set
// the connection is TLS from the start; otherwise STARTTLS is used when the
// server offers it.
type SMTPSender struct {
	Addr     string
	TLS      bool
	Username string
	Password string
	Timeout  time.Duration
}

// Send delivers every reply, continuing past individual failures.
func (s *SMTPSender) Send(ctx context.Context, replies ...Reply) error {
	if len(replies) == 0 {
		return nil
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	host, _, err := net.SplitHostPort(s.Addr)
	if err != nil {
		return fmt.Errorf("smtp address %q: %w", s.Addr, err)
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.Addr, err)
	}
	if s.TLS {
		tc := tls.Client(conn, &tls.Config{ServerName: host})
		if err := tc.HandshakeContext(ctx); err != nil {
			conn.Close()
			return fmt.Errorf("tls handshake with %s: %w", s.Addr, err)
		}
		conn = tc
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp greeting: %w", err)
	}
	defer c.Close()

	if !s.TLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
				return fmt.Errorf("STARTTLS: %w", err)
			}
		}
	}
	if s.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", s.Username, s.Password, host)); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	var errs []error
	for _, r := range replies {
		if err := deliver(c, r); err != nil {
			errs = append(errs, fmt.Errorf("reply to %s: %w", r.To, err))
			// Clear any half-finished transaction before the next reply.
			c.Reset()
		}
	}
	if err := c.Quit(); err != nil {
		errs = append(errs, fmt.Errorf("QUIT: %w", err))
	}
	return errors.Join(errs...)
}

func deliver(c *smtp.Client, r Reply) error {
	msg, err := buildMessage(r, time.Now())
	if err != nil {
		return err
	}
	if err := c.Mail(r.From); err != nil {
		return err
	}
	if err := c.Rcpt(r.To); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// buildMessage encodes r as a multipart/alternative message with the HTML
// part last, as the preferred alternative.
func buildMessage(r Reply, date time.Time) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	parts := []struct{ contentType, content string }{
		{"text/plain; charset=utf-8", r.Text},
		{"text/html; charset=utf-8", r.HTML},
	}
	for _, p := range parts {
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", p.contentType)
		h.Set("Content-Transfer-Encoding", "quoted-printable")
		pw, err := mw.CreatePart(h)
		if err != nil {
			return nil, err
		}
		qw := quotedprintable.NewWriter(pw)
		if _, err := qw.Write([]byte(p.content)); err != nil {
			return nil, err
		}
		if err := qw.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", r.From)
	fmt.Fprintf(&msg, "To: %s\r\n", r.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", r.Subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", date.Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n", mw.Boundary())
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}
