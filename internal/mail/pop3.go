// Package mail is the email front-end: it polls a POP3 mailbox for
// submissions and replies to each sender with their results over SMTP.
package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

// POP3Client speaks the subset of RFC 1939 needed to drain a mailbox.
type POP3Client struct {
	conn net.Conn
	tp   *textproto.Conn
}

// DialPOP3 connects to addr, wrapping the connection in TLS when tlsConfig
// is non-nil, and reads the server greeting.
func DialPOP3(ctx context.Context, addr string, tlsConfig *tls.Config) (*POP3Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if tlsConfig != nil {
		tc := tls.Client(conn, tlsConfig)
		if err := tc.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("tls handshake with %s: %w", addr, err)
		}
		conn = tc
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	c, err := NewPOP3Client(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// NewPOP3Client wraps an established connection and reads the greeting.
func NewPOP3Client(conn net.Conn) (*POP3Client, error) {
	c := &POP3Client{conn: conn, tp: textproto.NewConn(conn)}
	line, err := c.tp.ReadLine()
	if err != nil {
		return nil, fmt.Errorf("read greeting: %w", err)
	}
	if _, err := parseStatus(line); err != nil {
		return nil, fmt.Errorf("greeting: %w", err)
	}
	return c, nil
}

func parseStatus(line string) (string, error) {
	switch {
	case strings.HasPrefix(line, "+OK"):
		return strings.TrimSpace(line[3:]), nil
	case strings.HasPrefix(line, "-ERR"):
		return "", fmt.Errorf("pop3: %s", strings.TrimSpace(line[4:]))
	default:
		return "", fmt.Errorf("pop3: unexpected response %q", line)
	}
}

// cmd sends a command and returns the text after +OK.
func (c *POP3Client) cmd(format string, args ...any) (string, error) {
	id, err := c.tp.Cmd(format, args...)
	if err != nil {
		return "", err
	}
	c.tp.StartResponse(id)
	defer c.tp.EndResponse(id)
	line, err := c.tp.ReadLine()
	if err != nil {
		return "", err
	}
	return parseStatus(line)
}

// multiline sends a command whose +OK reply is followed by a dot-terminated
// block and returns the unstuffed block.
func (c *POP3Client) multiline(format string, args ...any) ([]byte, error) {
	id, err := c.tp.Cmd(format, args...)
	if err != nil {
		return nil, err
	}
	c.tp.StartResponse(id)
	defer c.tp.EndResponse(id)
	line, err := c.tp.ReadLine()
	if err != nil {
		return nil, err
	}
	if _, err := parseStatus(line); err != nil {
		return nil, err
	}
	return c.tp.ReadDotBytes()
}

// Auth logs in with USER and PASS.
func (c *POP3Client) Auth(username, password string) error {
	if _, err := c.cmd("USER %s", username); err != nil {
		return fmt.Errorf("USER: %w", err)
	}
	if _, err := c.cmd("PASS %s", password); err != nil {
		return fmt.Errorf("PASS: %w", err)
	}
	return nil
}

// Stat returns the message count and mailbox size in octets.
func (c *POP3Client) Stat() (count, size int, err error) {
	resp, err := c.cmd("STAT")
	if err != nil {
		return 0, 0, fmt.Errorf("STAT: %w", err)
	}
	if _, err := fmt.Sscanf(resp, "%d %d", &count, &size); err != nil {
		return 0, 0, fmt.Errorf("STAT: malformed response %q", resp)
	}
	return count, size, nil
}

// List returns the numbers of the messages in the mailbox.
func (c *POP3Client) List() ([]int, error) {
	block, err := c.multiline("LIST")
	if err != nil {
		return nil, fmt.Errorf("LIST: %w", err)
	}
	var ids []int
	for _, line := range strings.Split(string(block), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("LIST: malformed line %q", line)
		}
		ids = append(ids, n)
	}
	return ids, nil
}

// Listing identifies a message: its number in this session and its
// unique id, which stays the same across sessions.
type Listing struct {
	N   int
	UID string
}

// Uidl returns the unique id of every message in the mailbox.
func (c *POP3Client) Uidl() ([]Listing, error) {
	block, err := c.multiline("UIDL")
	if err != nil {
		return nil, fmt.Errorf("UIDL: %w", err)
	}
	var out []Listing
	for _, line := range strings.Split(string(block), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil || len(fields) < 2 {
			return nil, fmt.Errorf("UIDL: malformed line %q", line)
		}
		out = append(out, Listing{N: n, UID: fields[1]})
	}
	return out, nil
}

// Retr returns the raw message n.
func (c *POP3Client) Retr(n int) ([]byte, error) {
	msg, err := c.multiline("RETR %d", n)
	if err != nil {
		return nil, fmt.Errorf("RETR %d: %w", n, err)
	}
	return msg, nil
}

// Dele marks message n for deletion when the session ends with Quit.
func (c *POP3Client) Dele(n int) error {
	if _, err := c.cmd("DELE %d", n); err != nil {
		return fmt.Errorf("DELE %d: %w", n, err)
	}
	return nil
}

// Quit commits deletions and closes the connection.
func (c *POP3Client) Quit() error {
	_, err := c.cmd("QUIT")
	c.tp.Close()
	if err != nil {
		return fmt.Errorf("QUIT: %w", err)
	}
	return nil
}

// Close drops the connection without committing deletions.
func (c *POP3Client) Close() error {
	return c.tp.Close()
}

// POP3Mailbox reads submissions from a POP3 server. Messages stay on the
// server until Delete is called with their UIDs.
type POP3Mailbox struct {
	Addr     string
	TLS      bool
	Username string
	Password string
	Timeout  time.Duration
}

// session runs fn in an authenticated session. Deletions marked by fn are
// committed only when it succeeds.
func (m *POP3Mailbox) session(ctx context.Context, fn func(c *POP3Client) error) error {
	if m.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.Timeout)
		defer cancel()
	}

	var tlsConfig *tls.Config
	if m.TLS {
		host, _, err := net.SplitHostPort(m.Addr)
		if err != nil {
			return fmt.Errorf("pop3 address %q: %w", m.Addr, err)
		}
		tlsConfig = &tls.Config{ServerName: host}
	}

	c, err := DialPOP3(ctx, m.Addr, tlsConfig)
	if err != nil {
		return err
	}
	if err := c.Auth(m.Username, m.Password); err != nil {
		c.Close()
		return err
	}
	if err := fn(c); err != nil {
		c.Close()
		return err
	}
	return c.Quit()
}

// listings identifies every message. Servers without UIDL fall back to
// message numbers, which only stay valid while nothing else deletes mail.
func listings(c *POP3Client) ([]Listing, error) {
	out, err := c.Uidl()
	if err == nil {
		return out, nil
	}
	ids, listErr := c.List()
	if listErr != nil {
		return nil, errors.Join(err, listErr)
	}
	out = make([]Listing, len(ids))
	for i, n := range ids {
		out[i] = Listing{N: n, UID: strconv.Itoa(n)}
	}
	return out, nil
}

// Fetch retrieves every message without deleting any.
func (m *POP3Mailbox) Fetch(ctx context.Context) ([]Message, error) {
	var messages []Message
	err := m.session(ctx, func(c *POP3Client) error {
		count, _, err := c.Stat()
		if err != nil || count == 0 {
			return err
		}
		list, err := listings(c)
		if err != nil {
			return err
		}
		for _, l := range list {
			raw, err := c.Retr(l.N)
			if err != nil {
				return err
			}
			messages = append(messages, Message{UID: l.UID, Raw: raw})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Delete removes the messages with the given UIDs. UIDs no longer on the
// server are ignored.
func (m *POP3Mailbox) Delete(ctx context.Context, uids []string) error {
	if len(uids) == 0 {
		return nil
	}
	want := make(map[string]bool, len(uids))
	for _, uid := range uids {
		want[uid] = true
	}
	return m.session(ctx, func(c *POP3Client) error {
		list, err := listings(c)
		if err != nil {
			return err
		}
		for _, l := range list {
			if !want[l.UID] {
				continue
			}
			if err := c.Dele(l.N); err != nil {
				return err
			}
		}
		return nil
	})
}
