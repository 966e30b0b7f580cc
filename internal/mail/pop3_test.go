package mail

import (
	"context"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePOP3 serves a fixed mailbox to one client at a time. Without uids it
// behaves like a server that does not support UIDL.
type fakePOP3 struct {
	ln       net.Listener
	password string
	messages []string
	uids     []string

	mu       sync.Mutex
	deleted  []int
	quit     bool
	commands []string
}

func newFakePOP3(t *testing.T, password string, messages ...string) *fakePOP3 {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakePOP3{ln: ln, password: password, messages: messages}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakePOP3) addr() string { return s.ln.Addr().String() }

func (s *fakePOP3) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.handle(textproto.NewConn(conn))
	}
}

func (s *fakePOP3) handle(tp *textproto.Conn) {
	defer tp.Close()
	tp.PrintfLine("+OK fake pop3 ready")
	var pending []int
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		verb, arg, _ := strings.Cut(line, " ")
		n, _ := strconv.Atoi(arg)
		s.mu.Lock()
		s.commands = append(s.commands, strings.ToUpper(verb))
		s.mu.Unlock()
		switch strings.ToUpper(verb) {
		case "USER":
			tp.PrintfLine("+OK")
		case "PASS":
			if arg != s.password {
				tp.PrintfLine("-ERR invalid password")
				continue
			}
			tp.PrintfLine("+OK logged in")
		case "STAT":
			size := 0
			for _, m := range s.messages {
				size += len(m)
			}
			tp.PrintfLine("+OK %d %d", len(s.messages), size)
		case "LIST":
			tp.PrintfLine("+OK %d messages", len(s.messages))
			w := tp.DotWriter()
			for i, m := range s.messages {
				w.Write([]byte(strconv.Itoa(i+1) + " " + strconv.Itoa(len(m)) + "\n"))
			}
			w.Close()
		case "UIDL":
			if s.uids == nil {
				tp.PrintfLine("-ERR unknown command")
				continue
			}
			tp.PrintfLine("+OK")
			w := tp.DotWriter()
			for i, uid := range s.uids {
				w.Write([]byte(strconv.Itoa(i+1) + " " + uid + "\n"))
			}
			w.Close()
		case "RETR":
			if n < 1 || n > len(s.messages) {
				tp.PrintfLine("-ERR no such message")
				continue
			}
			tp.PrintfLine("+OK")
			w := tp.DotWriter()
			w.Write([]byte(s.messages[n-1]))
			w.Close()
		case "DELE":
			pending = append(pending, n)
			tp.PrintfLine("+OK marked")
		case "QUIT":
			s.mu.Lock()
			s.deleted = append(s.deleted, pending...)
			s.quit = true
			s.mu.Unlock()
			tp.PrintfLine("+OK bye")
			return
		default:
			tp.PrintfLine("-ERR unknown command")
		}
	}
}

func (s *fakePOP3) state() (deleted []int, quit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.deleted...), s.quit
}

func (s *fakePOP3) sent(command string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.commands {
		if c == command {
			return true
		}
	}
	return false
}

func TestPOP3Client_Session(t *testing.T) {
	srv := newFakePOP3(t, "secret", "Subject: one\n\nfirst\n", "Subject: two\n\n.dotted line\n")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := DialPOP3(ctx, srv.addr(), nil)
	require.NoError(t, err)
	require.NoError(t, c.Auth("magpie", "secret"))

	count, size, err := c.Stat()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Positive(t, size)

	ids, err := c.List()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ids)

	msg, err := c.Retr(2)
	require.NoError(t, err)
	assert.Equal(t, "Subject: two\n\n.dotted line\n", string(msg))

	_, err = c.Retr(9)
	assert.ErrorContains(t, err, "no such message")

	require.NoError(t, c.Dele(1))
	require.NoError(t, c.Quit())

	deleted, quit := srv.state()
	assert.True(t, quit)
	assert.Equal(t, []int{1}, deleted)
}

func TestPOP3Client_BadPassword(t *testing.T) {
	srv := newFakePOP3(t, "secret")
	c, err := DialPOP3(context.Background(), srv.addr(), nil)
	require.NoError(t, err)
	defer c.Close()

	err = c.Auth("magpie", "wrong")
	assert.ErrorContains(t, err, "invalid password")
}

func TestPOP3Client_Uidl(t *testing.T) {
	srv := newFakePOP3(t, "pw", "Subject: a\n\nA\n", "Subject: b\n\nB\n")
	srv.uids = []string{"uid-a", "uid-b"}
	c, err := DialPOP3(context.Background(), srv.addr(), nil)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Auth("u", "pw"))

	list, err := c.Uidl()
	require.NoError(t, err)
	assert.Equal(t, []Listing{{N: 1, UID: "uid-a"}, {N: 2, UID: "uid-b"}}, list)
}

func TestPOP3Mailbox_FetchLeavesMail(t *testing.T) {
	srv := newFakePOP3(t, "pw", "Subject: a\n\nA\n", "Subject: b\n\nB\n")
	srv.uids = []string{"uid-a", "uid-b"}
	mb := &POP3Mailbox{Addr: srv.addr(), Username: "u", Password: "pw", Timeout: 5 * time.Second}

	msgs, err := mb.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, Message{UID: "uid-a", Raw: []byte("Subject: a\n\nA\n")}, msgs[0])
	assert.Equal(t, "uid-b", msgs[1].UID)

	deleted, quit := srv.state()
	assert.True(t, quit)
	assert.Empty(t, deleted)
}

func TestPOP3Mailbox_DeleteByUID(t *testing.T) {
	srv := newFakePOP3(t, "pw", "Subject: a\n\nA\n", "Subject: b\n\nB\n", "Subject: c\n\nC\n")
	srv.uids = []string{"uid-a", "uid-b", "uid-c"}
	mb := &POP3Mailbox{Addr: srv.addr(), Username: "u", Password: "pw", Timeout: 5 * time.Second}

	require.NoError(t, mb.Delete(context.Background(), []string{"uid-c", "uid-a", "gone"}))

	deleted, quit := srv.state()
	assert.True(t, quit)
	assert.ElementsMatch(t, []int{1, 3}, deleted)
}

func TestPOP3Mailbox_FallsBackToMessageNumbers(t *testing.T) {
	srv := newFakePOP3(t, "pw", "Subject: a\n\nA\n", "Subject: b\n\nB\n")
	mb := &POP3Mailbox{Addr: srv.addr(), Username: "u", Password: "pw", Timeout: 5 * time.Second}

	msgs, err := mb.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "2", msgs[1].UID)

	require.NoError(t, mb.Delete(context.Background(), []string{msgs[1].UID}))
	deleted, _ := srv.state()
	assert.Equal(t, []int{2}, deleted)
}

func TestPOP3Mailbox_EmptyMailboxSkipsListing(t *testing.T) {
	srv := newFakePOP3(t, "pw")
	mb := &POP3Mailbox{Addr: srv.addr(), Username: "u", Password: "pw", Timeout: 5 * time.Second}

	msgs, err := mb.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.True(t, srv.sent("STAT"))
	assert.False(t, srv.sent("UIDL"))
	assert.False(t, srv.sent("LIST"))
}

func TestPOP3Mailbox_AuthFailureDeletesNothing(t *testing.T) {
	srv := newFakePOP3(t, "pw", "Subject: a\n\nA\n")
	mb := &POP3Mailbox{Addr: srv.addr(), Username: "u", Password: "nope", Timeout: 5 * time.Second}

	err := mb.Delete(context.Background(), []string{"1"})
	require.Error(t, err)

	deleted, _ := srv.state()
	assert.Empty(t, deleted)
}

func TestParseStatus(t *testing.T) {
	got, err := parseStatus("+OK 2 320")
	require.NoError(t, err)
	assert.Equal(t, "2 320", got)

	_, err = parseStatus("-ERR locked")
	assert.EqualError(t, err, "pop3: locked")

	_, err = parseStatus("* garbage")
	assert.Error(t, err)
}
