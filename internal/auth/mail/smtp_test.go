package mail

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeSMTP accepts one session and records the envelope and data.
type fakeSMTP struct {
	ln net.Listener

	mu   sync.Mutex
	from string
	rcpt string
	data string
	done chan struct{}
}

func startFakeSMTP(t *testing.T) *fakeSMTP {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeSMTP{ln: ln, done: make(chan struct{})}
	t.Cleanup(func() { _ = ln.Close() })

	go s.serve()
	return s
}

func (s *fakeSMTP) serve() {
	defer close(s.done)

	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	reply := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }

	reply("220 localhost ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		cmd := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250 localhost")
		case strings.HasPrefix(cmd, "MAIL FROM:"):
			s.mu.Lock()
			s.from = strings.Trim(line[len("MAIL FROM:"):], "<> ")
			s.mu.Unlock()
			reply("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			s.mu.Lock()
			s.rcpt = strings.Trim(line[len("RCPT TO:"):], "<> ")
			s.mu.Unlock()
			reply("250 OK")
		case cmd == "DATA":
			reply("354 go ahead")
			var b strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				b.WriteString(l)
			}
			s.mu.Lock()
			s.data = b.String()
			s.mu.Unlock()
			reply("250 OK queued")
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("250 OK")
		}
	}
}

func TestSMTPSender_Send(t *testing.T) {
	t.Parallel()

	srv := startFakeSMTP(t)
	addr := srv.ln.Addr().(*net.TCPAddr)

	sender := NewSMTPSender(SMTPConfig{
		Host:    "127.0.0.1",
		Port:    addr.Port,
		From:    "noreply@gatehouse.test",
		Timeout: 5 * time.Second,
	})

	err := sender.Send(context.Background(), Email{
		To:      "alice@example.com",
		Subject: "Your One-Time Passcode",
		Text:    "code 123456",
		HTML:    "<p>code 123456</p>",
	})
	require.NoError(t, err)

	select {
	case <-srv.done:
	case <-time.After(5 * time.Second):
		t.Fatal("smtp session did not finish")
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	require.Equal(t, "noreply@gatehouse.test", srv.from)
	require.Equal(t, "alice@example.com", srv.rcpt)
	require.Contains(t, srv.data, "Subject: Your One-Time Passcode")
	require.Contains(t, srv.data, "multipart/alternative")
	require.Contains(t, srv.data, "code 123456")
	require.Contains(t, srv.data, "<p>code 123456</p>")
}

func TestSMTPSender_DialError(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	sender := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: port, From: "a@b.c", Timeout: time.Second})
	require.Error(t, sender.Send(context.Background(), Email{To: "x@y.z"}))
}

func TestBuildMessage(t *testing.T) {
	t.Parallel()

	raw, err := buildMessage("from@test", Email{To: "to@test", Subject: "Héllo", Text: "t", HTML: "<b>h</b>"}, time.Unix(0, 0))
	require.NoError(t, err)

	msg := string(raw)
	require.Contains(t, msg, "From: from@test\r\n")
	require.Contains(t, msg, "To: to@test\r\n")
	require.Contains(t, msg, "Subject: =?utf-8?q?H=C3=A9llo?=\r\n")
	require.Contains(t, msg, "Content-Type: text/plain; charset=utf-8")
	require.Contains(t, msg, "Content-Type: text/html; charset=utf-8")
}
