package mail

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/smtp"
	"net/textproto"
	"regexp"
	"strings"
)

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// verifyLink matches the token segment of verification links.
var verifyLink = regexp.MustCompile(`/verify/[^\s"<>]+`)

// Send logs the recipient and subject. Verification tokens in the body are
// redacted since a logged link is a usable credential.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "email logged instead of delivered",
		"to", msg.To,
		"subject", msg.Subject,
		"body", verifyLink.ReplaceAllString(msg.TextBody, "/verify/[redacted]"),
	)
	return nil
}

// SMTPSender delivers through an SMTP relay.
type SMTPSender struct {
	addr string
	from string
	auth smtp.Auth
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender uses PLAIN auth when username is set.
func NewSMTPSender(addr, from, username, password string) *SMTPSender {
	var auth smtp.Auth
	if username != "" {
		host := addr
		if i := strings.LastIndex(addr, ":"); i >= 0 {
			host = addr[:i]
		}
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPSender{addr: addr, from: from, auth: auth, send: smtp.SendMail}
}

func (s *SMTPSender) Send(_ context.Context, msg Message) error {
	raw, err := buildMIME(s.from, msg)
	if err != nil {
		return err
	}
	if err := s.send(s.addr, s.auth, s.from, []string{msg.To}, raw); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

func buildMIME(from string, msg Message) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	for _, part := range []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=UTF-8", msg.TextBody},
		{"text/html; charset=UTF-8", msg.HTMLBody},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {part.contentType}})
		if err != nil {
			return nil, fmt.Errorf("mime part: %w", err)
		}
		if _, err := w.Write([]byte(part.content)); err != nil {
			return nil, fmt.Errorf("mime part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("mime close: %w", err)
	}

	var out bytes.Buffer
	header := http.Header{}
	header.Set("From", from)
	header.Set("To", msg.To)
	header.Set("Subject", msg.Subject)
	header.Set("MIME-Version", "1.0")
	header.Set("Content-Type", "multipart/alternative; boundary="+mw.Boundary())
	if err := header.Write(&out); err != nil {
		return nil, fmt.Errorf("mime header: %w", err)
	}
	out.WriteString("\r\n")
	out.Write(body.Bytes())
	return out.Bytes(), nil
}
