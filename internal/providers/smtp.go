package providers

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"outreach_gateway/internal/transport"
)

const (
	KindSMTP = "smtp"

	smtpDefaultPort    = 587
	smtpDefaultTimeout = 30 * time.Second
)

// SMTPProvider delivers over SMTP with STARTTLS when offered. Options:
// host (required), port, username (defaults to the sender address) and
// insecure_skip_verify.
type SMTPProvider struct {
	host               string
	port               int
	username           string
	password           Secret
	from               *mail.Address
	insecureSkipVerify bool
	timeout            time.Duration
}

// NewSMTP creates an SMTP client. The transport client is unused: SMTP
// sessions are not retried.
func NewSMTP(cfg Config, _ *transport.Client) (EmailProvider, error) {
	from, err := parseSender(cfg)
	if err != nil {
		return nil, err
	}

	host := cfg.Option("host")
	if host == "" {
		return nil, fmt.Errorf("%w: smtp host is required", ErrInvalidRequest)
	}

	port := smtpDefaultPort
	switch v := cfg.Options["port"].(type) {
	case float64:
		port = int(v)
	case int:
		port = v
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			port = n
		}
	}

	username := cfg.Option("username")
	if username == "" && cfg.APIKey != "" {
		username = from.Address
	}

	skip, _ := cfg.Options["insecure_skip_verify"].(bool)

	return &SMTPProvider{
		host:               host,
		port:               port,
		username:           username,
		password:           cfg.APIKey,
		from:               from,
		insecureSkipVerify: skip,
		timeout:            smtpDefaultTimeout,
	}, nil
}

func (p *SMTPProvider) Kind() string { return KindSMTP }

// Send delivers one message
func (p *SMTPProvider) Send(ctx context.Context, msg Email) (*SendResult, error) {
	if err := validateEmail(msg); err != nil {
		return nil, err
	}
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return nil, fmt.Errorf("%w: bad recipient %q", ErrInvalidRequest, msg.To)
	}

	messageID := newMessageID(p.from.Address)
	data, err := buildMIME(p.from, to, msg, messageID)
	if err != nil {
		return nil, fmt.Errorf("smtp send: %w", err)
	}

	if err := p.deliver(ctx, to.Address, data); err != nil {
		return nil, fmt.Errorf("smtp send: %w", err)
	}
	return &SendResult{MessageID: messageID}, nil
}

func (p *SMTPProvider) deliver(ctx context.Context, rcpt string, data []byte) error {
	addr := net.JoinHostPort(p.host, strconv.Itoa(p.port))

	dialer := net.Dialer{Timeout: p.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	deadline := time.Now().Add(p.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	// net/smtp has no context support; closing the connection unblocks it.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, p.host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		tlsConfig := &tls.Config{ServerName: p.host, InsecureSkipVerify: p.insecureSkipVerify}
		if err := c.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if p.username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", p.username, p.password.Reveal(), p.host)); err != nil {
				return fmt.Errorf("auth: %w", err)
			}
		}
	}

	if err := c.Mail(p.from.Address); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(rcpt); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("data: %w", err)
	}

	return c.Quit()
}

func newMessageID(from string) string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	domain := "localhost"
	if at := strings.LastIndexByte(from, '@'); at >= 0 {
		domain = from[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", hex.EncodeToString(b), domain)
}

type mimePart struct {
	contentType string
	body        string
}

func buildMIME(from, to *mail.Address, msg Email, messageID string) ([]byte, error) {
	var buf bytes.Buffer

	header := textproto.MIMEHeader{}
	header.Set("From", from.String())
	header.Set("To", to.String())
	header.Set("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header.Set("Date", time.Now().Format(time.RFC1123Z))
	header.Set("Message-ID", messageID)
	header.Set("MIME-Version", "1.0")
	if msg.ReplyTo != "" {
		header.Set("Reply-To", msg.ReplyTo)
	}

	var parts []mimePart
	if msg.Text != "" {
		parts = append(parts, mimePart{"text/plain; charset=utf-8", msg.Text})
	}
	if msg.HTML != "" {
		parts = append(parts, mimePart{"text/html; charset=utf-8", msg.HTML})
	}

	if len(parts) == 1 {
		header.Set("Content-Type", parts[0].contentType)
		header.Set("Content-Transfer-Encoding", "quoted-printable")
		writeHeader(&buf, header)
		if err := writeQP(&buf, parts[0].body); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, part := range parts {
		ph := textproto.MIMEHeader{}
		ph.Set("Content-Type", part.contentType)
		ph.Set("Content-Transfer-Encoding", "quoted-printable")
		pw, err := mw.CreatePart(ph)
		if err != nil {
			return nil, err
		}
		if err := writeQP(pw, part.body); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	header.Set("Content-Type", "multipart/alternative; boundary="+mw.Boundary())
	writeHeader(&buf, header)
	buf.Write(body.Bytes())
	return buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, header textproto.MIMEHeader) {
	for _, k := range []string{"From", "To", "Reply-To", "Subject", "Date", "Message-ID", "MIME-Version", "Content-Type", "Content-Transfer-Encoding"} {
		if v := header.Get(k); v != "" {
			fmt.Fprintf(buf, "%s: %s\r\n", k, v)
		}
	}
	buf.WriteString("\r\n")
}

func writeQP(w io.Writer, s string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(s)); err != nil {
		return err
	}
	return qp.Close()
}
