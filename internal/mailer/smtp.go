package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"

	gomail "gopkg.in/gomail.v2"
)

// SMTPSender sends through an SMTP relay, upgrading with STARTTLS when offered.
type SMTPSender struct {
	host string
	port int
	user string
	pass string

	// TLSConfig overrides the default config that verifies host.
	TLSConfig *tls.Config
}

// NewSMTPSender validates credentials.
func NewSMTPSender(host string, port int, user, pass string) (*SMTPSender, error) {
	if host == "" || port == 0 || user == "" || pass == "" {
		return nil, fmt.Errorf("%w: SMTP_SERVER, SMTP_PORT, SMTP_USERNAME and SMTP_PASSWORD are required", ErrNotConfigured)
	}
	return &SMTPSender{host: host, port: port, user: user, pass: pass}, nil
}

// Send delivers m over a connection bound to ctx: when ctx ends the
// connection is closed, so nothing is written after Send returns.
func (s *SMTPSender) Send(ctx context.Context, m *gomail.Message) error {
	err := gomail.Send(gomail.SendFunc(func(from string, to []string, msg io.WriterTo) error {
		return s.send(ctx, from, to, msg)
	}), m)
	if err != nil {
		// gomail flattens the cause, so report ctx explicitly
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("smtp send: %w", ctxErr)
		}
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTPSender) send(ctx context.Context, from string, to []string, msg io.WriterTo) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(s.host, strconv.Itoa(s.port)))
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if s.port == 465 {
		conn = tls.Client(conn, s.tlsConfig())
	}
	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(s.tlsConfig()); err != nil {
			return err
		}
	}
	if ok, _ := c.Extension("AUTH"); ok {
		if err := c.Auth(smtp.PlainAuth("", s.user, s.pass, s.host)); err != nil {
			return err
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, addr := range to {
		if err := c.Rcpt(addr); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := msg.WriteTo(w); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (s *SMTPSender) tlsConfig() *tls.Config {
	if s.TLSConfig != nil {
		return s.TLSConfig
	}
	return &tls.Config{ServerName: s.host}
}
