// Package mailer composes QR code emails and sends them over SMTP or the Gmail API.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	gomail "gopkg.in/gomail.v2"

	"qrattend/internal/qrimage"
	"qrattend/internal/subject"
	"qrattend/internal/token"
)

var ErrNotConfigured = errors.New("mail transport not configured")

// Sender delivers a composed message. Implementations honour ctx deadlines.
type Sender interface {
	Send(ctx context.Context, m *gomail.Message) error
}

// QRDelivery renders a subject's token for a date and mails it to them.
type QRDelivery struct {
	Codec  token.Codec
	Sender Sender
	From   string
}

// Deliver sends sub the QR code for date.
func (d *QRDelivery) Deliver(ctx context.Context, sub subject.Subject, date string) error {
	tok, err := d.Codec.Encode(sub.Name, date)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	png, err := qrimage.PNG(tok)
	if err != nil {
		return fmt.Errorf("render qr: %w", err)
	}
	return d.Sender.Send(ctx, d.compose(sub, date, png))
}

func (d *QRDelivery) compose(sub subject.Subject, date string, png []byte) *gomail.Message {
	m := gomail.NewMessage(gomail.SetCharset("UTF-8"))
	if d.From != "" {
		m.SetHeader("From", d.From)
	}
	m.SetAddressHeader("To", sub.Email, sub.Name)
	m.SetHeader("Subject", fmt.Sprintf("Attendance QR code - %s (%s)", sub.Name, date))
	m.SetBody("text/plain", body(sub.Name, date))
	m.Attach(
		fmt.Sprintf("qr_%s_%s.png", fileSafe(sub.Name), date),
		gomail.SetHeader(map[string][]string{"Content-ID": {"<qr_code>"}}),
		gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(png)
			return err
		}),
	)
	return m
}

func body(name, date string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", name)
	fmt.Fprintf(&b, "Attached is your attendance QR code for %s.\n", date)
	b.WriteString("Scan it once when you arrive and once when you leave.\n\n")
	b.WriteString("The code contains:\n")
	fmt.Fprintf(&b, "- Name: %s\n- Date: %s\n", name, date)
	return b.String()
}

func fileSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, s)
}

// LogSender writes a one-line summary instead of sending. Used in development.
type LogSender struct{}

func (LogSender) Send(_ context.Context, m *gomail.Message) error {
	log.Printf("mail (log transport): to=%v subject=%v", m.GetHeader("To"), m.GetHeader("Subject"))
	return nil
}
