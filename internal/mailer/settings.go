package mailer

import (
	"context"
	"fmt"
)

// Transport names accepted by NewSender.
const (
	TransportLog   = "log"
	TransportSMTP  = "smtp"
	TransportGmail = "gmail"
)

// Settings selects and configures a transport.
type Settings struct {
	Transport         string
	SMTPHost          string
	SMTPPort          int
	SMTPUser          string
	SMTPPass          string
	GmailClientID     string
	GmailClientSecret string
	GmailRefreshToken string
}

// NewSender builds the configured transport.
func NewSender(ctx context.Context, s Settings) (Sender, error) {
	switch s.Transport {
	case "", TransportLog:
		return LogSender{}, nil
	case TransportSMTP:
		return NewSMTPSender(s.SMTPHost, s.SMTPPort, s.SMTPUser, s.SMTPPass)
	case TransportGmail:
		return NewGmailSender(ctx, s.GmailClientID, s.GmailClientSecret, s.GmailRefreshToken)
	}
	return nil, fmt.Errorf("unknown mail transport %q", s.Transport)
}
