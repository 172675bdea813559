package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
	gomail "gopkg.in/gomail.v2"
)

// GmailSender sends through the Gmail API. Access tokens are refreshed from the
// long-lived refresh token as they expire.
type GmailSender struct {
	svc *gmail.Service
}

// NewGmailSender builds a Gmail client. ctx must outlive the sender; it backs token refreshes.
func NewGmailSender(ctx context.Context, clientID, clientSecret, refreshToken string) (*GmailSender, error) {
	if clientID == "" || clientSecret == "" || refreshToken == "" {
		return nil, fmt.Errorf("%w: GMAIL_CLIENT_ID, GMAIL_CLIENT_SECRET and GMAIL_REFRESH_TOKEN are required", ErrNotConfigured)
	}
	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailSendScope},
	}
	ts := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("gmail client: %w", err)
	}
	return &GmailSender{svc: svc}, nil
}

// Send uploads the raw MIME message.
func (s *GmailSender) Send(ctx context.Context, m *gomail.Message) error {
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return fmt.Errorf("render message: %w", err)
	}
	raw := base64.URLEncoding.EncodeToString(buf.Bytes())
	if _, err := s.svc.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gmail send: %w", err)
	}
	return nil
}
