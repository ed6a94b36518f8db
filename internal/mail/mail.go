// Package mail lists and sends a user's Gmail messages using the access token
// kept by the token manager.
package mail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/pysugar/roleplay-nexus/internal/logging"
)

const (
	maxListResults = 10
	noSubject      = "(No Subject)"
)

var metadataHeaders = []string{"Subject", "From", "Date"}

var ErrInvalidRecipient = errors.New("invalid recipient")

// AccessTokens yields a currently valid Google access token for a user.
type AccessTokens interface {
	GetValidAccessToken(ctx context.Context, userID uint) (string, error)
}

// Summary is the list view of one message.
type Summary struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	From    string `json:"from"`
	Date    string `json:"date"`
	Snippet string `json:"snippet"`
}

type Service struct {
	tokens AccessTokens
	opts   []option.ClientOption
}

// NewService creates a mail service. opts are passed to every Gmail client,
// after the per-user authenticated HTTP client.
func NewService(tokens AccessTokens, opts ...option.ClientOption) *Service {
	return &Service{tokens: tokens, opts: opts}
}

func (s *Service) client(ctx context.Context, userID uint) (*gmail.Service, error) {
	access, err := s.tokens.GetValidAccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: access,
		TokenType:   "Bearer",
	}))
	opts := append([]option.ClientOption{option.WithHTTPClient(hc)}, s.opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail client: %w", err)
	}
	return svc, nil
}

// ListByLead returns up to ten messages sent from or to leadEmail.
func (s *Service) ListByLead(ctx context.Context, userID uint, leadEmail string) ([]Summary, error) {
	svc, err := s.client(ctx, userID)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("from:%s OR to:%s", leadEmail, leadEmail)
	resp, err := svc.Users.Messages.List("me").Q(query).MaxResults(maxListResults).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	summaries := make([]Summary, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		full, err := svc.Users.Messages.Get("me", m.Id).
			Format("metadata").
			MetadataHeaders(metadataHeaders...).
			Context(ctx).
			Do()
		if err != nil {
			return nil, fmt.Errorf("get message %s: %w", m.Id, err)
		}
		summaries = append(summaries, summarize(m.Id, full))
	}

	logging.FromContext(ctx).Info("listed gmail messages", "user_id", userID, "count", len(summaries))
	return summaries, nil
}

func summarize(id string, msg *gmail.Message) Summary {
	headers := make(map[string]string, len(metadataHeaders))
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			headers[h.Name] = h.Value
		}
	}
	subject, ok := headers["Subject"]
	if !ok {
		subject = noSubject
	}
	return Summary{
		ID:      id,
		Subject: subject,
		From:    headers["From"],
		Date:    headers["Date"],
		Snippet: msg.Snippet,
	}
}

// Send delivers an HTML message from the user's mailbox.
func (s *Service) Send(ctx context.Context, userID uint, to, subject, body string) error {
	if strings.ContainsAny(to, "\r\n") {
		return ErrInvalidRecipient
	}
	svc, err := s.client(ctx, userID)
	if err != nil {
		return err
	}

	_, err = svc.Users.Messages.Send("me", &gmail.Message{Raw: EncodeRaw(to, subject, body)}).Context(ctx).Do()
	if err != nil {
		logging.FromContext(ctx).Error("gmail send failed", "user_id", userID, "error", err)
		return fmt.Errorf("send message: %w", err)
	}
	logging.FromContext(ctx).Info("gmail message sent", "user_id", userID)
	return nil
}

// EncodeRaw builds the RFC 2822 message and encodes it as unpadded base64url.
func EncodeRaw(to, subject, body string) string {
	subject = strings.NewReplacer("\r", " ", "\n", " ").Replace(subject)

	var b strings.Builder
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	return base64.RawURLEncoding.EncodeToString([]byte(b.String()))
}
