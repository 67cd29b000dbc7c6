package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"asso-manager/internal/config"

	"github.com/wneessen/go-mail"
)

// NewMailer picks the transport from configuration:
// Brevo when an API key is set, SMTP when a host is set, log-only otherwise.
func NewMailer(cfg config.MailConfig, logger *slog.Logger) (Mailer, error) {
	switch {
	case cfg.BrevoAPIKey != "":
		return NewBrevoMailer(cfg, &http.Client{Timeout: cfg.Timeout}), nil
	case cfg.SMTPHost != "":
		return NewSMTPMailer(cfg)
	}
	return NewLogMailer(logger), nil
}

// ============================================================
// Brevo transactional API
// ============================================================

// BrevoMailer sends through Brevo's transactional email endpoint
type BrevoMailer struct {
	apiKey      string
	baseURL     string
	senderName  string
	senderEmail string
	client      *http.Client
}

type brevoContact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type brevoRequest struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
}

// NewBrevoMailer creates a Brevo mailer
func NewBrevoMailer(cfg config.MailConfig, client *http.Client) *BrevoMailer {
	if client == nil {
		client = http.DefaultClient
	}
	return &BrevoMailer{
		apiKey:      cfg.BrevoAPIKey,
		baseURL:     strings.TrimRight(cfg.BrevoBaseURL, "/"),
		senderName:  cfg.SenderName,
		senderEmail: cfg.SenderEmail,
		client:      client,
	}
}

func (m *BrevoMailer) Name() string { return "brevo" }

// Send posts the message to /smtp/email
func (m *BrevoMailer) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(brevoRequest{
		Sender:      brevoContact{Name: m.senderName, Email: m.senderEmail},
		To:          []brevoContact{{Name: msg.ToName, Email: msg.To}},
		Subject:     msg.Subject,
		HTMLContent: msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("brevo: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/smtp/email", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("brevo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("brevo: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// ============================================================
// SMTP
// ============================================================

// SMTPMailer sends through an SMTP relay
type SMTPMailer struct {
	client    *mail.Client
	fromName  string
	fromEmail string
}

// NewSMTPMailer creates an SMTP mailer. Authentication is only enabled with a user.
func NewSMTPMailer(cfg config.MailConfig) (*SMTPMailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(cfg.Timeout),
	}
	if cfg.SMTPUser != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUser),
			mail.WithPassword(cfg.SMTPPassword),
		)
	}

	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp: create client: %w", err)
	}

	return &SMTPMailer{
		client:    client,
		fromName:  cfg.SenderName,
		fromEmail: cfg.SenderEmail,
	}, nil
}

func (m *SMTPMailer) Name() string { return "smtp" }

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	mm := mail.NewMsg()
	if err := mm.FromFormat(m.fromName, m.fromEmail); err != nil {
		return fmt.Errorf("smtp: sender: %w", err)
	}

	var err error
	if msg.ToName != "" {
		err = mm.AddToFormat(msg.ToName, msg.To)
	} else {
		err = mm.To(msg.To)
	}
	if err != nil {
		return fmt.Errorf("smtp: recipient: %w", err)
	}

	mm.Subject(msg.Subject)
	mm.SetBodyString(mail.TypeTextHTML, msg.HTML)

	if err := m.client.DialAndSendWithContext(ctx, mm); err != nil {
		return fmt.Errorf("smtp: %w", err)
	}
	return nil
}

// ============================================================
// Simulation
// ============================================================

// LogMailer only logs messages. Used when no transport is configured.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Name() string { return "log" }

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.InfoContext(ctx, "📧 mail simulated",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}
