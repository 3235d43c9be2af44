package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"vibe/internal/config"
)

// Provider endpoints used when a sink does not override them.
const (
	// ResendEndpoint is the Resend send-email API.
	ResendEndpoint = "https://api.resend.com/emails"
	// SendGridEndpoint is the SendGrid v3 mail send API.
	SendGridEndpoint = "https://api.sendgrid.com/v3/mail/send"
	// TwilioBaseURL is the Twilio REST API root; messages go to /Accounts/<sid>/Messages.json.
	TwilioBaseURL = "https://api.twilio.com/2010-04-01"

	consoleNote = "Email service not configured. Recommendation logged to console."
)

// Sink delivers a recommendation to the site owner.
type Sink interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// SelectSink picks the delivery channel once from configuration:
// Resend, then SendGrid, then Twilio SMS, then the log.
func SelectSink(cfg config.RecommendConfig, httpClient *http.Client) Sink {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	switch {
	case cfg.ResendAPIKey != "":
		return &ResendSink{
			APIKey:     cfg.ResendAPIKey,
			From:       cfg.FromEmail,
			To:         cfg.ToEmail,
			Endpoint:   ResendEndpoint,
			HTTPClient: httpClient,
		}
	case cfg.SendGridAPIKey != "":
		return &SendGridSink{
			APIKey:     cfg.SendGridAPIKey,
			From:       cfg.FromEmail,
			To:         cfg.ToEmail,
			Endpoint:   SendGridEndpoint,
			HTTPClient: httpClient,
		}
	case cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "":
		return &TwilioSink{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			From:       cfg.TwilioFromNumber,
			To:         cfg.ToPhoneNumber,
			BaseURL:    TwilioBaseURL,
			HTTPClient: httpClient,
		}
	default:
		return ConsoleSink{}
	}
}

// ResendSink sends the recommendation as a plain-text email through Resend.
type ResendSink struct {
	APIKey     string
	From       string
	To         string
	Endpoint   string
	HTTPClient *http.Client
}

func (s *ResendSink) Name() string { return "resend" }

// Send emails msg through Resend.
func (s *ResendSink) Send(ctx context.Context, msg Message) error {
	payload := map[string]string{
		"from":    s.From,
		"to":      s.To,
		"subject": msg.Subject,
		"text":    msg.Body,
	}
	return postJSON(ctx, s.HTTPClient, s.Name(), s.Endpoint, s.APIKey, payload)
}

// SendGridSink sends the recommendation as a plain-text email through SendGrid.
type SendGridSink struct {
	APIKey     string
	From       string
	To         string
	Endpoint   string
	HTTPClient *http.Client
}

func (s *SendGridSink) Name() string { return "sendgrid" }

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridMail struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Content          []sendGridContent         `json:"content"`
}

type sendGridPersonalization struct {
	To      []sendGridAddress `json:"to"`
	Subject string            `json:"subject"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Send emails msg through SendGrid.
func (s *SendGridSink) Send(ctx context.Context, msg Message) error {
	payload := sendGridMail{
		Personalizations: []sendGridPersonalization{{
			To:      []sendGridAddress{{Email: s.To}},
			Subject: msg.Subject,
		}},
		From:    sendGridAddress{Email: s.From, Name: "Portfolio Recommendations"},
		Content: []sendGridContent{{Type: "text/plain", Value: msg.Body}},
	}
	return postJSON(ctx, s.HTTPClient, s.Name(), s.Endpoint, s.APIKey, payload)
}

// TwilioSink sends a short SMS through Twilio.
type TwilioSink struct {
	AccountSID string
	AuthToken  string
	From       string
	To         string
	BaseURL    string
	HTTPClient *http.Client
}

func (s *TwilioSink) Name() string { return "twilio" }

// Send texts msg.SMS through Twilio.
func (s *TwilioSink) Send(ctx context.Context, msg Message) error {
	form := url.Values{
		"To":   {s.To},
		"From": {s.From},
		"Body": {msg.SMS},
	}
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", strings.TrimRight(s.BaseURL, "/"), url.PathEscape(s.AccountSID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(s.AccountSID, s.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return do(s.HTTPClient, req, s.Name())
}

// ConsoleSink only logs the recommendation.
type ConsoleSink struct{}

func (ConsoleSink) Name() string { return "console" }

// Send logs msg and never fails.
func (ConsoleSink) Send(_ context.Context, msg Message) error {
	logrus.WithFields(logrus.Fields{
		"name":           msg.Rec.Name,
		"type":           msg.Rec.Type,
		"recommendation": msg.Rec.Text,
		"message":        msg.Rec.Message,
	}).Info("new recommendation")
	return nil
}

// Note tells the visitor that nothing was actually delivered.
func (ConsoleSink) Note() string { return consoleNote }

func postJSON(ctx context.Context, client *http.Client, name, endpoint, apiKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	return do(client, req, name)
}

func do(client *http.Client, req *http.Request, name string) error {
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.WithError(err).Warn("failed to close notification response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: unexpected status %d: %s", name, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
