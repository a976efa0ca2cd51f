package otp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Sender delivers a code to a phone.
type Sender interface {
	Send(ctx context.Context, phone, code string) error
}

// LogSender writes the delivery to the log instead of an SMS gateway.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, phone, code string) error {
	s.logger.Info().Str("phone", maskPhone(phone)).Msg("otp delivered to log sender")
	return nil
}

// WebhookSender posts the code to an SMS gateway webhook.
type WebhookSender struct {
	url    string
	client *http.Client
}

// NewWebhookSender returns nil when url is empty.
func NewWebhookSender(url string) *WebhookSender {
	if url == "" {
		return nil
	}
	return &WebhookSender{url: url, client: &http.Client{Timeout: 5 * time.Second}}
}

func (s *WebhookSender) Send(ctx context.Context, phone, code string) error {
	body, err := json.Marshal(map[string]string{
		"to":      phone,
		"message": fmt.Sprintf("Your CityWatch verification code is %s", code),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms webhook returned %d", resp.StatusCode)
	}
	return nil
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return "******" + phone[len(phone)-4:]
}
