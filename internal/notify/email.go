package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultEndpoint = "https://api.emailjs.com/api/v1.0/email/send"

// EmailRelay posts share notices to an EmailJS-compatible REST endpoint.
type EmailRelay struct {
	endpoint   string
	serviceID  string
	templateID string
	publicKey  string
	client     *http.Client
}

// EmailConfig carries the relay credentials.
type EmailConfig struct {
	Endpoint   string // defaults to the EmailJS public API
	ServiceID  string
	TemplateID string
	PublicKey  string
}

// NewEmailRelay validates config and returns a relay with a bounded client.
func NewEmailRelay(cfg EmailConfig) (*EmailRelay, error) {
	if cfg.ServiceID == "" || cfg.TemplateID == "" || cfg.PublicKey == "" {
		return nil, errors.New("notify: service id, template id and public key are required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &EmailRelay{
		endpoint:   endpoint,
		serviceID:  cfg.ServiceID,
		templateID: cfg.TemplateID,
		publicKey:  cfg.PublicKey,
		client:     &http.Client{Timeout: 10 * time.Second},
	}, nil
}

var _ Relay = (*EmailRelay)(nil)

type emailPayload struct {
	ServiceID      string            `json:"service_id"`
	TemplateID     string            `json:"template_id"`
	UserID         string            `json:"user_id"`
	TemplateParams map[string]string `json:"template_params"`
}

// Notify sends one share notice. Callers treat any error as advisory.
func (r *EmailRelay) Notify(ctx context.Context, n Notification) error {
	payload := emailPayload{
		ServiceID:  r.serviceID,
		TemplateID: r.templateID,
		UserID:     r.publicKey,
		TemplateParams: map[string]string{
			"to_email":       n.ToEmail,
			"from_name":      n.FromDisplayName,
			"password_title": n.CredentialTitle,
			"reply_to":       n.ToEmail,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: relay returned status %d", resp.StatusCode)
	}
	return nil
}
