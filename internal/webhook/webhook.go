package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/logging"
	"github.com/therealutkarshpriyadarshi/coursedub/pkg/models"
)

// SignatureHeader carries the HMAC-SHA256 of the request body
const SignatureHeader = "X-Dubbing-Signature"

// Webhook errors
var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
)

// generateSignature generates HMAC-SHA256 signature for webhook payload
func generateSignature(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// Verifier checks signatures on callbacks posted by the dubbing service
type Verifier struct {
	secret string
}

// NewVerifier creates a verifier. A verifier without a secret rejects every
// callback.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Sign returns the signature header value for payload
func (v *Verifier) Sign(payload []byte) string {
	return generateSignature(payload, v.secret)
}

// Verify checks signature against payload in constant time
func (v *Verifier) Verify(payload []byte, signature string) error {
	if signature == "" {
		return ErrMissingSignature
	}
	if v.secret == "" {
		return ErrInvalidSignature
	}
	if !hmac.Equal([]byte(strings.TrimSpace(signature)), []byte(generateSignature(payload, v.secret))) {
		return ErrInvalidSignature
	}
	return nil
}

// DecodeCallback parses a dubbing service callback body
func DecodeCallback(body []byte) (*models.DubbingCallback, error) {
	var cb models.DubbingCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if cb.JobHandle == "" || cb.State == "" {
		return nil, fmt.Errorf("%w: job_handle and state are required", ErrInvalidPayload)
	}
	return &cb, nil
}

// Service delivers dub job events to the callback URL a submitter registered
type Service struct {
	client *http.Client
	secret string
	logger *logging.Logger
}

// NewService creates a new webhook delivery service
func NewService(secret string, timeout time.Duration, logger *logging.Logger) *Service {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		client: &http.Client{
			Timeout: timeout,
		},
		secret: secret,
		logger: logger,
	}
}

// Deliver posts event to url. Non-2xx responses are errors so the caller's
// retry policy can take over.
func (s *Service) Deliver(ctx context.Context, url string, event *models.DubJobEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	deliveryID := uuid.New().String()

	// Set headers
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Coursedub-Webhook/1.0")
	req.Header.Set("X-Webhook-Event", event.Event)
	req.Header.Set("X-Webhook-Delivery", deliveryID)

	// Add HMAC signature if secret is configured
	if s.secret != "" {
		req.Header.Set(SignatureHeader, generateSignature(payload, s.secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	s.logger.WithJobID(event.JobID).WithField("delivery_id", deliveryID).Debug("Webhook delivered")
	return nil
}
