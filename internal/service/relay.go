package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aosbot/portal-server-go/internal/config"
	"github.com/aosbot/portal-server-go/internal/errors"
	"github.com/aosbot/portal-server-go/internal/metrics"
)

// RelayService delivers portal messages to webhook endpoints.
type RelayService struct {
	client *http.Client
}

func NewRelayService() *RelayService {
	return &RelayService{
		client: &http.Client{
			Timeout: config.RelayTimeout,
		},
	}
}

type relayPayload struct {
	Text string `json:"text"`
}

// Send POSTs the message to the webhook URL as {"text": message}. A non-2xx
// response is turned into a delivery error carrying whatever detail the
// endpoint returned.
func (s *RelayService) Send(ctx context.Context, webhookURL string, message string) error {
	if err := validateWebhookURL(webhookURL); err != nil {
		return err
	}

	body, err := json.Marshal(relayPayload{Text: message})
	if err != nil {
		return errors.Internal("failed to encode relay payload").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return errors.Internal("failed to build relay request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	elapsed := time.Since(start)
	metrics.RelaySendDuration.Observe(elapsed.Seconds())

	if err != nil {
		log.Error().
			Err(err).
			Str("url", webhookURL).
			Dur("elapsed", elapsed).
			Msg("webhook delivery error")
		return errors.DeliveryFailed("Failed to reach webhook endpoint").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := extractErrorDetail(resp)
		log.Error().
			Str("url", webhookURL).
			Int("status", resp.StatusCode).
			Dur("elapsed", elapsed).
			Msg("webhook delivery failed")
		return errors.DeliveryFailed(detail)
	}

	log.Info().
		Str("url", webhookURL).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("webhook delivery succeeded")

	return nil
}

func validateWebhookURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return errors.ValidationError("Invalid webhook URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.ValidationError("Webhook URL must use http or https")
	}
	return nil
}

// extractErrorDetail pulls the most useful message out of a failed delivery
// response: a JSON error.message when present, otherwise the body text,
// otherwise the status code.
func extractErrorDetail(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, config.RelayMaxBodyRead))
	if err != nil || len(bytes.TrimSpace(body)) == 0 {
		return fmt.Sprintf("Request failed with status %d", resp.StatusCode)
	}

	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}

	text := strings.TrimSpace(string(body))
	if text != "" {
		return text
	}
	return fmt.Sprintf("Request failed with status %d", resp.StatusCode)
}
