// Package botgate verifies reCAPTCHA challenge tokens before credential
// operations.
package botgate

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/identity-service/config"
	"github.com/duynhne/identity-service/middleware"
)

// DefaultVerifyURL is Google's siteverify endpoint.
const DefaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

// Policy is the explicit verification policy of a Gate.
type Policy struct {
	Required   bool
	SecretKey  string
	Production bool
	VerifyURL  string
	Timeout    time.Duration
}

// PolicyFromConfig builds a Policy from service configuration.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		Required:   cfg.Recaptcha.Required,
		SecretKey:  cfg.Recaptcha.SecretKey,
		Production: cfg.IsProduction(),
		VerifyURL:  cfg.Recaptcha.VerifyURL,
		Timeout:    cfg.GetRecaptchaTimeoutDuration(),
	}
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	Score      float64  `json:"score"`
	Action     string   `json:"action"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

// Gate decides whether a request carries a valid challenge token.
type Gate struct {
	policy Policy
	client *http.Client
}

// New creates a Gate. A nil client gets one bounded by policy.Timeout.
func New(policy Policy, client *http.Client) *Gate {
	if policy.VerifyURL == "" {
		policy.VerifyURL = DefaultVerifyURL
	}
	if policy.Timeout <= 0 {
		policy.Timeout = 5 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: policy.Timeout}
	}
	return &Gate{policy: policy, client: client}
}

// Verify reports whether token passes the policy. Every failure is a false
// verdict, never an error.
func (g *Gate) Verify(ctx context.Context, token string) bool {
	if !g.policy.Required {
		return true
	}

	ctx, span := middleware.StartSpan(ctx, "botgate.verify", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	if token == "" {
		span.SetAttributes(attribute.String("botgate.result", "missing_token"))
		return false
	}

	if g.policy.SecretKey == "" {
		if g.policy.Production {
			log.Error().Msg("RECAPTCHA_SECRET_KEY missing in production, rejecting challenge")
			span.SetAttributes(attribute.String("botgate.result", "no_secret"))
			return false
		}
		log.Warn().Msg("RECAPTCHA_SECRET_KEY not set, skipping verification outside production")
		span.SetAttributes(attribute.String("botgate.result", "skipped"))
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, g.policy.Timeout)
	defer cancel()

	form := url.Values{}
	form.Set("secret", g.policy.SecretKey)
	form.Set("response", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.policy.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		span.RecordError(err)
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		span.RecordError(err)
		log.Warn().Err(err).Msg("reCAPTCHA verification request failed")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		log.Warn().Int("status", resp.StatusCode).Msg("reCAPTCHA verification returned non-2xx")
		return false
	}

	var body verifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err != nil {
		span.RecordError(err)
		return false
	}

	span.SetAttributes(attribute.Bool("botgate.success", body.Success))
	if !body.Success {
		log.Debug().Strs("error_codes", body.ErrorCodes).Msg("reCAPTCHA rejected token")
	}
	return body.Success
}
