package output

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/michiel/ratchet-sub007/internal/config"
	"github.com/michiel/ratchet-sub007/internal/domain"
	"github.com/michiel/ratchet-sub007/internal/errs"
	"github.com/michiel/ratchet-sub007/internal/logger"
)

// WebhookDelivery POSTs (or otherwise requests) rendered output to a
// templated URL, retrying on the configured status codes with jittered
// exponential backoff. Grounded on infrastructure/retry/retry.go's
// exponential-backoff loop shape, adapted from a generic retry(fn) into a
// delivery-specific loop that also needs the HTTP response status to decide
// retry eligibility.
type WebhookDelivery struct {
	cfg    config.OutputConfig
	tpl    *TemplateEngine
	client *http.Client
	log    logger.Logger
}

func NewWebhookDelivery(cfg config.OutputConfig, log logger.Logger) *WebhookDelivery {
	return &WebhookDelivery{
		cfg: cfg,
		tpl: NewTemplateEngine(),
		client: &http.Client{
			Timeout: cfg.WebhookTimeout,
		},
		log: log,
	}
}

func (d *WebhookDelivery) Deliver(ctx context.Context, dest domain.WebhookDestination, output json.RawMessage, variables map[string]string) error {
	url, err := d.tpl.Render(dest.URLTemplate, variables)
	if err != nil {
		return errs.Validation("render webhook url template: %v", err)
	}

	body, err := d.renderBody(dest, output, variables)
	if err != nil {
		return errs.Validation("render webhook body: %v", err)
	}

	policy := dest.RetryPolicy
	if policy.MaxAttempts == 0 {
		policy = domain.DefaultRetryPolicy()
	}
	method := dest.Method
	if method == "" {
		method = http.MethodPost
	}

	var lastErr error
	delay := policy.InitialDelay
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errs.Cancelled("webhook delivery cancelled: %v", err)
		}

		status, retryAfter, respErr := d.attempt(ctx, method, url, dest, body)
		if respErr == nil {
			return nil
		}
		lastErr = respErr

		if status != 0 && !retryableStatus(policy.RetryOnStatus, status) {
			return errs.Network(lastErr, "webhook delivery to %s failed (status %d), not retryable", url, status)
		}
		if attempt == policy.MaxAttempts {
			break
		}

		wait := delay
		if policy.Jitter {
			wait = jitter(delay)
		}
		if status == http.StatusTooManyRequests && retryAfter > 0 {
			wait = retryAfter
		}
		select {
		case <-ctx.Done():
			return errs.Cancelled("webhook delivery cancelled during backoff: %v", ctx.Err())
		case <-time.After(wait):
		}
		delay = time.Duration(float64(delay) * policy.BackoffMultiplier)
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return errs.Network(lastErr, "webhook delivery to %s exhausted %d attempts", url, policy.MaxAttempts)
}

// attempt sends one HTTP request and reports the response status (0 if the
// request never produced a response at all, e.g. a connection or timeout
// error), the delay a 429 response's Retry-After header requests (0 if
// absent or unparsable), and an error for any non-2xx or transport failure.
func (d *WebhookDelivery) attempt(ctx context.Context, method, url string, dest domain.WebhookDestination, body []byte) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	for k, v := range dest.Headers {
		req.Header.Set(k, v)
	}
	if dest.ContentType != "" {
		req.Header.Set("Content-Type", dest.ContentType)
	} else if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if dest.Auth != nil {
		if err := applyAuth(req, *dest.Auth, method, url, body); err != nil {
			return 0, 0, err
		}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, 0, nil
	}
	var retryAfter time.Duration
	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return resp.StatusCode, retryAfter, fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
}

// parseRetryAfter reads a Retry-After header as either a delay in seconds or
// an HTTP-date, returning 0 if empty or unparsable in either form.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func (d *WebhookDelivery) renderBody(dest domain.WebhookDestination, output json.RawMessage, variables map[string]string) ([]byte, error) {
	if len(output) == 0 {
		return []byte("{}"), nil
	}
	return output, nil
}

func retryableStatus(retryOn []int, status int) bool {
	for _, s := range retryOn {
		if s == status {
			return true
		}
	}
	return false
}

// jitter applies ±20% jitter: a random duration in [0.8*d, 1.2*d].
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	spread := float64(d) * 0.4
	offset := rand.Float64()*spread - spread/2
	return time.Duration(float64(d) + offset)
}

func applyAuth(req *http.Request, auth domain.WebhookAuth, method, url string, body []byte) error {
	switch auth.Kind {
	case domain.AuthNone:
		return nil
	case domain.AuthBearer:
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	case domain.AuthBasic:
		req.SetBasicAuth(auth.Username, auth.Password)
	case domain.AuthAPIKey:
		header := auth.HeaderName
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, auth.Token)
	case domain.AuthSignature:
		sig, err := signRequest(auth, method, req.URL.Path, body)
		if err != nil {
			return err
		}
		req.Header.Set("X-Signature", sig)
	default:
		return fmt.Errorf("unknown webhook auth kind %q", auth.Kind)
	}
	return nil
}

// signRequest computes an HMAC over "method\npath\nbody", matching the
// scheme name (signature) rather than a bearer/basic credential: it proves
// the request wasn't tampered with in transit, not who sent it.
func signRequest(auth domain.WebhookAuth, method, path string, body []byte) (string, error) {
	var mac hash.Hash
	switch auth.Algorithm {
	case "sha-512":
		mac = hmac.New(sha512.New, []byte(auth.Secret))
	case "", "sha-256":
		mac = hmac.New(sha256.New, []byte(auth.Secret))
	default:
		return "", fmt.Errorf("unknown signature algorithm %q", auth.Algorithm)
	}
	payload := method + "\n" + path + "\n"
	mac.Write([]byte(payload))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil)), nil
}
