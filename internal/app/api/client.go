// internal/app/api/client.go

// Package api is the HTTP client for the membership backend.
//
// Identity-critical calls (exchange, register, sign-in) run behind a
// circuit breaker so a failing backend trips fast instead of stalling
// the onboarding flow; the idempotent verification-status check retries
// with exponential backoff instead.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/memberlink/memberlink/internal/domain/models"
)

var (
	// ErrInvalidCode is returned when the backend rejects an OTP.
	ErrInvalidCode = errors.New("api: invalid verification code")
	// ErrUnauthorized is returned on 401 responses.
	ErrUnauthorized = errors.New("api: unauthorized")
)

// Client talks to the membership backend.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

// NewClient creates a backend client rooted at baseURL (e.g.
// "https://api.example.org/api").
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	settings := gobreaker.Settings{
		Name:        "backend",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		log:     logger,
	}
}

// ExchangeExternal trades a third-party identity assertion for a backend
// session, reporting whether the principal is newly created.
func (c *Client) ExchangeExternal(ctx context.Context, id ExternalIdentity) (ExchangeResult, error) {
	var out ExchangeResult
	if err := c.postGuarded(ctx, "/auth/external", "", id, &out); err != nil {
		return ExchangeResult{}, err
	}
	if out.Token == "" {
		return ExchangeResult{}, errors.New("api: exchange response missing token")
	}
	return out, nil
}

// VerifyOTP checks a one-time code for phone. A rejected code returns
// ErrInvalidCode; transport failures return other errors.
func (c *Client) VerifyOTP(ctx context.Context, phone, code string) error {
	body := map[string]string{"phone": phone, "code": code}
	err := c.post(ctx, "/auth/otp/verify", "", body, nil)
	if errors.Is(err, ErrUnauthorized) {
		return ErrInvalidCode
	}
	return err
}

// VerificationStatus asks the identity provider whether the pending
// principal's email has been confirmed. Transient failures are retried
// with exponential backoff within ctx.
func (c *Client) VerificationStatus(ctx context.Context, token string) (bool, error) {
	var out verificationStatusResponse

	op := func() error {
		err := c.get(ctx, "/auth/verification-status", token, &out)
		var se *statusError
		if errors.As(err, &se) && se.code >= 400 && se.code < 500 && se.code != http.StatusTooManyRequests {
			// A definitive backend answer, such as a revoked session;
			// retrying cannot change it.
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 10 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return false, err
	}
	return out.Verified, nil
}

// ResendVerification asks the provider to re-send the confirmation email.
func (c *Client) ResendVerification(ctx context.Context, token string) error {
	return c.post(ctx, "/auth/verification/resend", token, nil, nil)
}

// Register creates the principal from the completed wizard state.
func (c *Client) Register(ctx context.Context, req RegistrationRequest) (AuthResult, error) {
	var out AuthResult
	if err := c.postGuarded(ctx, "/auth/register", "", req, &out); err != nil {
		return AuthResult{}, err
	}
	if out.Token == "" {
		return AuthResult{}, errors.New("api: registration response missing token")
	}
	return out, nil
}

// Login performs password sign-in for a returning principal.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResult, error) {
	body := map[string]string{"email": email, "password": password}
	var out AuthResult
	if err := c.postGuarded(ctx, "/auth/login", "", body, &out); err != nil {
		return AuthResult{}, err
	}
	if out.Token == "" {
		return AuthResult{}, errors.New("api: login response missing token")
	}
	return out, nil
}

// UpdateProfile edits the signed-in principal's profile and returns the
// stored result.
func (c *Client) UpdateProfile(ctx context.Context, token string, req ProfileUpdateRequest) (models.UserProfile, error) {
	var out models.UserProfile
	if err := c.post(ctx, "/me/profile", token, req, &out); err != nil {
		return models.UserProfile{}, err
	}
	return out, nil
}

// SignOut invalidates the pending or active session server-side. Failures
// are the caller's to classify; local sign-out proceeds regardless.
func (c *Client) SignOut(ctx context.Context, token string) error {
	return c.post(ctx, "/auth/signout", token, nil, nil)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Transport helpers                                                            |
*─────────────────────────────────────────────────────────────────────────────*/

// statusError reports a non-2xx response with the backend's message.
type statusError struct {
	code    int
	message string
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *statusError) Is(target error) bool {
	return target == ErrUnauthorized && e.code == http.StatusUnauthorized
}

func (e *statusError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("api: %s (status %d)", e.message, e.code)
	}
	return fmt.Sprintf("api: unexpected status %d", e.code)
}

// postGuarded runs a POST through the circuit breaker.
func (c *Client) postGuarded(ctx context.Context, path, token string, body, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.post(ctx, path, token, body, out)
	})
	return err
}

func (c *Client) post(ctx context.Context, path, token string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode request: %w", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, token, out)
}

func (c *Client) get(ctx context.Context, path, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	return c.do(req, token, out)
}

func (c *Client) do(req *http.Request, token string, out any) error {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &statusError{code: resp.StatusCode}
		var envelope apiError
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil {
			se.message = envelope.Message
		}
		if resp.StatusCode == http.StatusUnauthorized {
			c.log.Debug("unauthorized backend response", zap.String("path", req.URL.Path))
		}
		return se
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}
