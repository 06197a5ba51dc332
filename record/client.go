// Package record talks to the Heidi open API. Used as the fallback path
// when the web document is not available for direct injection, and by the
// calibration tooling to verify credentials.
package record

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/zkkken/heidi/types"
)

// Config configures the client.
type Config struct {
	BaseURL        string
	APIKey         string
	AuthEmail      string
	AuthInternalID int
	Timeout        time.Duration
	RetryCount     int
	// TokenExpiryMargin forces re-authentication when the JWT has less
	// than this much lifetime left.
	TokenExpiryMargin time.Duration
}

// Metrics receives per-request outcomes. Satisfied by the internal
// metrics collector; nil disables observation.
type Metrics interface {
	RecordAPIRequest(status string)
}

// Client is the Heidi API client. Single-threaded like the rest of the
// pipeline; no internal locking.
type Client struct {
	cfg     Config
	client  *http.Client
	logger  *zap.Logger
	metrics Metrics

	token       string
	tokenExpiry time.Time

	now func() time.Time
}

// NewClient creates a client. Authentication is lazy: the first request
// exchanges the API key for a JWT.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("record api base url is required")
	}
	if cfg.APIKey == "" {
		return nil, types.NewError(types.ErrAuthentication, "record api key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if cfg.TokenExpiryMargin <= 0 {
		cfg.TokenExpiryMargin = time.Minute
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(zap.String("component", "record")),
		now:    time.Now,
	}, nil
}

// SetMetrics attaches a request-outcome observer.
func (c *Client) SetMetrics(m Metrics) {
	c.metrics = m
}

// EnsureToken authenticates if the cached JWT is absent or close to expiry.
func (c *Client) EnsureToken(ctx context.Context) error {
	if c.token != "" && c.now().Add(c.cfg.TokenExpiryMargin).Before(c.tokenExpiry) {
		return nil
	}
	return c.authenticate(ctx)
}

// authenticate exchanges the shared API key for a JWT.
func (c *Client) authenticate(ctx context.Context) error {
	q := url.Values{}
	q.Set("email", c.cfg.AuthEmail)
	q.Set("third_party_internal_id", strconv.Itoa(c.cfg.AuthInternalID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/jwt?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build auth request: %w", err)
	}
	req.Header.Set("Heidi-Api-Key", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return types.NewError(types.ErrTimeout, "auth request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return types.NewError(types.ErrAuthentication,
			fmt.Sprintf("jwt exchange returned status %d: %s", resp.StatusCode, string(body)))
	}

	var parsed struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || parsed.Token == "" {
		return types.NewError(types.ErrAuthentication, "jwt exchange returned no token").WithCause(err)
	}

	c.token = parsed.Token
	c.tokenExpiry = tokenExpiry(parsed.Token, c.now())
	c.logger.Info("authenticated", zap.Time("token_expiry", c.tokenExpiry))
	return nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// server signed the token, we only need its lifetime. Unparseable tokens
// get a conservative short lifetime.
func tokenExpiry(token string, now time.Time) time.Time {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err == nil {
		if exp, err := parsed.Claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return now.Add(5 * time.Minute)
}

// Session is a Heidi documentation session.
type Session struct {
	ID string `json:"session_id"`
}

// CreateSession opens a new documentation session.
func (c *Client) CreateSession(ctx context.Context) (*Session, error) {
	var session Session
	if err := c.do(ctx, http.MethodPost, "/sessions", nil, &session); err != nil {
		return nil, err
	}
	if session.ID == "" {
		return nil, types.NewError(types.ErrUpstreamError, "session create returned no id")
	}
	c.logger.Info("session created", zap.String("session_id", session.ID))
	return &session, nil
}

// patientBody is the wire shape for patient details.
type patientBody struct {
	Patient struct {
		Name         string `json:"name"`
		Gender       string `json:"gender"`
		DOB          string `json:"dob"`
		EHRPatientID string `json:"ehr_patient_id,omitempty"`
	} `json:"patient"`
}

// AddPatient attaches validated patient details to a session.
func (c *Client) AddPatient(ctx context.Context, sessionID string, record *types.PatientRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	var body patientBody
	body.Patient.Name = record.FirstName + " " + record.LastName
	body.Patient.Gender = record.Gender
	body.Patient.DOB = record.BirthDate
	body.Patient.EHRPatientID = record.EHRPatientID

	return c.do(ctx, http.MethodPatch, "/sessions/"+sessionID, body, nil)
}

// SendRecord delivers a patient record: opens a documentation session and
// attaches the details to it. Returns the session ID.
func (c *Client) SendRecord(ctx context.Context, record *types.PatientRecord) (string, error) {
	session, err := c.CreateSession(ctx)
	if err != nil {
		return "", err
	}
	if err := c.AddPatient(ctx, session.ID, record); err != nil {
		return "", err
	}
	c.logger.Info("record sent", zap.String("session_id", session.ID))
	return session.ID, nil
}

// do issues one authenticated request with the configured retry count.
// Retries are plain repeats; the budget is configuration, the policy is
// deliberately simple.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.RetryCount; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.EnsureToken(ctx); err != nil {
			return err
		}
		lastErr = c.doOnce(ctx, method, path, body, out)
		c.observe(lastErr)
		if lastErr == nil {
			return nil
		}
		// a rejected token is stale, not fatal: re-auth and retry
		if types.IsCode(lastErr, types.ErrAuthentication) {
			c.token = ""
		}
		c.logger.Warn("record api request failed",
			zap.String("path", path),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr))
	}
	return lastErr
}

// observe reports one request outcome to the metrics hook.
func (c *Client) observe(err error) {
	if c.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		if code := types.GetErrorCode(err); code != "" {
			status = strings.ToLower(string(code))
		} else {
			status = "error"
		}
	}
	c.metrics.RecordAPIRequest(status)
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return types.NewError(types.ErrTimeout, "request failed").WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return types.NewError(types.ErrAuthentication,
			fmt.Sprintf("token rejected (status %d)", resp.StatusCode)).WithRetryable(true)
	case resp.StatusCode >= 500:
		return types.NewError(types.ErrUpstreamError,
			fmt.Sprintf("server error (status %d)", resp.StatusCode)).WithRetryable(true)
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(resp.Body)
		return types.NewError(types.ErrUpstreamError,
			fmt.Sprintf("request rejected (status %d): %s", resp.StatusCode, string(data)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return types.NewError(types.ErrUpstreamError, "malformed response body").WithCause(err)
		}
	}
	return nil
}
