// Package remote is a client for the upstream expense REST API.
//
// The API authenticates with a bearer token obtained from /auth/login and
// owns the expense records. Analytics only reads them; the write and
// profile calls cover the rest of the API surface.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"ledgerlens/internal/ingest"
	"ledgerlens/internal/snapshot"
)

// ErrNoCredentials is returned when a call needs a token and none is set.
var ErrNoCredentials = errors.New("remote: no token and no login credentials")

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

type (
	// ExpenseInput is the body of create and update calls.
	ExpenseInput struct {
		Title       string `json:"title"`
		Amount      string `json:"amount"`
		Date        string `json:"date"`
		Category    string `json:"category"`
		Description string `json:"description,omitempty"`
	}

	Profile struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Bio   string `json:"bio,omitempty"`
	}

	loginResponse struct {
		Token   string          `json:"token"`
		User    json.RawMessage `json:"user,omitempty"`
		Message string          `json:"message,omitempty"`
	}

	listResponse struct {
		Expenses []ingest.RawExpense `json:"expenses"`
	}
)

type Config struct {
	BaseURL  string
	Token    string
	Email    string
	Password string
	Timeout  time.Duration
	// MaxRetries bounds retries of idempotent calls on 5xx, 429 and
	// transport errors.
	MaxRetries int
}

type Client struct {
	baseURL    *url.URL
	http       *http.Client
	email      string
	password   string
	maxRetries int
	now        func() time.Time

	mu    sync.RWMutex
	token string
}

var _ snapshot.Source = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("remote: missing base URL")
	}
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote: unsupported scheme %q", u.Scheme)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &Client{
		baseURL:    u,
		http:       &http.Client{Timeout: timeout},
		email:      cfg.Email,
		password:   cfg.Password,
		maxRetries: retries,
		now:        time.Now,
		token:      cfg.Token,
	}, nil
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login exchanges credentials for a bearer token and keeps it for later
// calls.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var out loginResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &out, false, false); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if out.Token == "" {
		return "", errors.New("login: response without token")
	}
	c.mu.Lock()
	c.token = out.Token
	c.mu.Unlock()
	return out.Token, nil
}

// ListExpenses returns the raw expense records of the authenticated user.
func (c *Client) ListExpenses(ctx context.Context) ([]ingest.RawExpense, error) {
	var out listResponse
	if err := c.authed(ctx, http.MethodGet, "/expenses", nil, &out, true); err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	if out.Expenses == nil {
		return []ingest.RawExpense{}, nil
	}
	return out.Expenses, nil
}

// Load implements snapshot.Source.
func (c *Client) Load(ctx context.Context) (snapshot.Snapshot, error) {
	raws, err := c.ListExpenses(ctx)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	res := ingest.Normalize(raws)
	if len(res.Issues) > 0 {
		slog.WarnContext(ctx, "Rejected upstream expenses",
			"issues", len(res.Issues),
			"accepted", len(res.Expenses))
	}
	return snapshot.New(res, c.now()), nil
}

func (c *Client) CreateExpense(ctx context.Context, in ExpenseInput) error {
	if err := c.authed(ctx, http.MethodPost, "/expenses/create", in, nil, false); err != nil {
		return fmt.Errorf("create expense: %w", err)
	}
	return nil
}

func (c *Client) UpdateExpense(ctx context.Context, id string, in ExpenseInput) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("update expense: missing id")
	}
	if err := c.authed(ctx, http.MethodPut, "/expenses/"+url.PathEscape(id), in, nil, true); err != nil {
		return fmt.Errorf("update expense %s: %w", id, err)
	}
	return nil
}

func (c *Client) DeleteExpense(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("delete expense: missing id")
	}
	if err := c.authed(ctx, http.MethodDelete, "/expenses/"+url.PathEscape(id), nil, nil, true); err != nil {
		return fmt.Errorf("delete expense %s: %w", id, err)
	}
	return nil
}

func (c *Client) Profile(ctx context.Context) (Profile, error) {
	var p Profile
	if err := c.authed(ctx, http.MethodGet, "/auth/view-profile", nil, &p, true); err != nil {
		return Profile{}, fmt.Errorf("view profile: %w", err)
	}
	return p, nil
}

func (c *Client) UpdateProfile(ctx context.Context, p Profile) error {
	if err := c.authed(ctx, http.MethodPut, "/auth/update-profile", p, nil, true); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// authed runs a call with the bearer token, logging in first when only
// credentials are configured and once more after a 401.
func (c *Client) authed(ctx context.Context, method, path string, in, out any, idempotent bool) error {
	if c.Token() == "" {
		if err := c.relogin(ctx); err != nil {
			return err
		}
	}
	err := c.do(ctx, method, path, in, out, true, idempotent)
	if IsUnauthorized(err) && c.email != "" {
		if lerr := c.relogin(ctx); lerr != nil {
			return lerr
		}
		err = c.do(ctx, method, path, in, out, true, idempotent)
	}
	return err
}

func (c *Client) relogin(ctx context.Context) error {
	if c.email == "" || c.password == "" {
		return ErrNoCredentials
	}
	_, err := c.Login(ctx, c.email, c.password)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, auth, idempotent bool) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		payload = b
	}
	target := c.baseURL.String() + path

	operation := func() error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if auth {
			req.Header.Set("Authorization", "Bearer "+c.Token())
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			apiErr := &APIError{StatusCode: resp.StatusCode, Method: method, Path: path, Message: errorMessage(resp.Body)}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}

	retries := 0
	if idempotent {
		retries = c.maxRetries
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx))
}

// errorMessage extracts {"message": "..."} from an error body, falling back
// to the trimmed text.
func errorMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	var m struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(b, &m) == nil {
		if m.Message != "" {
			return m.Message
		}
		if m.Error != "" {
			return m.Error
		}
	}
	return strings.TrimSpace(string(b))
}
