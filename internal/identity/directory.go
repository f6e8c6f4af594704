package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/duelchess/internal/session"
)

// Directory looks users up in an external HTTP user service:
// GET {base}/users/{id} → {"id": "...", "name": "..."}.
type Directory struct {
	baseURL string
	http    *fasthttp.Client
	logger  *zap.Logger

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Directory)

func WithTimeout(d time.Duration) Option {
	return func(c *Directory) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

func WithRetry(max int) Option {
	return func(c *Directory) { c.retryMax = max }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Directory) { c.http.MaxConnsPerHost = n }
}

// WithDial overrides how connections are opened, e.g. for an in-memory
// listener.
func WithDial(dial func(addr string) (net.Conn, error)) Option {
	return func(c *Directory) { c.http.Dial = dial }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Directory) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewDirectory(baseURL string, opts ...Option) *Directory {
	c := &Directory{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second, MaxConnsPerHost: 64},
		logger:         zap.NewNop(),
		defaultTimeout: 3 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type userResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Lookup resolves id to a participant. Unknown ids give ErrUnknownUser.
func (c *Directory) Lookup(ctx context.Context, id string) (session.Participant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return session.Participant{}, ErrUnauthenticated
	}
	var out userResponse
	if err := c.getJSON(ctx, "/users/"+url.PathEscape(id), &out); err != nil {
		return session.Participant{}, err
	}
	if strings.TrimSpace(out.ID) == "" {
		out.ID = id
	}
	if strings.TrimSpace(out.Name) == "" {
		out.Name = out.ID
	}
	return session.Participant{ID: out.ID, Name: out.Name}, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("identity api error: status=%d body=%s", e.code, e.body)
}

func (c *Directory) getJSON(ctx context.Context, path string, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(c.baseURL + path)
	req.Header.Set("Accept", "application/json")

	attempts := c.retryMax
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err == nil {
			switch status := resp.StatusCode(); {
			case status == fasthttp.StatusNotFound:
				return ErrUnknownUser
			case status >= 200 && status < 300:
				if err := json.Unmarshal(resp.Body(), out); err != nil {
					return fmt.Errorf("decode response: %w", err)
				}
				return nil
			default:
				err = &statusError{code: status, body: truncate(string(resp.Body()), 256)}
			}
		}
		lastErr = err
		var se *statusError
		if errors.As(err, &se) && !shouldRetryStatus(se.code) {
			return err
		}
		if attempt == attempts {
			break
		}
		c.logger.Debug("identity_retry", zap.String("path", path), zap.Int("attempt", attempt), zap.Error(err))
		if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			return lastErr
		}
	}
	return fmt.Errorf("request failed: %w", lastErr)
}

func (c *Directory) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// 100ms, 200ms, 400ms ... capped at 3.2s
func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
