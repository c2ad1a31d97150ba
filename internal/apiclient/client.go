// Package apiclient is a fasthttp client for the connect4d JSON API.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/akshatjain2002sept/connect-4-multi/pkg/c4dto"
)

// HeaderProvider allows injecting per-request headers
type HeaderProvider func() map[string]string

type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider
	token   string

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx reply. Domain carries the decoded error body when
// the server sent one.
type APIError struct {
	Status int
	Domain c4dto.DomainError
	Body   string
}

func (e *APIError) Error() string {
	if e.Domain.Code != "" {
		return fmt.Sprintf("connect4 api error: status=%d code=%s: %s", e.Status, e.Domain.Code, e.Domain.Message)
	}
	return fmt.Sprintf("connect4 api error: status=%d body=%s", e.Status, e.Body)
}

// Code returns the domain error code of err, or "" when err is not an
// APIError.
func Code(err error) string {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Domain.Code
	}
	return ""
}

// Health reports the server's dependency checks. A degraded server replies
// 503 with the same body, which is returned together with an error.
func (c *Client) Health(ctx context.Context) (*c4dto.Health, error) {
	var h c4dto.Health
	err := c.doJSON(ctx, fasthttp.MethodGet, "/healthz", nil, &h, true)
	var ae *APIError
	if errors.As(err, &ae) && ae.Status == fasthttp.StatusServiceUnavailable {
		if jerr := json.Unmarshal([]byte(ae.Body), &h); jerr == nil {
			return &h, err
		}
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) Me(ctx context.Context) (*c4dto.User, error) {
	var u c4dto.User
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/me", nil, &u, true); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) Leaderboard(ctx context.Context, limit int) ([]c4dto.LeaderboardEntry, error) {
	path := "/api/leaderboard"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp c4dto.LeaderboardResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

func (c *Client) CreateGame(ctx context.Context) (*c4dto.Game, error) {
	var g c4dto.Game
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/games", nil, &g, false); err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *Client) JoinGame(ctx context.Context, code string) (*c4dto.Game, error) {
	var g c4dto.Game
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/games/join", c4dto.JoinRequest{Code: code}, &g, false); err != nil {
		return nil, err
	}
	return &g, nil
}

// CurrentGame returns nil when the caller has no open game.
func (c *Client) CurrentGame(ctx context.Context) (*c4dto.Game, error) {
	var env c4dto.GameEnvelope
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/games/current", nil, &env, true); err != nil {
		return nil, err
	}
	return env.Game, nil
}

func (c *Client) Game(ctx context.Context, publicID string) (*c4dto.Game, error) {
	var g c4dto.Game
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/games/"+url.PathEscape(publicID), nil, &g, true); err != nil {
		return nil, err
	}
	return &g, nil
}

// BoardPNG fetches the rendered board image.
func (c *Client) BoardPNG(ctx context.Context, publicID string) ([]byte, error) {
	return c.do(ctx, fasthttp.MethodGet, "/api/games/"+url.PathEscape(publicID)+"/board.png", nil, true)
}

// Move is never retried; a retryable move_conflict has to be re-read and
// re-decided by the caller.
func (c *Client) Move(ctx context.Context, gameID string, column int) (*c4dto.MoveResponse, error) {
	var resp c4dto.MoveResponse
	req := c4dto.MoveRequest{Column: &column}
	if err := c.doJSON(ctx, fasthttp.MethodPost, gamePath(gameID, "moves"), req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ClaimAbandoned(ctx context.Context, gameID string) (*c4dto.Game, error) {
	return c.gameAction(ctx, gameID, "claim-abandoned")
}

func (c *Client) Resign(ctx context.Context, gameID string) (*c4dto.Game, error) {
	return c.gameAction(ctx, gameID, "resign")
}

func (c *Client) Cancel(ctx context.Context, gameID string) error {
	return c.doJSON(ctx, fasthttp.MethodPost, gamePath(gameID, "cancel"), nil, nil, false)
}

func (c *Client) Rematch(ctx context.Context, gameID string) (*c4dto.RematchResponse, error) {
	var resp c4dto.RematchResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, gamePath(gameID, "rematch"), nil, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) QueueJoin(ctx context.Context) (*c4dto.QueueResponse, error) {
	return c.queue(ctx, fasthttp.MethodPost, "join")
}

func (c *Client) QueueStatus(ctx context.Context) (*c4dto.QueueResponse, error) {
	return c.queue(ctx, fasthttp.MethodGet, "status")
}

func (c *Client) QueueLeave(ctx context.Context) (*c4dto.QueueResponse, error) {
	return c.queue(ctx, fasthttp.MethodPost, "leave")
}

func (c *Client) queue(ctx context.Context, method, action string) (*c4dto.QueueResponse, error) {
	var resp c4dto.QueueResponse
	if err := c.doJSON(ctx, method, "/api/queue/"+action, nil, &resp, method == fasthttp.MethodGet); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) gameAction(ctx context.Context, gameID, action string) (*c4dto.Game, error) {
	var env c4dto.GameEnvelope
	if err := c.doJSON(ctx, fasthttp.MethodPost, gamePath(gameID, action), nil, &env, false); err != nil {
		return nil, err
	}
	if env.Game == nil {
		return nil, errors.New("connect4 api: empty game in response")
	}
	return env.Game, nil
}

func gamePath(gameID, action string) string {
	return "/api/games/" + url.PathEscape(gameID) + "/" + action
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	body, err := c.do(ctx, method, path, in, retry)
	if err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, retry bool) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if c.token != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+c.token)
	}
	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
		} else if status := resp.StatusCode(); status < 200 || status >= 300 {
			apiErr := newAPIError(status, resp.Body())
			if !shouldRetryStatus(status) {
				return nil, apiErr
			}
			lastErr = apiErr
		} else {
			return append([]byte(nil), resp.Body()...), nil
		}

		if attempt == attempts {
			break
		}
		if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			return nil, lastErr
		}
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return nil, lastErr
}

func newAPIError(status int, body []byte) *APIError {
	e := &APIError{Status: status, Body: truncate(string(body), 512)}
	var env c4dto.ErrorEnvelope
	if json.Unmarshal(body, &env) == nil {
		e.Domain = env.Error
	}
	return e
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
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
	case fasthttp.StatusInternalServerError, fasthttp.StatusBadGateway,
		fasthttp.StatusServiceUnavailable, fasthttp.StatusGatewayTimeout:
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
