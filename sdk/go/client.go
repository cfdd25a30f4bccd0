package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"hanziquest/core"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the HanziQuest HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
	timezone   string
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// WithTimezone sets the IANA zone whose calendar day drives streaks and
// mission windows. It fills Event.Timezone when unset and is sent with
// mission claims and the mission board.
func WithTimezone(tz string) Option {
	return func(c *Client) {
		c.timezone = strings.TrimSpace(tz)
	}
}

// RecordEvent submits a learning activity for a learner.
func (c *Client) RecordEvent(ctx context.Context, learnerID string, ev Event) (EventResult, error) {
	var res EventResult
	if ev.Timezone == "" {
		ev.Timezone = c.timezone
	}
	err := c.do(ctx, http.MethodPost, c.learnerPath(learnerID, "events"), ev, &res)
	return res, err
}

// Progress returns the learner's progress. Unknown learners come back with Started false.
func (c *Client) Progress(ctx context.Context, learnerID string) (ProgressView, error) {
	var v ProgressView
	err := c.do(ctx, http.MethodGet, c.learnerPath(learnerID, "progress"), nil, &v)
	return v, err
}

// SpinWheel consumes one spin.
func (c *Client) SpinWheel(ctx context.Context, learnerID string) (SpinResult, error) {
	var res SpinResult
	err := c.do(ctx, http.MethodPost, c.learnerPath(learnerID, "wheel", "spin"), nil, &res)
	return res, err
}

// OpenCardPack draws packSize cards with the weights of source.
func (c *Client) OpenCardPack(ctx context.Context, learnerID, source string, packSize int) (PackResult, error) {
	var res PackResult
	body := map[string]any{"source": source, "pack_size": packSize}
	err := c.do(ctx, http.MethodPost, c.learnerPath(learnerID, "packs"), body, &res)
	return res, err
}

func (c *Client) ClaimMission(ctx context.Context, learnerID, missionID string) (ClaimResult, error) {
	var res ClaimResult
	err := c.do(ctx, http.MethodPost, c.inTimezone(c.learnerPath(learnerID, "missions", missionID, "claim")), nil, &res)
	return res, err
}

func (c *Client) Missions(ctx context.Context, learnerID string) ([]MissionStatus, error) {
	var body struct {
		Missions []MissionStatus `json:"missions"`
	}
	err := c.do(ctx, http.MethodGet, c.inTimezone(c.learnerPath(learnerID, "missions")), nil, &body)
	return body.Missions, err
}

func (c *Client) Achievements(ctx context.Context, learnerID string) ([]AchievementStatus, error) {
	var body struct {
		Achievements []AchievementStatus `json:"achievements"`
	}
	err := c.do(ctx, http.MethodGet, c.learnerPath(learnerID, "achievements"), nil, &body)
	return body.Achievements, err
}

func (c *Client) Collection(ctx context.Context, learnerID string) (CollectionView, error) {
	var v CollectionView
	err := c.do(ctx, http.MethodGet, c.learnerPath(learnerID, "collection"), nil, &v)
	return v, err
}

// RecentEvents returns the newest ledger entries first.
func (c *Client) RecentEvents(ctx context.Context, learnerID string, limit int) ([]core.XPEvent, error) {
	path := c.learnerPath(learnerID, "events")
	if path != "" && limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var body struct {
		Events []core.XPEvent `json:"events"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &body)
	return body.Events, err
}

// Leaderboard returns the top learners by total XP; limit 0 uses the server default.
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	path := c.baseURL + "/leaderboard"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var body struct {
		Entries []LeaderboardEntry `json:"entries"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &body)
	return body.Entries, err
}

// Health probes /healthz and returns status + storage check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var hs HealthStatus
	err := c.do(ctx, http.MethodGet, c.baseURL+"/healthz", nil, &hs)
	return hs, err
}

// SubscribeEvents connects to the WebSocket stream and emits core.Event values.
// A non-empty learnerID limits the stream to that learner.
// The returned channel closes when ctx is done or the connection drops.
func (c *Client) SubscribeEvents(ctx context.Context, learnerID string) (<-chan core.Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	target := c.wsURL
	if learnerID != "" {
		target += "?learner_id=" + url.QueryEscape(learnerID)
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, target, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Event, 32)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(out)
		defer close(done)
		defer conn.Close()
		for {
			var evt core.Event
			if err := conn.ReadJSON(&evt); err != nil {
				return
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			default:
				// drop if consumer is slow
			}
		}
	}()
	return out, nil
}

// learnerPath returns "" for an empty learner id; do reports ErrEmptyLearnerID.
func (c *Client) learnerPath(learnerID string, parts ...string) string {
	if strings.TrimSpace(learnerID) == "" {
		return ""
	}
	segs := make([]string, 0, len(parts)+2)
	segs = append(segs, c.baseURL, "learners", url.PathEscape(learnerID))
	for _, p := range parts {
		segs = append(segs, url.PathEscape(p))
	}
	return strings.Join(segs, "/")
}

func (c *Client) inTimezone(path string) string {
	if path == "" || c.timezone == "" {
		return path
	}
	return path + "?timezone=" + url.QueryEscape(c.timezone)
}

func (c *Client) do(ctx context.Context, method, target string, body, out any) error {
	if target == "" {
		return ErrEmptyLearnerID
	}
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, out)
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
