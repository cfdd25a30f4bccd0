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
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"hanziquest/core"
)

// SignatureHeader carries hex(HMAC-SHA256(secret, body)) when a secret is set.
const SignatureHeader = "X-Hanziquest-Signature"

// DefaultEvents are the milestone events delivered when none are configured.
var DefaultEvents = []core.EventType{
	core.EventLevelUp,
	core.EventAchievementUnlocked,
	core.EventMissionCompleted,
	core.EventMissionClaimed,
}

// Sink posts domain events to configured HTTP endpoints.
type Sink struct {
	client    *http.Client
	endpoints []string
	events    []core.EventType
	secret    []byte
	limiter   *rate.Limiter
	log       *zap.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithClient overrides the HTTP client (defaults to 2s timeout).
func WithClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *Sink) {
		if d > 0 {
			s.client = &http.Client{Timeout: d}
		}
	}
}

func WithEvents(types ...core.EventType) Option {
	return func(s *Sink) {
		if len(types) > 0 {
			s.events = append([]core.EventType(nil), types...)
		}
	}
}

func WithSecret(secret string) Option {
	return func(s *Sink) { s.secret = []byte(secret) }
}

// WithRateLimit caps deliveries per second across all endpoints.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Sink) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a webhook sink.
func New(endpoints []string, opts ...Option) *Sink {
	s := &Sink{
		client: &http.Client{Timeout: 2 * time.Second},
		events: DefaultEvents,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.endpoints = append([]string{}, endpoints...)
	return s
}

// Source is anything events can be subscribed on, such as the engine.
type Source interface {
	Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func()
}

// Follow delivers the sink's event types from src. Failures are logged.
func (s *Sink) Follow(src Source) func() {
	unsubs := make([]func(), 0, len(s.events))
	for _, typ := range s.events {
		unsubs = append(unsubs, src.Subscribe(typ, s.OnEvent))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// OnEvent delivers e and logs any failure.
func (s *Sink) OnEvent(ctx context.Context, e core.Event) {
	if err := s.Deliver(ctx, e); err != nil {
		s.log.Warn("webhook delivery failed",
			zap.String("event", string(e.Type)),
			zap.String("learner_id", string(e.LearnerID)),
			zap.Error(err))
	}
}

// Deliver posts the event JSON to every endpoint concurrently and joins the errors.
func (s *Sink) Deliver(ctx context.Context, e core.Event) error {
	if len(s.endpoints) == 0 {
		return nil
	}
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	var sig string
	if len(s.secret) > 0 {
		mac := hmac.New(sha256.New, s.secret)
		mac.Write(body)
		sig = hex.EncodeToString(mac.Sum(nil))
	}

	errs := make([]error, len(s.endpoints))
	var g errgroup.Group
	for i, ep := range s.endpoints {
		g.Go(func() error {
			errs[i] = s.post(ctx, ep, body, sig)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (s *Sink) post(ctx context.Context, endpoint string, body []byte, sig string) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: %w", endpoint, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set(SignatureHeader, sig)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: unexpected status %d", endpoint, resp.StatusCode)
	}
	return nil
}
