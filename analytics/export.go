package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Exporter ships aggregated windows somewhere outside the process.
type Exporter interface {
	Export(ctx context.Context, data AggregatedData) error
	Flush(ctx context.Context) error
	Close() error
}

// HTTPExporter batches windows and POSTs them as a JSON array.
type HTTPExporter struct {
	endpoint  string
	apiKey    string
	client    *http.Client
	batchSize int

	mu     sync.Mutex
	buffer []AggregatedData
}

func NewHTTPExporter(endpoint, apiKey string, batchSize int, timeout time.Duration) *HTTPExporter {
	if batchSize <= 0 {
		batchSize = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPExporter{
		endpoint:  endpoint,
		apiKey:    apiKey,
		client:    &http.Client{Timeout: timeout},
		batchSize: batchSize,
		buffer:    make([]AggregatedData, 0, batchSize),
	}
}

func (e *HTTPExporter) Export(ctx context.Context, data AggregatedData) error {
	e.mu.Lock()
	e.buffer = append(e.buffer, data)
	full := len(e.buffer) >= e.batchSize
	e.mu.Unlock()
	if full {
		return e.Flush(ctx)
	}
	return nil
}

func (e *HTTPExporter) Flush(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.buffer) == 0 {
		return nil
	}

	payload, err := json.Marshal(e.buffer)
	if err != nil {
		return fmt.Errorf("marshal analytics batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build analytics request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("send analytics batch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return fmt.Errorf("analytics export failed with status %d: %s", resp.StatusCode, body)
	}

	// keep the batch on failure so the next flush retries it
	e.buffer = e.buffer[:0]
	return nil
}

func (e *HTTPExporter) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Flush(ctx)
}

// LogExporter writes each window as a structured log line.
type LogExporter struct {
	log *zap.Logger
}

func NewLogExporter(log *zap.Logger) *LogExporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogExporter{log: log}
}

func (e *LogExporter) Export(_ context.Context, d AggregatedData) error {
	e.log.Info("analytics window",
		zap.String("period", string(d.Period)),
		zap.String("key", d.Key),
		zap.Int("active_learners", d.ActiveLearners),
		zap.Int64("xp_awarded", d.XPAwarded),
		zap.Int64("level_ups", d.LevelUps),
		zap.Int64("achievements_unlocked", d.AchievementsUnlocked),
		zap.Int64("missions_claimed", d.MissionsClaimed),
		zap.Any("rewards_by_rarity", d.RewardsByRarity))
	return nil
}

func (e *LogExporter) Flush(context.Context) error { return nil }
func (e *LogExporter) Close() error                { return nil }

// MultiExporter fans out to several exporters and joins their errors.
type MultiExporter struct {
	exporters []Exporter
}

func NewMultiExporter(exporters ...Exporter) *MultiExporter {
	return &MultiExporter{exporters: exporters}
}

func (m *MultiExporter) Export(ctx context.Context, data AggregatedData) error {
	var errs []error
	for _, e := range m.exporters {
		if err := e.Export(ctx, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiExporter) Flush(ctx context.Context) error {
	var errs []error
	for _, e := range m.exporters {
		if err := e.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiExporter) Close() error {
	var errs []error
	for _, e := range m.exporters {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
