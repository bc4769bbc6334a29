package heartbeat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"transcode-scheduler/internal/monitor"
	"transcode-scheduler/pkg/models"
)

// MetricsSource is anything that can produce a fresh pool aggregate.
// The scheduler pool satisfies it.
type MetricsSource interface {
	Metrics() models.MetricsSnapshot
}

// Service pushes periodic telemetry (worker counts, queue depth, host stats)
// to the orchestrator. It is pure telemetry: delivery failures are logged and
// never affect the pool, and per-job results are still observed by polling.
type Service struct {
	orchestratorURL string
	workerID        string
	interval        time.Duration
	source          MetricsSource
	monitor         *monitor.SystemMonitor
	client          *http.Client
	log             zerolog.Logger
}

// New creates a heartbeat service with a robust HTTP client with retries.
func New(url string, intervalSec int, workerID string, source MetricsSource, mon *monitor.SystemMonitor, log zerolog.Logger) *Service {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil // Silence default debug logger

	return &Service{
		orchestratorURL: url,
		workerID:        workerID,
		interval:        time.Duration(intervalSec) * time.Second,
		source:          source,
		monitor:         mon,
		client:          retryClient.StandardClient(),
		log:             log,
	}
}

// Start launches the heartbeat loop in a non-blocking way.
func (s *Service) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)

	go func() {
		defer ticker.Stop()
		s.log.Info().
			Str("worker_id", s.workerID).
			Dur("interval", s.interval).
			Msg("heartbeat started")

		for {
			select {
			case <-ctx.Done():
				s.log.Info().Msg("heartbeat stopped")
				return
			case <-ticker.C:
				s.ping(ctx)
			}
		}
	}()
}

func (s *Service) ping(ctx context.Context) {
	host, err := s.monitor.Stats(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("host telemetry unavailable")
	}

	payload := models.HeartbeatPayload{
		WorkerID: s.workerID,
		SentAt:   time.Now(),
		Metrics:  s.source.Metrics(),
		Host:     host,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal heartbeat")
		return
	}

	url := fmt.Sprintf("%s/api/v1/workers/heartbeat", s.orchestratorURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		s.log.Error().Err(err).Msg("failed to build heartbeat request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Worker-ID", s.workerID)

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn().Err(err).Msg("heartbeat delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		s.log.Warn().Int("status", resp.StatusCode).Msg("orchestrator rejected heartbeat")
	}
}
