package heartbeat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"transcode-scheduler/internal/monitor"
	"transcode-scheduler/pkg/models"
)

type stubSource struct{}

func (stubSource) Metrics() models.MetricsSnapshot {
	return models.MetricsSnapshot{ActiveWorkers: 2, IdleWorkers: 1, QueueDepth: 5, Processed: 42}
}

func TestPing_PostsTelemetry(t *testing.T) {
	var got models.HeartbeatPayload
	received := false

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/workers/heartbeat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Worker-ID") != "encoder-01" {
			t.Errorf("unexpected worker id header %q", r.Header.Get("X-Worker-ID"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		received = true
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := New(srv.URL, 15, "encoder-01", stubSource{}, monitor.New(), zerolog.Nop())
	s.ping(context.Background())

	if !received {
		t.Fatal("orchestrator never received the heartbeat")
	}
	if got.WorkerID != "encoder-01" {
		t.Errorf("worker_id = %q", got.WorkerID)
	}
	if got.Metrics.QueueDepth != 5 || got.Metrics.Processed != 42 {
		t.Errorf("metrics = %+v", got.Metrics)
	}
	if got.SentAt.IsZero() {
		t.Error("sent_at not set")
	}
}

func TestPing_SurvivesUnreachableOrchestrator(t *testing.T) {
	s := New("http://127.0.0.1:1", 15, "encoder-01", stubSource{}, monitor.New(), zerolog.Nop())

	// Must log and return, never panic or block past its context.
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	s.ping(ctx)
}
