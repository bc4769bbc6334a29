package models

import "time"

// JobSnapshot is a read-only copy of a job's state, returned by status queries.
// Mutating a snapshot has no effect on the scheduler's job table.
type JobSnapshot struct {
	ID          string            `json:"id"`
	Kind        string            `json:"kind"`
	Args        []string          `json:"args"`
	Priority    int               `json:"priority"`
	Status      string            `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Error       string            `json:"error,omitempty"`
	RetryCount  int               `json:"retry_count"`
	MaxRetries  int               `json:"max_retries"`
	Timeout     time.Duration     `json:"timeout"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// MetricsSnapshot is a point-in-time aggregate over the pool. It is computed
// on demand and never cached.
type MetricsSnapshot struct {
	ActiveWorkers int `json:"active_workers"`
	IdleWorkers   int `json:"idle_workers"`
	QueueDepth    int `json:"queue_depth"`

	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Retried   int `json:"retried"`

	// AvgJobDuration is the mean wall-clock duration of completed jobs.
	AvgJobDuration time.Duration `json:"avg_job_duration"`
}

// MediaInfo is the parsed output of the probe binary (ffprobe-style JSON).
type MediaInfo struct {
	Format  MediaFormat   `json:"format"`
	Streams []MediaStream `json:"streams"`
}

type MediaFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

type MediaStream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"` // "video" or "audio"
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

// HostStats captures real-time hardware telemetry gathered by gopsutil.
type HostStats struct {
	// CPU usage percentage (0.0 to 100.0)
	CPUPercent float64 `json:"cpu_percent"`

	// RAM usage percentage (0.0 to 100.0)
	RAMPercent float64 `json:"ram_percent"`

	// Computed flag: is the host too busy to take on more encodes?
	IsBusy bool `json:"is_busy"`
}

// HeartbeatPayload is the periodic telemetry pulse sent to the orchestrator.
// Used in [POST] /api/v1/workers/heartbeat
type HeartbeatPayload struct {
	WorkerID string          `json:"worker_id"`
	SentAt   time.Time       `json:"sent_at"`
	Metrics  MetricsSnapshot `json:"metrics"`
	Host     HostStats       `json:"host"`
}
