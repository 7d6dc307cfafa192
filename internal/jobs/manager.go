// Package jobs runs long operations (backtests, screens, syncs) as tracked
// background jobs with cancellation, progress, and a bounded log buffer per
// run.
package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
)

// Kind identifies what a job does.
type Kind string

const (
	KindBacktestDomestic Kind = "backtest_domestic"
	KindBacktestGlobal   Kind = "backtest_global"
	KindBacktestPullback Kind = "backtest_pullback"
	KindBacktestPhoenix  Kind = "backtest_phoenix"
	KindScreenSwing      Kind = "screen_swing"
	KindScreenPullback   Kind = "screen_pullback"
	KindUniverseSync     Kind = "universe_sync"
	KindDataRefresh      Kind = "data_refresh"
	KindBackup           Kind = "backup"
)

// Description returns a human-readable label for a kind.
func Description(kind Kind) string {
	descriptions := map[Kind]string{
		KindBacktestDomestic: "Running domestic momentum backtest",
		KindBacktestGlobal:   "Running global allocation backtest",
		KindBacktestPullback: "Running pullback backtest",
		KindBacktestPhoenix:  "Running phoenix replay",
		KindScreenSwing:      "Screening swing candidates",
		KindScreenPullback:   "Screening pullback candidates",
		KindUniverseSync:     "Syncing instrument metadata",
		KindDataRefresh:      "Refreshing bar cache",
		KindBackup:           "Uploading backup",
	}
	if d, ok := descriptions[kind]; ok {
		return d
	}
	return string(kind)
}

// Status is a job's lifecycle state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Info is the externally visible state of one job.
type Info struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"` // 0..100
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

type job struct {
	info   Info
	cancel context.CancelFunc
	ring   *LogRing
}

// Fn is the work a job performs. The logger tees into the job's log ring;
// progress accepts 0..100.
type Fn func(ctx context.Context, log zerolog.Logger, progress func(int)) error

// Manager tracks every job of the process. One running job per kind: a
// second start of the same kind is refused while the first runs.
type Manager struct {
	log zerolog.Logger

	mu   sync.Mutex
	jobs map[string]*job
}

func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log:  log.With().Str("component", "jobs").Logger(),
		jobs: make(map[string]*job),
	}
}

// Start launches fn on its own goroutine and returns the job id.
func (m *Manager) Start(kind Kind, fn Fn) (string, error) {
	m.mu.Lock()
	for _, j := range m.jobs {
		if j.info.Kind == kind && j.info.Status == StatusRunning {
			m.mu.Unlock()
			return "", &domain.ConfigError{
				Field:  "kind",
				Reason: fmt.Sprintf("a %s job is already running (%s)", kind, j.info.ID),
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &job{
		info: Info{
			ID:          uuid.NewString(),
			Kind:        kind,
			Description: Description(kind),
			Status:      StatusRunning,
			StartedAt:   time.Now().UTC(),
		},
		cancel: cancel,
		ring:   NewLogRing(),
	}
	m.jobs[j.info.ID] = j
	m.mu.Unlock()

	// The job logger tees into the ring so the API can serve recent lines.
	jobLog := zerolog.New(zerolog.MultiLevelWriter(m.log, j.ring)).
		With().Timestamp().Str("job_id", j.info.ID).Str("job_kind", string(kind)).Logger()

	go m.run(ctx, j, jobLog, fn)

	m.log.Info().Str("job_id", j.info.ID).Str("kind", string(kind)).Msg("Job started")
	return j.info.ID, nil
}

func (m *Manager) run(ctx context.Context, j *job, jobLog zerolog.Logger, fn Fn) {
	defer j.cancel()

	err := fn(ctx, jobLog, func(pct int) { m.setProgress(j.info.ID, pct) })

	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	j.info.FinishedAt = &now
	switch {
	case err == nil:
		j.info.Status = StatusSucceeded
		j.info.Progress = 100
	case ctx.Err() != nil:
		j.info.Status = StatusCancelled
		j.info.Error = ctx.Err().Error()
	default:
		j.info.Status = StatusFailed
		j.info.Error = err.Error()
	}
	m.log.Info().Str("job_id", j.info.ID).Str("status", string(j.info.Status)).
		Err(err).Msg("Job finished")
}

func (m *Manager) setProgress(id string, pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.info.Progress = pct
	}
}

// Stop cancels a running job. Stopping a finished or unknown job is an error.
func (m *Manager) Stop(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return &domain.ConfigError{Field: "job_id", Reason: fmt.Sprintf("unknown job %s", id)}
	}
	if j.info.Status != StatusRunning {
		return &domain.ConfigError{Field: "job_id", Reason: fmt.Sprintf("job %s is not running", id)}
	}
	j.cancel()
	return nil
}

// Status returns a copy of the job's current state.
func (m *Manager) Status(id string) (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return Info{}, &domain.ConfigError{Field: "job_id", Reason: fmt.Sprintf("unknown job %s", id)}
	}
	return j.info, nil
}

// List returns every known job, newest first.
func (m *Manager) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Info, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j.info)
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].StartedAt.Equal(out[k].StartedAt) {
			return out[i].StartedAt.After(out[k].StartedAt)
		}
		return out[i].ID < out[k].ID
	})
	return out
}

// Logs returns the job's buffered log lines, oldest first.
func (m *Manager) Logs(id string) ([]string, error) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return nil, &domain.ConfigError{Field: "job_id", Reason: fmt.Sprintf("unknown job %s", id)}
	}
	return j.ring.Lines(), nil
}
