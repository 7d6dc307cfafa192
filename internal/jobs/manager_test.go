package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
)

func waitFor(t *testing.T, m *Manager, id string, want Status) Info {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		info, err := m.Status(id)
		require.NoError(t, err)
		if info.Status == want {
			return info
		}
		select {
		case <-deadline:
			t.Fatalf("job %s never reached %s, stuck at %s", id, want, info.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestJobSucceedsAndReportsProgress(t *testing.T) {
	m := NewManager(zerolog.Nop())

	id, err := m.Start(KindScreenSwing, func(ctx context.Context, log zerolog.Logger, progress func(int)) error {
		progress(40)
		log.Info().Msg("halfway there")
		return nil
	})
	require.NoError(t, err)

	info := waitFor(t, m, id, StatusSucceeded)
	assert.Equal(t, 100, info.Progress, "success forces 100")
	assert.NotNil(t, info.FinishedAt)
	assert.Empty(t, info.Error)

	lines, err := m.Logs(id)
	require.NoError(t, err)
	require.NotEmpty(t, lines)
	assert.Contains(t, lines[len(lines)-1], "halfway there")
}

func TestJobFailureCapturesError(t *testing.T) {
	m := NewManager(zerolog.Nop())

	id, err := m.Start(KindUniverseSync, func(context.Context, zerolog.Logger, func(int)) error {
		return errors.New("broker unreachable")
	})
	require.NoError(t, err)

	info := waitFor(t, m, id, StatusFailed)
	assert.Equal(t, "broker unreachable", info.Error)
}

func TestStopCancelsRunningJob(t *testing.T) {
	m := NewManager(zerolog.Nop())
	started := make(chan struct{})

	id, err := m.Start(KindBacktestDomestic, func(ctx context.Context, _ zerolog.Logger, _ func(int)) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)
	<-started

	require.NoError(t, m.Stop(id))
	info := waitFor(t, m, id, StatusCancelled)
	assert.Equal(t, context.Canceled.Error(), info.Error)

	// Stopping again is an error: the job is no longer running.
	var cfgErr *domain.ConfigError
	assert.ErrorAs(t, m.Stop(id), &cfgErr)
}

func TestOneRunningJobPerKind(t *testing.T) {
	m := NewManager(zerolog.Nop())
	release := make(chan struct{})

	id, err := m.Start(KindBacktestGlobal, func(ctx context.Context, _ zerolog.Logger, _ func(int)) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	var cfgErr *domain.ConfigError
	_, err = m.Start(KindBacktestGlobal, func(context.Context, zerolog.Logger, func(int)) error { return nil })
	assert.ErrorAs(t, err, &cfgErr)

	// A different kind runs concurrently.
	other, err := m.Start(KindScreenSwing, func(context.Context, zerolog.Logger, func(int)) error { return nil })
	require.NoError(t, err)
	waitFor(t, m, other, StatusSucceeded)

	close(release)
	waitFor(t, m, id, StatusSucceeded)

	// The kind is free again once finished.
	again, err := m.Start(KindBacktestGlobal, func(context.Context, zerolog.Logger, func(int)) error { return nil })
	require.NoError(t, err)
	waitFor(t, m, again, StatusSucceeded)
}

func TestListNewestFirst(t *testing.T) {
	m := NewManager(zerolog.Nop())

	first, err := m.Start(KindScreenSwing, func(context.Context, zerolog.Logger, func(int)) error { return nil })
	require.NoError(t, err)
	waitFor(t, m, first, StatusSucceeded)

	second, err := m.Start(KindScreenPullback, func(context.Context, zerolog.Logger, func(int)) error { return nil })
	require.NoError(t, err)
	waitFor(t, m, second, StatusSucceeded)

	list := m.List()
	require.Len(t, list, 2)
	assert.False(t, list[0].StartedAt.Before(list[1].StartedAt))
}

func TestUnknownJobErrors(t *testing.T) {
	m := NewManager(zerolog.Nop())
	var cfgErr *domain.ConfigError

	_, err := m.Status("nope")
	assert.ErrorAs(t, err, &cfgErr)
	_, err = m.Logs("nope")
	assert.ErrorAs(t, err, &cfgErr)
	assert.ErrorAs(t, m.Stop("nope"), &cfgErr)
}

func TestLogRingDropsOldest(t *testing.T) {
	r := NewLogRing()
	for i := 0; i < logRingCapacity+25; i++ {
		_, err := r.Write([]byte(fmt.Sprintf("line %d\n", i)))
		require.NoError(t, err)
	}

	lines := r.Lines()
	require.Len(t, lines, logRingCapacity)
	assert.Equal(t, "line 25", lines[0], "oldest 25 lines dropped")
	assert.Equal(t, fmt.Sprintf("line %d", logRingCapacity+24), lines[len(lines)-1])
}

func TestLogRingSplitsMultilineWrites(t *testing.T) {
	r := NewLogRing()
	_, err := r.Write([]byte("one\ntwo\n\nthree\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, r.Lines())
}
