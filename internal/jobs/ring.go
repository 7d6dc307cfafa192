package jobs

import (
	"strings"
	"sync"
)

// logRingCapacity bounds the per-job log buffer the API serves.
const logRingCapacity = 500

// LogRing is a fixed-capacity line buffer. It implements io.Writer so a
// zerolog logger can tee into it; once full, the oldest lines drop.
type LogRing struct {
	mu    sync.Mutex
	lines []string
	start int
	count int
}

func NewLogRing() *LogRing {
	return &LogRing{lines: make([]string, logRingCapacity)}
}

// Write splits the payload into lines and appends each. Always succeeds.
func (r *LogRing) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}
		r.append(line)
	}
	return len(p), nil
}

func (r *LogRing) append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count < logRingCapacity {
		r.lines[(r.start+r.count)%logRingCapacity] = line
		r.count++
		return
	}
	r.lines[r.start] = line
	r.start = (r.start + 1) % logRingCapacity
}

// Lines returns the buffered lines oldest first.
func (r *LogRing) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.lines[(r.start+i)%logRingCapacity]
	}
	return out
}
