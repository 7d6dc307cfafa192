package server

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/Gotti0/kimum-trade-sub000/internal/database"
)

// SystemHandlers reports process and host health for ops dashboards.
type SystemHandlers struct {
	dataDir   string
	databases map[string]*database.DB
	log       zerolog.Logger
	startedAt time.Time
}

func NewSystemHandlers(dataDir string, databases map[string]*database.DB, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		dataDir:   dataDir,
		databases: databases,
		log:       log.With().Str("component", "system_handlers").Logger(),
		startedAt: time.Now(),
	}
}

// HandleStats responds to GET /api/system/stats with CPU, memory, disk, and
// data directory usage.
func (h *SystemHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	// 100ms sample keeps the endpoint responsive for 2s pollers.
	cpuPct, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to sample CPU usage")
		cpuPct = []float64{0}
	}
	cpuAvg := 0.0
	if len(cpuPct) > 0 {
		cpuAvg = cpuPct[0]
	}

	memPct := 0.0
	if memStat, err := mem.VirtualMemory(); err == nil {
		memPct = memStat.UsedPercent
	} else {
		h.log.Warn().Err(err).Msg("Failed to read memory statistics")
	}

	diskPct := 0.0
	if usage, err := disk.Usage(h.dataDir); err == nil {
		diskPct = usage.UsedPercent
	} else {
		h.log.Warn().Err(err).Str("dir", h.dataDir).Msg("Failed to read disk usage")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cpu_percent":    cpuAvg,
		"memory_percent": memPct,
		"disk_percent":   diskPct,
		"data_dir_mb":    dirSizeMB(h.dataDir),
		"goroutines":     runtime.NumGoroutine(),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}

// HandleDatabaseStats responds to GET /api/system/databases with per-database
// file and page statistics.
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.databases))
	for name := range h.databases {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]map[string]any, 0, len(names))
	for _, name := range names {
		stats, err := h.databases[name].GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Failed to read database stats")
			out = append(out, map[string]any{"name": name, "error": err.Error()})
			continue
		}
		out = append(out, map[string]any{
			"name":           name,
			"size_bytes":     stats.SizeBytes,
			"wal_size_bytes": stats.WALSizeBytes,
			"page_count":     stats.PageCount,
			"page_size":      stats.PageSize,
			"freelist_count": stats.FreelistCount,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"databases": out})
}

func dirSizeMB(dir string) float64 {
	var total int64
	_ = filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return float64(total) / 1024 / 1024
}
