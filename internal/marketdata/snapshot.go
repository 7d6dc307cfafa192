package marketdata

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
)

// panelSnapshot is the on-disk form of a built panel. The derived ADTV matrix
// is stored too so a cold start skips the rolling pass entirely.
type panelSnapshot struct {
	Days    []int       `msgpack:"days"`
	Symbols []string    `msgpack:"symbols"`
	Closes  [][]float64 `msgpack:"closes"`
	Volumes [][]float64 `msgpack:"volumes"`
	ADTV20  [][]float64 `msgpack:"adtv20"`
}

// SnapshotCache persists built panels under cache/panels/, keyed by a content
// hash of the input series set. Two runs over identical cached bars share one
// snapshot; any new bar changes the key.
type SnapshotCache struct {
	dir string
	log zerolog.Logger
}

// NewSnapshotCache creates a snapshot cache rooted at dir.
func NewSnapshotCache(dir string, log zerolog.Logger) *SnapshotCache {
	return &SnapshotCache{
		dir: dir,
		log: log.With().Str("component", "panel_cache").Logger(),
	}
}

// Key derives the content hash for a series set: symbol, bar count and the
// last bar's day/close per instrument. Cheap to compute, sensitive to any
// cache refresh.
func Key(seriesBySymbol map[string]*domain.BarSeries) string {
	h := sha256.New()
	buf := make([]byte, 8)

	symbols := make([]string, 0, len(seriesBySymbol))
	for sym := range seriesBySymbol {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		series := seriesBySymbol[sym]
		h.Write([]byte(sym))
		binary.LittleEndian.PutUint64(buf, uint64(series.Len()))
		h.Write(buf)
		if !series.Empty() {
			last := series.Bars[series.Len()-1]
			binary.LittleEndian.PutUint64(buf, uint64(last.Day))
			h.Write(buf)
			binary.LittleEndian.PutUint64(buf, uint64(last.Close*10000))
			h.Write(buf)
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func (c *SnapshotCache) path(key string) string {
	return filepath.Join(c.dir, "panels", key+".msgpack")
}

// Load returns the snapshot panel for key, or (nil, nil) on a cache miss.
// A corrupt snapshot is treated as a miss and removed.
func (c *SnapshotCache) Load(key string) (*Panel, error) {
	data, err := os.ReadFile(c.path(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read panel snapshot: %w", err)
	}

	var snap panelSnapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Corrupt panel snapshot, rebuilding")
		os.Remove(c.path(key))
		return nil, nil
	}

	p := &Panel{
		Days:    make([]domain.Day, len(snap.Days)),
		Symbols: snap.Symbols,
		closes:  snap.Closes,
		volumes: snap.Volumes,
		adtv20:  snap.ADTV20,
		dayIdx:  make(map[domain.Day]int, len(snap.Days)),
		symIdx:  make(map[string]int, len(snap.Symbols)),
	}
	for i, d := range snap.Days {
		p.Days[i] = domain.Day(d)
		p.dayIdx[domain.Day(d)] = i
	}
	for i, s := range snap.Symbols {
		p.symIdx[s] = i
	}

	c.log.Debug().Str("key", key).Int("days", len(p.Days)).Msg("Panel snapshot hit")
	return p, nil
}

// Store writes the panel snapshot atomically (temp file then rename).
func (c *SnapshotCache) Store(key string, p *Panel) error {
	snap := panelSnapshot{
		Days:    make([]int, len(p.Days)),
		Symbols: p.Symbols,
		Closes:  p.closes,
		Volumes: p.volumes,
		ADTV20:  p.adtv20,
	}
	for i, d := range p.Days {
		snap.Days[i] = int(d)
	}

	data, err := msgpack.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("encode panel snapshot: %w", err)
	}

	full := c.path(key)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create panel cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), "panel-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write panel snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close panel snapshot: %w", err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		return fmt.Errorf("rename panel snapshot: %w", err)
	}

	c.log.Debug().Str("key", key).Int("bytes", len(data)).Msg("Panel snapshot stored")
	return nil
}
