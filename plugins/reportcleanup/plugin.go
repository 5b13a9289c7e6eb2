// Package reportcleanup bounds the disk usage of the report directory of
// a long-lived dropship. When the directory grows past the high watermark
// the oldest completed runs are removed until it is under the low
// watermark. Runs that still have a rerun list are never removed.
package reportcleanup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bft-labs/dropship/internal/ports"
	"github.com/bft-labs/dropship/pkg/dropship"
)

// Plugin implements report cleanup.
type Plugin struct {
	mu sync.RWMutex

	checkInterval time.Duration
	highWatermark int64
	lowWatermark  int64

	dir    string
	logger ports.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds configuration options for the report cleanup plugin.
type Config struct {
	// CheckInterval is how often to check the report directory size.
	// Default: 1 hour
	CheckInterval time.Duration

	// HighWatermark is the size in bytes above which cleanup begins.
	// Default: 256 MiB
	HighWatermark int64

	// LowWatermark is the target size in bytes after cleanup.
	// Default: 192 MiB
	LowWatermark int64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CheckInterval: time.Hour,
		HighWatermark: 256 << 20,
		LowWatermark:  192 << 20,
	}
}

// New creates a new report cleanup plugin with the given configuration.
func New(cfg Config) *Plugin {
	d := DefaultConfig()
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = d.CheckInterval
	}
	if cfg.HighWatermark <= 0 {
		cfg.HighWatermark = d.HighWatermark
	}
	if cfg.LowWatermark <= 0 || cfg.LowWatermark > cfg.HighWatermark {
		cfg.LowWatermark = cfg.HighWatermark * 3 / 4
	}

	return &Plugin{
		checkInterval: cfg.CheckInterval,
		highWatermark: cfg.HighWatermark,
		lowWatermark:  cfg.LowWatermark,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "reportcleanup"
}

// Initialize starts the cleanup loop. It is a no-op when reports are not
// written to a directory.
func (p *Plugin) Initialize(ctx context.Context, cfg dropship.PluginConfig) error {
	p.mu.Lock()
	p.dir = cfg.ReportDir
	p.logger = cfg.Logger
	p.mu.Unlock()

	if p.dir == "" {
		p.logger.Warn("report cleanup disabled: no report directory configured")
		return nil
	}

	cleanupCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("report cleanup plugin initialized",
		ports.String("dir", p.dir),
		ports.String("high_watermark", formatBytes(p.highWatermark)))

	p.wg.Add(1)
	go p.cleanupLoop(cleanupCtx)
	return nil
}

// Shutdown stops the cleanup loop.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}

func (p *Plugin) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	p.cleanupOnce(ctx)

	ticker := time.NewTicker(p.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cleanupOnce(ctx)
		}
	}
}

// cleanupOnce performs a single cleanup check.
func (p *Plugin) cleanupOnce(ctx context.Context) {
	p.mu.RLock()
	dir := p.dir
	p.mu.RUnlock()

	curSize, err := dirSize(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			p.logger.Error("report cleanup: size check failed", ports.Err(err))
		}
		return
	}
	if curSize <= p.highWatermark {
		return
	}

	runs, err := completedRuns(dir)
	if err != nil {
		p.logger.Error("report cleanup: list reports failed", ports.Err(err))
		return
	}

	var removed int64
	count := 0
	for _, r := range runs {
		if ctx.Err() != nil {
			return
		}
		if curSize <= p.lowWatermark {
			break
		}
		if err := os.Remove(r.path); err != nil {
			p.logger.Error("report cleanup: remove failed", ports.String("file", r.path), ports.Err(err))
			continue
		}
		curSize -= r.size
		removed += r.size
		count++
	}

	if count > 0 {
		p.logger.Info("report cleanup completed",
			ports.Int("reports_removed", count),
			ports.String("freed", formatBytes(removed)),
			ports.String("size", formatBytes(curSize)))
	}
}

type runReport struct {
	id      string
	path    string
	size    int64
	modTime time.Time
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}

// completedRuns lists report files without a matching rerun file, oldest
// first.
func completedRuns(dir string) ([]runReport, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	pending := map[string]bool{}
	for _, e := range ents {
		if id, ok := runID(e.Name(), "rerun-"); ok {
			pending[id] = true
		}
	}

	var out []runReport
	for _, e := range ents {
		id, ok := runID(e.Name(), "report-")
		if !ok || pending[id] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		out = append(out, runReport{
			id:      id,
			path:    filepath.Join(dir, e.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].modTime.Equal(out[j].modTime) {
			return out[i].modTime.Before(out[j].modTime)
		}
		return out[i].id < out[j].id
	})
	return out, nil
}

func runID(name, prefix string) (string, bool) {
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".json")
	return id, id != ""
}

func formatBytes(b int64) string {
	const (
		_          = iota
		KB float64 = 1 << (10 * iota)
		MB
		GB
	)

	fb := float64(b)
	switch {
	case fb >= GB:
		return fmt.Sprintf("%.2fGiB", fb/GB)
	case fb >= MB:
		return fmt.Sprintf("%.2fMiB", fb/MB)
	case fb >= KB:
		return fmt.Sprintf("%.2fKiB", fb/KB)
	default:
		return fmt.Sprintf("%dB", b)
	}
}

// Ensure Plugin implements dropship.Plugin.
var _ dropship.Plugin = (*Plugin)(nil)
