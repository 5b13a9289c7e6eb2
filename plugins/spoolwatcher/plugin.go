// Package spoolwatcher runs a distribution for every recipient file
// dropped into a spool directory.
//
// Files are picked up on create or write, after a debounce delay so that
// partially written files are not read. Once a run finishes the file is
// moved to processed/ (or failed/ when the run returned an error), so a
// restart never runs the same list twice.
package spoolwatcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/dropship/internal/adapters/fs"
	"github.com/bft-labs/dropship/internal/ports"
	"github.com/bft-labs/dropship/pkg/dropship"
)

// Subdirectories receiving finished files.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

// Plugin implements spool watching.
type Plugin struct {
	mu sync.Mutex

	dir           string
	extensions    map[string]bool
	debounceDelay time.Duration

	logger  ports.Logger
	run     dropship.Runner
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	pending map[string]*time.Timer
	queue   chan string
}

// Config holds configuration options for the spool watcher plugin.
type Config struct {
	// Dir is the spool directory. Required.
	Dir string

	// Extensions lists the file extensions picked up.
	// Default: .json, .csv, .yaml, .yml
	Extensions []string

	// DebounceDelay is the quiet time after the last write before a file is run.
	// Default: 500 milliseconds
	DebounceDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults for dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:           dir,
		Extensions:    []string{".json", ".csv", ".yaml", ".yml"},
		DebounceDelay: 500 * time.Millisecond,
	}
}

// New creates a new spool watcher plugin with the given configuration.
func New(cfg Config) *Plugin {
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultConfig(cfg.Dir).Extensions
	}
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 500 * time.Millisecond
	}

	exts := make(map[string]bool, len(cfg.Extensions))
	for _, e := range cfg.Extensions {
		exts[strings.ToLower(e)] = true
	}
	return &Plugin{
		dir:           cfg.Dir,
		extensions:    exts,
		debounceDelay: cfg.DebounceDelay,
		pending:       make(map[string]*time.Timer),
		queue:         make(chan string, 64),
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "spoolwatcher"
}

// Initialize starts watching the spool directory. Files already present
// are queued first.
func (p *Plugin) Initialize(ctx context.Context, cfg dropship.PluginConfig) error {
	if p.dir == "" {
		return errors.New("spool directory is required")
	}
	if cfg.Run == nil {
		return errors.New("spool watcher needs a runner")
	}
	for _, sub := range []string{ProcessedDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(p.dir, sub), 0o755); err != nil {
			return fmt.Errorf("create %s dir: %w", sub, err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(p.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", p.dir, err)
	}

	p.mu.Lock()
	p.logger = cfg.Logger
	p.run = cfg.Run
	p.mu.Unlock()

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	existing, err := os.ReadDir(p.dir)
	if err != nil {
		cancel()
		watcher.Close()
		return fmt.Errorf("read %s: %w", p.dir, err)
	}
	for _, e := range existing {
		if !e.IsDir() {
			p.schedule(watchCtx, filepath.Join(p.dir, e.Name()), 0)
		}
	}

	p.logger.Info("spool watcher started", ports.String("dir", p.dir))

	p.wg.Add(2)
	go p.watchLoop(watchCtx, watcher)
	go p.runLoop(watchCtx)
	return nil
}

// Shutdown stops the watcher. A run in progress finishes first.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Lock()
	for path, t := range p.pending {
		t.Stop()
		delete(p.pending, path)
	}
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}

func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			p.schedule(ctx, event.Name, p.debounceDelay)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("spool watcher error", ports.Err(err))
		}
	}
}

// schedule queues path after delay, restarting the timer on every call.
func (p *Plugin) schedule(ctx context.Context, path string, delay time.Duration) {
	if !p.extensions[strings.ToLower(filepath.Ext(path))] {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.pending[path]; ok {
		t.Stop()
	}
	p.pending[path] = time.AfterFunc(delay, func() {
		p.mu.Lock()
		delete(p.pending, path)
		p.mu.Unlock()

		select {
		case p.queue <- path:
		case <-ctx.Done():
		}
	})
}

func (p *Plugin) runLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-p.queue:
			p.process(ctx, path)
		}
	}
}

func (p *Plugin) process(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		// Already moved by an earlier event for the same file.
		return
	}

	p.logger.Info("running spooled recipient file", ports.String("file", path))
	report, err := p.run(ctx, fs.NewFileSource(path))

	dest := ProcessedDir
	if err != nil {
		dest = FailedDir
		p.logger.Error("spooled run failed",
			ports.String("file", path),
			ports.String("run_id", report.RunID),
			ports.Err(err))
	} else {
		p.logger.Info("spooled run finished",
			ports.String("file", path),
			ports.String("run_id", report.RunID),
			ports.Int("succeeded", report.Succeeded),
			ports.Int("failed", len(report.Failed)))
	}

	target := filepath.Join(p.dir, dest, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		p.logger.Error("failed to move spooled file", ports.String("file", path), ports.Err(err))
	}
}

// Ensure Plugin implements dropship.Plugin.
var _ dropship.Plugin = (*Plugin)(nil)
