// Package janitor runs periodic workspace retention sweeps: files untouched
// for longer than the configured age are removed, and empty directories left
// behind are pruned. It also evicts idle per-client rate limiter state.
package janitor

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jkaninda/kazi/internal/config"
	"github.com/robfig/cron/v3"
)

// LimiterPruner evicts idle rate limiter entries. Satisfied by *ratelimit.Limiter.
type LimiterPruner interface {
	Prune(maxIdle time.Duration) int
}

// Janitor sweeps the workspace on a cron schedule.
type Janitor struct {
	root    string
	maxAge  time.Duration
	cron    *cron.Cron
	limiter LimiterPruner
	logger  *slog.Logger
}

// New creates a Janitor sweeping root on the configured schedule.
// The limiter is optional.
func New(root string, cfg *config.JanitorConfig, limiter LimiterPruner, logger *slog.Logger) (*Janitor, error) {
	j := &Janitor{
		root:    root,
		maxAge:  cfg.MaxAge(),
		cron:    cron.New(),
		limiter: limiter,
		logger:  logger,
	}
	if _, err := j.cron.AddFunc(cfg.CronSchedule(), j.run); err != nil {
		return nil, err
	}
	return j, nil
}

// Start begins the sweep schedule in a background goroutine.
func (j *Janitor) Start() {
	j.cron.Start()
	j.logger.Info("janitor started",
		slog.String("root", j.root),
		slog.Duration("max_age", j.maxAge),
	)
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Info("janitor stopped")
}

func (j *Janitor) run() {
	removed, err := j.Sweep(time.Now())
	if err != nil {
		j.logger.Error("workspace sweep failed", slog.String("error", err.Error()))
		return
	}
	pruned := 0
	if j.limiter != nil {
		pruned = j.limiter.Prune(j.maxAge)
	}
	j.logger.Info("workspace sweep completed",
		slog.Int("files_removed", removed),
		slog.Int("limiter_entries_pruned", pruned),
	)
}

// Sweep removes files under the root not modified since now minus the
// retention age, then prunes directories left empty. The root itself is
// never removed. Returns the number of files removed.
func (j *Janitor) Sweep(now time.Time) (int, error) {
	cutoff := now.Add(-j.maxAge)
	removed := 0

	var dirs []string
	err := filepath.WalkDir(j.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A file removed mid-walk is not a failure.
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if path == j.root {
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, path)
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				j.logger.Warn("stale file removal failed",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
				return nil
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, err
	}

	// Deepest first so emptied parents are seen empty.
	sort.Slice(dirs, func(a, b int) bool { return len(dirs[a]) > len(dirs[b]) })
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		// Remove fails on non-empty directories, so a race is harmless.
		_ = os.Remove(dir)
	}

	return removed, nil
}
