package judge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/ehrlich-b/gavel/internal/logger"
)

// Watch runs one pass immediately, then re-runs a full pass whenever a
// <name>.in file in the input directory changes. Event bursts (a bulk copy
// of N cases) collapse into one pass via a short debounce, and passes are
// rate-limited so a pathological writer can't spin the judge.
//
// afterPass receives each completed aggregate; it is where the caller hooks
// the result sink and the history store. Returns when ctx is cancelled.
func (r *Runner) Watch(ctx context.Context, afterPass func(*ResultSet) error) error {
	pass := func() {
		rs, err := r.Run()
		if err != nil {
			logger.Error("judging pass failed", "err", err)
			return
		}
		if err := afterPass(rs); err != nil {
			logger.Error("after pass", "err", err)
		}
	}
	pass()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(r.InputDir); err != nil {
		return fmt.Errorf("watch %s: %w", r.InputDir, err)
	}
	logger.Info("watching for case changes", "dir", r.InputDir)

	limiter := rate.NewLimiter(rate.Every(2*time.Second), 1)

	// Armed by events, drained by the debounce fire. Stopped timers reuse
	// the channel, so the initial timer must start stopped and drained.
	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, ".in") {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			logger.Debug("case change", "op", ev.Op.String(), "path", ev.Name)
			debounce.Reset(500 * time.Millisecond)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "err", err)

		case <-debounce.C:
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
			pass()
		}
	}
}
