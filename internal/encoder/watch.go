package encoder

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits after the last PNG event before
// running the encoder.
const DefaultDebounce = 300 * time.Millisecond

// RunCallback is called after every watcher-driven run.
type RunCallback func(report *Report, err error)

// Watch runs the encoder once, then watches dir for new or rewritten PNGs
// and reruns it until ctx is cancelled. Bursts of events collapse into a
// single run.
func (e *Encoder) Watch(ctx context.Context, dir string, debounce time.Duration, cb RunCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	run := func() {
		report, err := e.Run(ctx)
		if err != nil {
			e.logger.Warn("watcher: encode run failed", slog.String("error", err.Error()))
		}
		if cb != nil {
			cb(report, err)
		}
	}

	e.logger.Info("watcher: started", slog.String("dir", dir))
	run()

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			e.logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			run()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Ext(ev.Name), InputExt) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				e.logger.Debug("watcher: png changed", slog.String("path", ev.Name))
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			e.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
