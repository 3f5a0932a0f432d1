package distill

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/wm/internal/errors"
)

// DefaultDebounce is how long transcripts must be quiet before a watch re-run.
const DefaultDebounce = 2 * time.Second

// Watch runs the pipeline once, then again each time a transcript under dirs
// changes and stays quiet for debounce. Runs are strictly sequential. onRun
// (optional) receives every run's result. Watch returns nil when ctx ends.
func Watch(ctx context.Context, p *Pipeline, dirs []string, debounce time.Duration, opts Options, onRun func(*Report, error)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.NewIO("create watcher", err)
	}
	defer watcher.Close()

	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return errors.NewIO("watch "+dir, err)
		}
	}
	p.log().Info("watching transcripts", zap.Strings("dirs", dirs), zap.Duration("debounce", debounce))

	trigger := make(chan struct{}, 1)
	trigger <- struct{}{}

	g, gctx := errgroup.WithContext(ctx)

	// Event pump: coalesces any number of events into one pending trigger.
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if ev.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
						// New day directory for sharded sources
						_ = watcher.Add(ev.Name)
						continue
					}
				}
				if !isTranscriptEvent(ev) {
					continue
				}
				select {
				case trigger <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				p.log().Warn("watch error", zap.Error(err))
			}
		}
	})

	// Runner
	g.Go(func() error {
		first := true
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-trigger:
			}
			if !first && !settle(gctx, trigger, debounce) {
				return nil
			}
			first = false

			report, err := p.Run(gctx, opts)
			if gctx.Err() != nil {
				return nil
			}
			if err != nil {
				p.log().Warn("watch run failed", zap.Error(err))
			}
			if onRun != nil {
				onRun(report, err)
			}
		}
	})

	return g.Wait()
}

// settle waits until no trigger arrives for d. It returns false if ctx ends first.
func settle(ctx context.Context, trigger <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-trigger:
			timer.Reset(d)
		case <-timer.C:
			return true
		}
	}
}

func isTranscriptEvent(ev fsnotify.Event) bool {
	if !strings.HasSuffix(ev.Name, ".jsonl") {
		return false
	}
	return ev.Op&(fsnotify.Create|fsnotify.Write) != 0
}
