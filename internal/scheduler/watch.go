package scheduler

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"taskd/internal/store"
	logx "taskd/pkg/logx"
)

// watch runs the store change watcher until ctx is cancelled.
//
// When fsnotify gets into a bad state the watcher may stop delivering
// events or close its channels. Self-heal by recreating the watcher with a
// small jittered exponential backoff; after every (re)start a full
// reconcile runs to catch anything that happened while blind.
func (s *Service) watch(ctx context.Context) error {
	dir := s.st.Dir()

	const (
		restartBackoffBase = 250 * time.Millisecond
		restartBackoffMax  = 5 * time.Second
	)
	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	sleep := func() bool {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		if backoff < restartBackoffMax {
			backoff *= 2
			if backoff > restartBackoffMax {
				backoff = restartBackoffMax
			}
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
			return true
		}
	}

	first := true
	for {
		if ctx.Err() != nil {
			return nil
		}

		w, err := fsnotify.NewWatcher()
		if err != nil {
			s.log.Warn("store watch init failed", logx.Err(err), logx.String("dir", dir))
			if !sleep() {
				return nil
			}
			continue
		}
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			s.log.Warn("store watch add failed", logx.Err(err), logx.String("dir", dir))
			if !sleep() {
				return nil
			}
			continue
		}

		backoff = restartBackoffBase
		s.log.Debug("store watcher started", logx.String("dir", dir))
		if first {
			first = false
		} else {
			// Catch up on whatever changed while the watcher was down.
			s.reconcileAll(ctx)
		}

		// inner loop: runs until the watcher breaks, then the outer loop
		// recreates it.
		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				// Event kinds are deliberately not distinguished: every
				// notification means "re-check this name against the file's
				// current state". Re-checks are cheap and idempotent.
				if store.IsRecordPath(ev.Name) &&
					ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
					s.reconcilePath(ctx, ev.Name)
				}
			case err, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if err == nil {
					continue
				}
				// Overflow means events may have been dropped; a full
				// reconcile restores consistency.
				if strings.Contains(strings.ToLower(err.Error()), "overflow") {
					s.log.Warn("store watch overflow; forcing rescan", logx.Err(err), logx.String("dir", dir))
					s.reconcileAll(ctx)
					continue
				}
				s.log.Warn("store watch error", logx.Err(err), logx.String("dir", dir))
				if strings.Contains(strings.ToLower(err.Error()), "closed") {
					broken = true
					break
				}
			}
		}

		_ = w.Close()
		if ctx.Err() != nil {
			return nil
		}
		s.log.Warn("store watcher stopped; restarting", logx.String("dir", dir))
		if !sleep() {
			return nil
		}
	}
}
