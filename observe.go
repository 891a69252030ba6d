package fitview

import (
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lucasjlepore/fitview/settings"
)

// LoadingNotifier receives progress and outcome notifications for a decode.
type LoadingNotifier interface {
	// UpdateLoadingProgress reports a checkpoint in [0, 100].
	UpdateLoadingProgress(percent int) error
	HandleFileLoadingError(err *FitDecodeError, details any) error
	HandleFileLoaded(result *Result) error
}

// PerformanceMonitor times decodes by key.
type PerformanceMonitor interface {
	StartTimer(key string) error
	// EndTimer stops the timer for key and returns its elapsed time.
	EndTimer(key string) (time.Duration, error)
}

// Collaborators are the externally owned services a Decoder reports to.
// Any field may be nil.
type Collaborators struct {
	Settings settings.Store
	Loading  LoadingNotifier
	Perf     PerformanceMonitor
}

// hooks wraps one call's snapshot of the collaborators. Every notification
// is isolated: an error or panic from a collaborator is logged and dropped.
type hooks struct {
	c      Collaborators
	logger *zap.Logger
}

func (h hooks) progress(percent int) {
	if h.c.Loading == nil {
		return
	}
	h.notify("progress", func() error { return h.c.Loading.UpdateLoadingProgress(percent) })
}

func (h hooks) loadingError(err *FitDecodeError) {
	if h.c.Loading == nil {
		return
	}
	h.notify("loading error", func() error { return h.c.Loading.HandleFileLoadingError(err, err.Details) })
}

func (h hooks) loaded(res *Result) {
	if h.c.Loading == nil {
		return
	}
	h.notify("loaded", func() error { return h.c.Loading.HandleFileLoaded(res) })
}

// startTimer reports whether a timer is running for key afterwards.
func (h hooks) startTimer(key string) bool {
	if h.c.Perf == nil {
		return false
	}
	return h.notify("start timer", func() error { return h.c.Perf.StartTimer(key) })
}

func (h hooks) notify(name string, fn func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("observer hook panicked", zap.String("hook", name), zap.Any("panic", r))
			ok = false
		}
	}()
	if err := fn(); err != nil {
		h.logger.Warn("observer hook failed", zap.String("hook", name), zap.Error(err))
		return false
	}
	return true
}

// stopTimer is not isolated: its error is returned to the caller.
func (h hooks) stopTimer(key string) (elapsed time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("stop timer %s: panic: %v", key, r)
		}
	}()
	elapsed, err = h.c.Perf.EndTimer(key)
	return elapsed, errors.Wrapf(err, "stop timer %s", key)
}
