package hwc

import (
	"sync"
	"time"
)

// IdleWatchdog fires a one-shot callback after a quiet period.
//
// Arm starts or restarts the countdown; Disarm cancels it. Implementations
// must be safe to call from the display thread while the callback runs on
// another goroutine.
type IdleWatchdog interface {
	Arm(d time.Duration, fn func())
	Disarm()
}

// IdleTimer is the default [IdleWatchdog], built on a single reusable
// [time.Timer].
type IdleTimer struct {
	mu    sync.Mutex
	timer *time.Timer
	fn    func()
}

// NewIdleTimer returns a disarmed idle timer.
func NewIdleTimer() *IdleTimer { return &IdleTimer{} }

// Arm implements IdleWatchdog. Re-arming replaces the pending callback.
func (w *IdleTimer) Arm(d time.Duration, fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fn = fn
	if w.timer == nil {
		w.timer = time.AfterFunc(d, w.fire)
		return
	}
	w.timer.Reset(d)
}

// Disarm implements IdleWatchdog.
func (w *IdleTimer) Disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *IdleTimer) fire() {
	w.mu.Lock()
	fn := w.fn
	w.mu.Unlock()
	if fn != nil {
		fn()
	}
}

var _ IdleWatchdog = (*IdleTimer)(nil)
