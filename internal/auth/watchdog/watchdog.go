// Package watchdog ends idle sessions: any interaction restarts a single
// countdown, and expiry invokes a timeout callback exactly once.
package watchdog

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultTimeout is the idle period after which the session is ended.
const DefaultTimeout = 30 * time.Minute

// EventKind is a class of user interaction.
type EventKind string

const (
	EventLoad        EventKind = "load"
	EventPointerMove EventKind = "mousemove"
	EventPointerDown EventKind = "mousedown"
	EventClick       EventKind = "click"
	EventKeyPress    EventKind = "keypress"
	EventScroll      EventKind = "scroll"
	EventTouchStart  EventKind = "touchstart"
)

// InteractionEvents lists every event kind that resets the countdown.
var InteractionEvents = []EventKind{
	EventLoad,
	EventPointerMove,
	EventPointerDown,
	EventClick,
	EventKeyPress,
	EventScroll,
	EventTouchStart,
}

// Known reports whether kind resets the countdown.
func Known(kind EventKind) bool {
	for _, k := range InteractionEvents {
		if k == kind {
			return true
		}
	}
	return false
}

// Source delivers interaction events. Subscribe returns a function that
// removes the handler.
type Source interface {
	Subscribe(handler func(EventKind)) (unsubscribe func())
}

// TimeoutFunc runs once when the countdown expires. idle is how long the
// session went without interaction.
type TimeoutFunc func(idle time.Duration)

// Watchdog owns one timer and the sources feeding it.
type Watchdog struct {
	clock     clockwork.Clock
	timeout   time.Duration
	onTimeout TimeoutFunc

	mu           sync.Mutex
	timer        clockwork.Timer
	generation   uint64
	running      bool
	lastActivity time.Time
	unsubscribe  []func()
}

// Option configures a Watchdog.
type Option func(*Watchdog)

func WithClock(clock clockwork.Clock) Option {
	return func(w *Watchdog) {
		if clock != nil {
			w.clock = clock
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(w *Watchdog) {
		if d > 0 {
			w.timeout = d
		}
	}
}

func New(onTimeout TimeoutFunc, opts ...Option) *Watchdog {
	w := &Watchdog{
		clock:     clockwork.NewRealClock(),
		timeout:   DefaultTimeout,
		onTimeout: onTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Start subscribes to sources and arms the countdown. Starting a running
// watchdog only adds the sources and restarts the countdown.
func (w *Watchdog) Start(sources ...Source) {
	w.mu.Lock()
	w.running = true
	w.armLocked()
	w.mu.Unlock()

	for _, src := range sources {
		w.Attach(src)
	}
}

// Attach subscribes one more source.
func (w *Watchdog) Attach(src Source) {
	if src == nil {
		return
	}
	unsub := src.Subscribe(w.Notify)
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		unsub()
		return
	}
	w.unsubscribe = append(w.unsubscribe, unsub)
}

// Notify records an interaction and restarts the countdown. Unknown kinds
// and calls on a stopped or spent watchdog are ignored.
func (w *Watchdog) Notify(kind EventKind) {
	if !Known(kind) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.armLocked()
}

// Reset restarts the countdown as if an interaction had happened.
func (w *Watchdog) Reset() {
	w.Notify(EventLoad)
}

// Stop cancels the countdown and unsubscribes every source.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	unsubs := w.disarmLocked()
	w.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
}

// Running reports whether a countdown is armed.
func (w *Watchdog) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Remaining is the time left before expiry, or zero when not running.
func (w *Watchdog) Remaining() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return 0
	}
	left := w.timeout - w.clock.Since(w.lastActivity)
	if left < 0 {
		return 0
	}
	return left
}

// armLocked replaces the countdown. The generation guard keeps a timer that
// already fired but lost the race for the lock from acting.
func (w *Watchdog) armLocked() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.generation++
	gen := w.generation
	w.lastActivity = w.clock.Now()
	w.timer = w.clock.AfterFunc(w.timeout, func() { w.fire(gen) })
}

func (w *Watchdog) disarmLocked() []func() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.generation++
	w.running = false
	unsubs := w.unsubscribe
	w.unsubscribe = nil
	return unsubs
}

func (w *Watchdog) fire(gen uint64) {
	w.mu.Lock()
	if !w.running || gen != w.generation {
		w.mu.Unlock()
		return
	}
	idle := w.clock.Since(w.lastActivity)
	unsubs := w.disarmLocked()
	w.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if w.onTimeout != nil {
		w.onTimeout(idle)
	}
}
