package console

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"conductor-console/internal/audit"
	"conductor-console/internal/auth/idtoken"
	"conductor-console/internal/auth/models"
	"conductor-console/internal/auth/projection"
	"conductor-console/internal/auth/session"
	"conductor-console/internal/auth/tokenstore"
	"conductor-console/internal/auth/watchdog"
	"conductor-console/internal/platform/metrics"
	"conductor-console/internal/storage"
	"conductor-console/pkg/requestcontext"
)

// Config wires the dependencies shared by every device.
type Config struct {
	Backend   session.Backend
	Validator idtoken.Validator
	// Durable backs each device's local storage; Transient its session storage.
	Durable   storage.Store
	Transient storage.Store

	Clock              clockwork.Clock
	InactivityTimeout  time.Duration
	ErrorRedirectDelay time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Auditor audit.Emitter
}

// Registry owns the in-memory environment of every browser device.
type Registry struct {
	cfg Config

	mu      sync.Mutex
	devices map[string]*Device
}

func NewRegistry(cfg Config) *Registry {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = watchdog.DefaultTimeout
	}
	if cfg.ErrorRedirectDelay <= 0 {
		cfg.ErrorRedirectDelay = session.DefaultErrorRedirectDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Auditor == nil {
		cfg.Auditor = audit.Nop{}
	}
	return &Registry{cfg: cfg, devices: make(map[string]*Device)}
}

// Device returns the environment for id, creating it on first use.
func (r *Registry) Device(id string) *Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		d = r.newDevice(id)
		r.devices[id] = d
	}
	d.touch(r.cfg.Clock.Now())
	return d
}

// Len reports how many devices are held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}

// Sweep drops devices that have no armed watchdog and were not seen for
// maxIdle. Durable storage is untouched, so a returning browser resumes.
func (r *Registry) Sweep(ctx context.Context, maxIdle time.Duration) int {
	cutoff := r.cfg.Clock.Now().Add(-maxIdle)

	r.mu.Lock()
	var stale []*Device
	for id, d := range r.devices {
		if d.watchdog.Running() || d.seenAfter(cutoff) {
			continue
		}
		stale = append(stale, d)
		delete(r.devices, id)
	}
	r.mu.Unlock()

	for _, d := range stale {
		if err := d.redirects.Clear(ctx); err != nil {
			r.cfg.Logger.WarnContext(ctx, "failed to clear session storage of evicted device", "device_id", d.ID, "error", err)
		}
	}
	return len(stale)
}

// Run sweeps idle devices every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	ticker := r.cfg.Clock.NewTicker(interval)
	defer ticker.Stop()
	maxIdle := 2 * r.cfg.InactivityTimeout
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if n := r.Sweep(ctx, maxIdle); n > 0 {
				r.cfg.Logger.DebugContext(ctx, "evicted idle devices", "count", n)
			}
		}
	}
}

// Close disarms every watchdog.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.devices {
		d.watchdog.Stop()
	}
}

func (r *Registry) newDevice(id string) *Device {
	cfg := r.cfg
	durable := storage.NewPrefixed(cfg.Durable, "device:"+id)
	transient := storage.NewPrefixed(cfg.Transient, "device:"+id+":session")

	d := &Device{
		ID:        id,
		state:     projection.NewStore(),
		feed:      watchdog.NewFeed(),
		deferred:  &DeferredNavigator{},
		redirects: tokenstore.NewPendingRedirect(transient),
		logger:    cfg.Logger.With("device_id", id),
	}
	d.orch = session.New(
		cfg.Backend,
		tokenstore.New(durable, tokenstore.WithClock(cfg.Clock)),
		d.redirects,
		d.state,
		cfg.Validator,
		session.WithLogger(d.logger),
		session.WithMetrics(cfg.Metrics),
		session.WithAuditor(cfg.Auditor),
		session.WithErrorRedirectDelay(cfg.ErrorRedirectDelay),
	)
	d.watchdog = watchdog.New(d.expire,
		watchdog.WithClock(cfg.Clock),
		watchdog.WithTimeout(cfg.InactivityTimeout),
	)
	return d
}

// Device is one browser: its orchestrator, projection, interaction feed and
// inactivity watchdog.
type Device struct {
	ID string

	orch      *session.Orchestrator
	state     *projection.Store
	redirects *tokenstore.PendingRedirect
	feed      *watchdog.Feed
	watchdog  *watchdog.Watchdog
	deferred  *DeferredNavigator
	logger    *slog.Logger

	mu       sync.Mutex
	location *url.URL
	lastSeen time.Time
}

// Load runs the page-load decision for loc. Navigation, if any, is left on
// the returned navigator for the caller to write.
func (d *Device) Load(ctx context.Context, loc *url.URL) (*ResponseNavigator, models.Phase, error) {
	d.setLocation(loc)
	nav := &ResponseNavigator{}
	phase, err := d.orch.Start(ctx, loc, nav)
	if next := nav.Pending(); next != nil {
		// The browser leaves loc; follow it when it stays on the console.
		if u, perr := loc.Parse(next.URL); perr == nil && u.Host == loc.Host {
			d.setLocation(u)
		}
	}

	if phase == models.PhaseAuthorized {
		if d.watchdog.Running() {
			d.feed.Publish(watchdog.EventLoad)
		} else {
			d.watchdog.Start(d.feed)
		}
	} else {
		d.watchdog.Stop()
	}
	return nav, phase, err
}

// Logout ends the session on request.
func (d *Device) Logout(ctx context.Context, loc *url.URL) (*ResponseNavigator, error) {
	d.watchdog.Stop()
	nav := &ResponseNavigator{}
	err := d.orch.Logout(ctx, loc, nav)
	return nav, err
}

// Activity feeds an interaction event to the watchdog.
func (d *Device) Activity(kind watchdog.EventKind) {
	d.feed.Publish(kind)
}

// Snapshot returns the projected session.
func (d *Device) Snapshot() projection.State {
	return d.state.Snapshot()
}

// TakeNavigation returns a navigation decided while no request was in
// flight, such as the sign-out after an inactivity timeout.
func (d *Device) TakeNavigation() *Navigation {
	return d.deferred.Take()
}

// WatchdogRemaining is the time left before the inactivity logout.
func (d *Device) WatchdogRemaining() time.Duration {
	return d.watchdog.Remaining()
}

func (d *Device) expire(idle time.Duration) {
	ctx := requestcontext.WithDeviceID(context.Background(), d.ID)
	if err := d.orch.ExpireInactive(ctx, d.currentLocation(), idle, d.deferred); err != nil {
		d.logger.WarnContext(ctx, "inactivity logout finished with error", "error", err)
	}
}

func (d *Device) setLocation(loc *url.URL) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := *loc
	d.location = &c
}

func (d *Device) currentLocation() *url.URL {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.location == nil {
		return &url.URL{Path: "/"}
	}
	c := *d.location
	return &c
}

func (d *Device) touch(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastSeen = now
}

func (d *Device) seenAfter(t time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSeen.After(t)
}
