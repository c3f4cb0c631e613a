// Package quickmode implements Quick Mode: a renewable, time boxed window of
// elevated access that survives restarts and reminds the user shortly before
// it runs out.
package quickmode

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/jrsteele09/flashybank-client/internal/observe"
	"github.com/jrsteele09/flashybank-client/notify"
	"github.com/jrsteele09/flashybank-client/storage"
	"github.com/rs/zerolog"
)

const (
	DefaultDuration     = 2 * time.Hour
	DefaultWarningLead  = 30 * time.Minute
	DefaultPollInterval = time.Second

	// EndTimeKey holds the expiry as decimal epoch milliseconds
	EndTimeKey = "quickModeEndTime"

	// the reminder fires on the first tick inside (lead-window, lead]
	warningWindow = time.Minute
)

// State is a snapshot of the gate. EndTime and Remaining are zero when
// disabled.
type State struct {
	Enabled   bool
	EndTime   time.Time
	Remaining time.Duration
}

type Gate struct {
	store    storage.Store
	notifier notify.Notifier
	nowTime  func() time.Time
	log      zerolog.Logger

	duration     time.Duration
	warningLead  time.Duration
	pollInterval time.Duration

	lock        sync.Mutex
	enabled     bool
	endTime     time.Time
	warningSent bool
	stop        chan struct{}
	closed      bool
	wg          sync.WaitGroup

	events observe.Broadcaster[State]
}

type GateOption func(*Gate)

// WithNowTime sets the clock (primarily for testing)
func WithNowTime(nowFunc func() time.Time) GateOption {
	return func(g *Gate) {
		g.nowTime = nowFunc
	}
}

func WithDuration(d time.Duration) GateOption {
	return func(g *Gate) {
		g.duration = d
	}
}

func WithWarningLead(d time.Duration) GateOption {
	return func(g *Gate) {
		g.warningLead = d
	}
}

func WithPollInterval(d time.Duration) GateOption {
	return func(g *Gate) {
		g.pollInterval = d
	}
}

func WithLogger(log zerolog.Logger) GateOption {
	return func(g *Gate) {
		g.log = log
	}
}

func NewGate(store storage.Store, notifier notify.Notifier, options ...GateOption) (*Gate, error) {
	if store == nil {
		return nil, errors.New("[NewGate] store is required")
	}
	if notifier == nil {
		return nil, errors.New("[NewGate] notifier is required")
	}

	g := &Gate{
		store:        store,
		notifier:     notifier,
		nowTime:      time.Now,
		log:          zerolog.Nop(),
		duration:     DefaultDuration,
		warningLead:  DefaultWarningLead,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range options {
		opt(g)
	}

	if g.duration <= 0 {
		return nil, errors.New("[NewGate] duration must be positive")
	}
	if g.warningLead <= 0 || g.warningLead >= g.duration {
		return nil, errors.New("[NewGate] warning lead must be positive and shorter than the duration")
	}
	if g.pollInterval <= 0 {
		return nil, errors.New("[NewGate] poll interval must be positive")
	}
	return g, nil
}

// Load restores Quick Mode after a restart. A persisted expiry in the future
// activates the gate; anything else found under the key is removed.
func (g *Gate) Load(ctx context.Context) error {
	raw, err := g.store.Get(ctx, EndTimeKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		g.log.Error().Err(err).Msg("loading quick mode state")
		return fmt.Errorf("[Gate.Load] %w", err)
	}

	g.lock.Lock()
	ms, parseErr := strconv.ParseInt(raw, 10, 64)
	if parseErr != nil || !g.nowTime().Before(time.UnixMilli(ms)) {
		if parseErr != nil {
			g.log.Warn().Str("value", raw).Msg("discarding unreadable quick mode expiry")
		}
		err = g.clearLocked(ctx)
		s := g.stateLocked()
		g.lock.Unlock()

		g.events.Publish(s)
		return err
	}

	g.enabled = true
	g.endTime = time.UnixMilli(ms)
	g.warningSent = false
	g.startPollingLocked()
	s := g.stateLocked()
	g.lock.Unlock()

	g.events.Publish(s)
	return nil
}

// Enable starts Quick Mode for the configured duration.
func (g *Gate) Enable(ctx context.Context) error {
	return g.activate(ctx, "Enable")
}

// Extend restarts the window from now and re-arms the reminder. Extending a
// disabled gate enables it.
func (g *Gate) Extend(ctx context.Context) error {
	return g.activate(ctx, "Extend")
}

func (g *Gate) activate(ctx context.Context, op string) error {
	g.lock.Lock()
	g.enabled = true
	g.endTime = g.nowTime().Add(g.duration)
	g.warningSent = false
	err := g.store.Set(ctx, EndTimeKey, strconv.FormatInt(g.endTime.UnixMilli(), 10))
	g.startPollingLocked()
	s := g.stateLocked()
	g.lock.Unlock()

	g.events.Publish(s)
	if err != nil {
		g.log.Error().Err(err).Str("op", op).Msg("persisting quick mode expiry")
		return fmt.Errorf("[Gate.%s] %w", op, err)
	}
	return nil
}

// Disable leaves Quick Mode. It does nothing when already disabled.
func (g *Gate) Disable(ctx context.Context) error {
	g.lock.Lock()
	if !g.enabled {
		g.lock.Unlock()
		return nil
	}
	err := g.clearLocked(ctx)
	s := g.stateLocked()
	g.lock.Unlock()

	g.events.Publish(s)
	return err
}

// Resume is called when the host returns to the foreground. An expiry that
// passed while in the background is applied immediately.
func (g *Gate) Resume(ctx context.Context) error {
	return g.evaluate(ctx, false)
}

// Tick runs one poll: it expires the gate when the window is over and sends
// the reminder once when the window enters its final stretch.
func (g *Gate) Tick(ctx context.Context) error {
	return g.evaluate(ctx, true)
}

func (g *Gate) evaluate(ctx context.Context, remind bool) error {
	g.lock.Lock()
	if !g.enabled {
		g.lock.Unlock()
		return nil
	}

	remaining := g.endTime.Sub(g.nowTime())
	if remaining <= 0 {
		err := g.clearLocked(ctx)
		s := g.stateLocked()
		g.lock.Unlock()

		g.log.Info().Msg("quick mode expired")
		g.events.Publish(s)
		return err
	}

	minutes := 0
	if remind && !g.warningSent && remaining <= g.warningLead && remaining > g.warningLead-warningWindow {
		g.warningSent = true
		minutes = int(math.Ceil(remaining.Minutes()))
	}
	s := g.stateLocked()
	g.lock.Unlock()

	if minutes > 0 {
		if err := g.notifier.Notify(ctx, notify.QuickModeEnding(minutes)); err != nil {
			g.log.Error().Err(err).Msg("sending quick mode reminder")
		}
	}
	g.events.Publish(s)
	return nil
}

// clearLocked disables the gate and removes the persisted expiry. The
// in-memory state changes even when the store fails.
func (g *Gate) clearLocked(ctx context.Context) error {
	g.enabled = false
	g.endTime = time.Time{}
	g.warningSent = false
	g.stopPollingLocked()

	if err := g.store.Delete(ctx, EndTimeKey); err != nil {
		g.log.Error().Err(err).Msg("clearing quick mode expiry")
		return fmt.Errorf("[Gate] clear: %w", err)
	}
	return nil
}

func (g *Gate) startPollingLocked() {
	if g.stop != nil || g.closed {
		return
	}
	stop := make(chan struct{})
	g.stop = stop
	g.wg.Add(1)
	go g.poll(stop)
}

// stopPollingLocked signals the poller without waiting, so it is safe to
// call from the poller itself.
func (g *Gate) stopPollingLocked() {
	if g.stop != nil {
		close(g.stop)
		g.stop = nil
	}
}

func (g *Gate) poll(stop <-chan struct{}) {
	defer g.wg.Done()
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_ = g.Tick(context.Background())
		}
	}
}

// Close stops polling and waits for the poller to exit. The persisted
// expiry is kept so the next Load picks it up.
func (g *Gate) Close() {
	g.lock.Lock()
	g.closed = true
	g.stopPollingLocked()
	g.lock.Unlock()

	g.wg.Wait()
}

func (g *Gate) State() State {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.stateLocked()
}

func (g *Gate) stateLocked() State {
	if !g.enabled {
		return State{}
	}
	return State{
		Enabled:   true,
		EndTime:   g.endTime,
		Remaining: max(g.endTime.Sub(g.nowTime()), 0),
	}
}

// Subscribe calls fn with the state after every transition and poll.
func (g *Gate) Subscribe(fn func(State)) func() {
	return g.events.Subscribe(fn)
}

// FormatRemaining renders the remaining time, or "" when disabled.
func (g *Gate) FormatRemaining() string {
	s := g.State()
	if !s.Enabled {
		return ""
	}
	return FormatRemaining(s.Remaining)
}

// FormatRemaining renders d as "1h 45min" or "12 minutes".
func FormatRemaining(d time.Duration) string {
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dmin", hours, minutes)
	case minutes == 1:
		return "1 minute"
	case minutes == 0:
		return "less than a minute"
	default:
		return fmt.Sprintf("%d minutes", minutes)
	}
}
