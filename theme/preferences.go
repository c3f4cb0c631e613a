package theme

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/flashybank-client/internal/errors"
	"github.com/jrsteele09/flashybank-client/internal/observe"
	"github.com/jrsteele09/flashybank-client/storage"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Keys the preferences are persisted under
const (
	ThemeKey    = "theme"
	DarkModeKey = "darkMode"
	AutoModeKey = "autoMode"
)

// Auto mode is dark from DarkFrom until LightFrom (local hours)
const (
	DarkFrom  = 19
	LightFrom = 6
)

// re-evaluate auto mode at the start of every minute
const autoModeSchedule = "0 * * * * *"

type Settings struct {
	ThemeID  string
	DarkMode bool
	AutoMode bool
}

// Palette resolves the colours for the settings
func (s Settings) Palette() Palette {
	return PaletteFor(s.ThemeID, s.DarkMode)
}

// Preferences owns the appearance settings. A failed write leaves the
// in-memory settings unchanged.
type Preferences struct {
	store   storage.Store
	nowTime func() time.Time
	log     zerolog.Logger

	lock     sync.RWMutex
	settings Settings
	cron     *cron.Cron

	events observe.Broadcaster[Settings]
}

type PreferencesOption func(*Preferences)

// WithNowTime sets the clock (primarily for testing)
func WithNowTime(nowFunc func() time.Time) PreferencesOption {
	return func(p *Preferences) {
		p.nowTime = nowFunc
	}
}

func WithLogger(log zerolog.Logger) PreferencesOption {
	return func(p *Preferences) {
		p.log = log
	}
}

func NewPreferences(store storage.Store, options ...PreferencesOption) (*Preferences, error) {
	if store == nil {
		return nil, errors.New("[NewPreferences] store is required")
	}
	p := &Preferences{
		store:    store,
		nowTime:  time.Now,
		log:      zerolog.Nop(),
		settings: Settings{ThemeID: DefaultThemeID},
	}
	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

func (p *Preferences) Settings() Settings {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.settings
}

func (p *Preferences) Subscribe(fn func(Settings)) func() {
	return p.events.Subscribe(fn)
}

// Load reads the persisted settings. On first run the app starts in light
// mode with auto mode off.
func (p *Preferences) Load(ctx context.Context) error {
	themeID, err := p.get(ctx, ThemeKey)
	if err != nil {
		return err
	}
	autoMode, err := p.get(ctx, AutoModeKey)
	if err != nil {
		return err
	}
	darkMode, err := p.get(ctx, DarkModeKey)
	if err != nil {
		return err
	}

	s := Settings{ThemeID: DefaultThemeID}
	if _, ok := Lookup(themeID); ok {
		s.ThemeID = themeID
	}
	if autoMode != "" {
		s.AutoMode, _ = strconv.ParseBool(autoMode)
		switch {
		case s.AutoMode:
			s.DarkMode = p.darkNow()
		case darkMode != "":
			s.DarkMode, _ = strconv.ParseBool(darkMode)
		}
	}

	p.set(s)
	return nil
}

// SetTheme switches to a known theme
func (p *Preferences) SetTheme(ctx context.Context, id string) error {
	if _, ok := Lookup(id); !ok {
		return apperrors.Wrapf(apperrors.ErrInvalidTheme, "[Preferences.SetTheme] %q", id)
	}
	if err := p.store.Set(ctx, ThemeKey, id); err != nil {
		p.log.Error().Err(err).Msg("saving theme")
		return fmt.Errorf("[Preferences.SetTheme] %w", err)
	}

	s := p.Settings()
	s.ThemeID = id
	p.set(s)
	return nil
}

// ToggleDarkMode flips dark mode by hand, which turns auto mode off
func (p *Preferences) ToggleDarkMode(ctx context.Context) error {
	s := p.Settings()
	s.AutoMode = false
	s.DarkMode = !s.DarkMode

	if err := p.store.Set(ctx, AutoModeKey, strconv.FormatBool(s.AutoMode)); err != nil {
		p.log.Error().Err(err).Msg("saving auto mode")
		return fmt.Errorf("[Preferences.ToggleDarkMode] %w", err)
	}
	if err := p.store.Set(ctx, DarkModeKey, strconv.FormatBool(s.DarkMode)); err != nil {
		p.log.Error().Err(err).Msg("saving dark mode")
		return fmt.Errorf("[Preferences.ToggleDarkMode] %w", err)
	}

	p.set(s)
	return nil
}

// ToggleAutoMode flips auto mode. Turning it on applies the time of day at
// once.
func (p *Preferences) ToggleAutoMode(ctx context.Context) error {
	s := p.Settings()
	s.AutoMode = !s.AutoMode

	if err := p.store.Set(ctx, AutoModeKey, strconv.FormatBool(s.AutoMode)); err != nil {
		p.log.Error().Err(err).Msg("saving auto mode")
		return fmt.Errorf("[Preferences.ToggleAutoMode] %w", err)
	}
	if s.AutoMode {
		s.DarkMode = p.darkNow()
	}

	p.set(s)
	return nil
}

// CheckTimeOfDay applies the time of day when auto mode is on.
func (p *Preferences) CheckTimeOfDay() {
	p.lock.Lock()
	if !p.settings.AutoMode || p.settings.DarkMode == p.darkNow() {
		p.lock.Unlock()
		return
	}
	p.settings.DarkMode = !p.settings.DarkMode
	s := p.settings
	p.lock.Unlock()

	p.log.Debug().Bool("dark", s.DarkMode).Msg("auto mode switched appearance")
	p.events.Publish(s)
}

// Start schedules the auto mode check every minute
func (p *Preferences) Start() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.cron != nil {
		return nil
	}
	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(autoModeSchedule, p.CheckTimeOfDay); err != nil {
		return fmt.Errorf("[Preferences.Start] %w", err)
	}
	c.Start()
	p.cron = c
	return nil
}

// Close stops the schedule and waits for a running check to finish
func (p *Preferences) Close() {
	p.lock.Lock()
	c := p.cron
	p.cron = nil
	p.lock.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

func (p *Preferences) darkNow() bool {
	hour := p.nowTime().Hour()
	return hour >= DarkFrom || hour < LightFrom
}

func (p *Preferences) set(s Settings) {
	p.lock.Lock()
	changed := p.settings != s
	p.settings = s
	p.lock.Unlock()

	if changed {
		p.events.Publish(s)
	}
}

func (p *Preferences) get(ctx context.Context, key string) (string, error) {
	v, err := p.store.Get(ctx, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return "", nil
	case err != nil:
		p.log.Error().Err(err).Str("key", key).Msg("loading preferences")
		return "", fmt.Errorf("[Preferences.Load] %s: %w", key, err)
	}
	return v, nil
}
