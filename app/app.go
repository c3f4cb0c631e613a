// Package app wires the client components together from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jrsteele09/flashybank-client/api"
	"github.com/jrsteele09/flashybank-client/apiclient"
	"github.com/jrsteele09/flashybank-client/credentials"
	"github.com/jrsteele09/flashybank-client/internal/config"
	"github.com/jrsteele09/flashybank-client/notify"
	"github.com/jrsteele09/flashybank-client/quickmode"
	"github.com/jrsteele09/flashybank-client/session"
	"github.com/jrsteele09/flashybank-client/storage"
	"github.com/jrsteele09/flashybank-client/storage/filestore"
	"github.com/jrsteele09/flashybank-client/storage/memstore"
	"github.com/jrsteele09/flashybank-client/storage/redisstore"
	"github.com/jrsteele09/flashybank-client/theme"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// App is the set of services a host screen or the CLI talks to.
type App struct {
	Config      config.Config
	Log         zerolog.Logger
	Store       storage.Store
	Credentials *credentials.Store

	// API carries the bearer token and refreshes it on 401
	API       *api.Client
	Session   *session.Manager
	QuickMode *quickmode.Gate
	Theme     *theme.Preferences

	closers []func() error
}

type options struct {
	store     storage.Store
	notifier  notify.Notifier
	transport http.RoundTripper
}

type Option func(*options)

// WithStore uses store instead of the configured storage driver
func WithStore(store storage.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithNotifier sets where Quick Mode reminders go. Defaults to the logger.
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// WithTransport sets the round tripper under both HTTP clients
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

func New(ctx context.Context, cfg config.Config, log zerolog.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("[app.New] config is required")
	}
	o := options{
		notifier:  notify.NewLogNotifier(log),
		transport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Log: log}

	store := o.store
	if store == nil {
		var err error
		if store, err = a.openStore(ctx); err != nil {
			return nil, err
		}
	}
	a.Store = store
	a.Credentials = credentials.New(store)

	// auth endpoints and the refresh call itself bypass the token transport
	bare, err := api.NewClient(cfg.GetBaseURL(),
		api.WithHTTPClient(&http.Client{Transport: o.transport}),
		api.WithTimeout(cfg.GetRequestTimeout()))
	if err != nil {
		return nil, a.fail(err)
	}

	// the startup profile fetch carries the bearer but leaves refreshing to
	// the session manager, which allows a single refresh
	restoreTransport, err := apiclient.NewTransport(a.Credentials, nil,
		apiclient.WithBase(o.transport),
		apiclient.WithoutRefresh(),
	)
	if err != nil {
		return nil, a.fail(err)
	}
	restore, err := api.NewClient(cfg.GetBaseURL(), api.WithHTTPClient(restoreTransport.Client(cfg.GetRequestTimeout())))
	if err != nil {
		return nil, a.fail(err)
	}

	transport, err := apiclient.NewTransport(a.Credentials, bare,
		apiclient.WithBase(o.transport),
		apiclient.WithRateLimit(rate.Limit(cfg.GetRequestsPerSecond()), cfg.GetRequestBurst()),
		apiclient.WithLogger(log.With().Str("component", "apiclient").Logger()),
	)
	if err != nil {
		return nil, a.fail(err)
	}
	a.API, err = api.NewClient(cfg.GetBaseURL(), api.WithHTTPClient(transport.Client(cfg.GetRequestTimeout())))
	if err != nil {
		return nil, a.fail(err)
	}

	a.Session, err = session.NewManager(session.Deps{
		Auth:        bare,
		Users:       a.API,
		Restore:     restore,
		Credentials: a.Credentials,
	},
		session.WithLogger(log.With().Str("component", "session").Logger()),
		session.WithRememberLogin(cfg.GetRememberLogin()),
	)
	if err != nil {
		return nil, a.fail(err)
	}

	a.QuickMode, err = quickmode.NewGate(store, o.notifier,
		quickmode.WithDuration(cfg.GetQuickModeDuration()),
		quickmode.WithWarningLead(cfg.GetQuickModeWarningLead()),
		quickmode.WithPollInterval(cfg.GetQuickModePollInterval()),
		quickmode.WithLogger(log.With().Str("component", "quickmode").Logger()),
	)
	if err != nil {
		return nil, a.fail(err)
	}
	a.closers = append(a.closers, func() error { a.QuickMode.Close(); return nil })

	a.Theme, err = theme.NewPreferences(store, theme.WithLogger(log.With().Str("component", "theme").Logger()))
	if err != nil {
		return nil, a.fail(err)
	}
	a.closers = append(a.closers, func() error { a.Theme.Close(); return nil })

	return a, nil
}

func (a *App) openStore(ctx context.Context) (storage.Store, error) {
	switch driver := a.Config.GetStorageDriver(); driver {
	case config.StorageDriverMemory:
		return memstore.New(), nil
	case config.StorageDriverFile:
		fs, err := filestore.Open(a.Config.GetStoragePath(), a.Config.GetStoragePassphrase())
		if err != nil {
			return nil, fmt.Errorf("[app.New] open file store: %w", err)
		}
		return fs, nil
	case config.StorageDriverRedis:
		client, err := redisstore.Connect(ctx, a.Config.GetRedisAddr(), a.Config.GetRedisPassword(), a.Config.GetRedisDB())
		if err != nil {
			return nil, fmt.Errorf("[app.New] connect redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return redisstore.New(client, a.Config.GetRedisKeyPrefix()), nil
	default:
		return nil, fmt.Errorf("[app.New] unknown storage driver %q", driver)
	}
}

func (a *App) fail(err error) error {
	return errors.Join(fmt.Errorf("[app.New] %w", err), a.Close())
}

// Start restores persisted state: the session, Quick Mode and the theme, and
// schedules the theme auto mode. Failures to restore are logged; only a
// failing scheduler is returned.
func (a *App) Start(ctx context.Context) error {
	if err := a.Session.Initialize(ctx); err != nil {
		a.Log.Error().Err(err).Msg("restoring session")
	}
	if err := a.QuickMode.Load(ctx); err != nil {
		a.Log.Error().Err(err).Msg("restoring quick mode")
	}
	if err := a.Theme.Load(ctx); err != nil {
		a.Log.Error().Err(err).Msg("restoring theme")
	}
	if err := a.Theme.Start(); err != nil {
		return fmt.Errorf("[App.Start] %w", err)
	}
	return nil
}

// Close stops background work and releases the store, in reverse order of
// creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
