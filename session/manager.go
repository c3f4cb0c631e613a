// Package session owns the signed-in state of the client: who the user is,
// whether they are authenticated, and the credential pair behind it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jrsteele09/flashybank-client/api"
	"github.com/jrsteele09/flashybank-client/credentials"
	apperrors "github.com/jrsteele09/flashybank-client/internal/errors"
	"github.com/jrsteele09/flashybank-client/internal/observe"
	"github.com/rs/zerolog"
)

// Fallback messages used when the backend gives no reason.
const (
	LoginFailedMessage        = "Login failed"
	RegistrationFailedMessage = "Registration failed"
	UpdateFailedMessage       = "Could not update profile"
	NoSavedLoginMessage       = "No saved login"
)

// AuthAPI are the unauthenticated auth endpoints. Implementations must not
// route through the token-refresh transport.
type AuthAPI interface {
	Login(ctx context.Context, username, password string) (*api.AuthResponse, error)
	Register(ctx context.Context, username, password string) (*api.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*api.AuthResponse, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
}

// UsersAPI are the bearer-authenticated profile endpoints.
type UsersAPI interface {
	Profile(ctx context.Context) (*api.Profile, error)
	UpdateProfile(ctx context.Context, username string) (*api.Profile, error)
}

// State is a snapshot of the session. User is nil when unauthenticated.
type State struct {
	User            *api.Profile
	IsAuthenticated bool
	IsLoading       bool
}

// Result is what user-initiated operations report back to a screen
type Result struct {
	Success bool
	Error   string
}

func failed(msg string) Result {
	return Result{Success: false, Error: msg}
}

// Deps holds the collaborators of a Manager
type Deps struct {
	Auth        AuthAPI
	Users       UsersAPI
	Credentials *credentials.Store

	// Restore fetches the profile during Initialize. It must attach the
	// stored bearer without refreshing it, since Initialize performs the one
	// refresh itself. Users is used when it is nil.
	Restore UsersAPI
}

// Manager is the single writer of the session state and the credential pair.
type Manager struct {
	auth          AuthAPI
	users         UsersAPI
	restore       UsersAPI
	creds         *credentials.Store
	log           zerolog.Logger
	rememberLogin bool

	lock   sync.RWMutex
	state  State
	events observe.Broadcaster[State]
}

type ManagerOption func(*Manager)

func WithLogger(log zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = log
	}
}

// WithRememberLogin keeps the last successful interactive login so it can be
// replayed by LoginWithSavedCredentials.
func WithRememberLogin(remember bool) ManagerOption {
	return func(m *Manager) {
		m.rememberLogin = remember
	}
}

func NewManager(deps Deps, options ...ManagerOption) (*Manager, error) {
	if deps.Auth == nil {
		return nil, errors.New("[NewManager] auth API is required")
	}
	if deps.Users == nil {
		return nil, errors.New("[NewManager] users API is required")
	}
	if deps.Credentials == nil {
		return nil, errors.New("[NewManager] credential store is required")
	}

	m := &Manager{
		auth:    deps.Auth,
		users:   deps.Users,
		restore: deps.Restore,
		creds:   deps.Credentials,
		log:     zerolog.Nop(),
		state:   State{IsLoading: true},
	}
	if m.restore == nil {
		m.restore = deps.Users
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// State returns the current snapshot
func (m *Manager) State() State {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.state
}

// Subscribe calls fn with every new state until the returned func is called.
func (m *Manager) Subscribe(fn func(State)) func() {
	return m.events.Subscribe(fn)
}

func (m *Manager) update(fn func(*State)) {
	m.lock.Lock()
	fn(&m.state)
	s := m.state
	m.lock.Unlock()

	m.events.Publish(s)
}

func (m *Manager) setLoading(loading bool) {
	m.update(func(s *State) { s.IsLoading = loading })
}

func (m *Manager) signedIn(user *api.Profile) {
	m.update(func(s *State) {
		s.User = user
		s.IsAuthenticated = true
		s.IsLoading = false
	})
}

func (m *Manager) signedOut() {
	m.update(func(s *State) {
		*s = State{}
	})
}

// Initialize restores the session from stored credentials. Without stored
// credentials no request is made. A rejected access token is refreshed once
// and the profile fetched once more; if that does not succeed the credentials
// are deleted. Initialize always leaves the manager out of the loading state.
func (m *Manager) Initialize(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Msg("initializing session")
			err = fmt.Errorf("[Manager.Initialize] panic: %v", r)
			m.signedOut()
		}
	}()

	has, err := m.creds.HasTokens(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("reading stored credentials")
		m.signedOut()
		return fmt.Errorf("[Manager.Initialize] %w", err)
	}
	if !has {
		m.signedOut()
		return nil
	}

	profile, err := m.restore.Profile(ctx)
	if api.IsUnauthorized(err) {
		profile, err = m.refreshAndRetry(ctx)
	}
	if err != nil {
		m.log.Info().Err(err).Msg("stored session is no longer valid")
		m.clearCredentials(ctx)
		m.signedOut()
		return nil
	}

	m.signedIn(profile)
	return nil
}

func (m *Manager) refreshAndRetry(ctx context.Context) (*api.Profile, error) {
	refreshToken, err := m.creds.RefreshToken(ctx)
	if err != nil {
		return nil, err
	}
	if refreshToken == "" {
		return nil, apperrors.ErrNoRefreshToken
	}

	resp, err := m.auth.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrRefreshFailed, err)
	}
	if err := m.creds.Save(ctx, resp.Token()); err != nil {
		return nil, err
	}
	return m.restore.Profile(ctx)
}

// Login signs in with a username and password.
func (m *Manager) Login(ctx context.Context, username, password string) Result {
	res := m.authenticate(ctx, m.auth.Login, username, password, LoginFailedMessage)
	if res.Success && m.rememberLogin {
		if err := m.creds.SaveLogin(ctx, username, password); err != nil {
			m.log.Error().Err(err).Msg("saving login")
		}
	}
	return res
}

// Register creates an account and signs it in.
func (m *Manager) Register(ctx context.Context, username, password string) Result {
	return m.authenticate(ctx, m.auth.Register, username, password, RegistrationFailedMessage)
}

// LoginWithSavedCredentials replays the saved login, typically after the host
// confirmed the user with a biometric prompt.
func (m *Manager) LoginWithSavedCredentials(ctx context.Context) Result {
	username, password, err := m.creds.SavedLogin(ctx)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrNoSavedLogin) {
			m.log.Error().Err(err).Msg("reading saved login")
		}
		return failed(NoSavedLoginMessage)
	}
	return m.authenticate(ctx, m.auth.Login, username, password, LoginFailedMessage)
}

type authenticator func(ctx context.Context, username, password string) (*api.AuthResponse, error)

func (m *Manager) authenticate(ctx context.Context, call authenticator, username, password, fallback string) (res Result) {
	m.setLoading(true)
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Msg("authenticating")
			res = failed(fallback)
		}
		m.setLoading(false)
	}()

	resp, err := call(ctx, username, password)
	if err != nil {
		return failed(api.Message(err, fallback))
	}
	if err := m.creds.Save(ctx, resp.Token()); err != nil {
		m.log.Error().Err(err).Msg("saving credentials")
		return failed(fallback)
	}

	m.signedIn(resp.User())
	return Result{Success: true}
}

// Logout ends the session. The backend is told to revoke both tokens on a
// best-effort basis; locally the session and credentials are always cleared.
func (m *Manager) Logout(ctx context.Context) {
	m.setLoading(true)
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Msg("logging out")
		}
		m.clearCredentials(ctx)
		m.signedOut()
	}()

	tok, err := m.creds.Token(ctx)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrNoCredentials) {
			m.log.Error().Err(err).Msg("reading credentials")
		}
		return
	}
	if tok.RefreshToken == "" {
		return
	}
	if err := m.auth.Logout(ctx, tok.AccessToken, tok.RefreshToken); err != nil {
		m.log.Warn().Err(err).Msg("backend logout failed")
	}
}

// RefreshProfile re-fetches the profile, e.g. after a transfer changed the
// balance. Failures are logged and otherwise ignored.
func (m *Manager) RefreshProfile(ctx context.Context) {
	profile, err := m.users.Profile(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("refreshing profile")
		return
	}
	m.update(func(s *State) { s.User = profile })
}

// UpdateUsername renames the signed-in user.
func (m *Manager) UpdateUsername(ctx context.Context, username string) Result {
	profile, err := m.users.UpdateProfile(ctx, username)
	if err != nil {
		return failed(api.Message(err, UpdateFailedMessage))
	}
	m.update(func(s *State) { s.User = profile })
	return Result{Success: true}
}

func (m *Manager) clearCredentials(ctx context.Context) {
	if err := m.creds.Clear(context.WithoutCancel(ctx)); err != nil {
		m.log.Error().Err(err).Msg("clearing credentials")
	}
}
