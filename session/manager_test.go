package session_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/jrsteele09/flashybank-client/api"
	"github.com/jrsteele09/flashybank-client/credentials"
	"github.com/jrsteele09/flashybank-client/session"
	"github.com/jrsteele09/flashybank-client/storage/memstore"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

var errNetwork = errors.New("dial tcp 127.0.0.1:8080: connect: connection refused")

// fakeBackend answers like the FlashyBank backend for a single account and
// counts the calls made to it.
type fakeBackend struct {
	lock sync.Mutex

	validAccess  string
	validRefresh string
	profile      api.Profile

	loginErr   error
	refreshErr error
	logoutErr  error
	profileErr error
	panicOn    string

	calls     map[string]int
	loggedOut [2]string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		validAccess:  "A1",
		validRefresh: "R1",
		profile:      api.Profile{ID: 1, Username: "alice", Balance: 100, Role: "USER", Enabled: true},
		calls:        make(map[string]int),
	}
}

func (b *fakeBackend) count(name string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.calls[name]++
	if b.panicOn == name {
		panic("boom")
	}
}

func (b *fakeBackend) callCount(name string) int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.calls[name]
}

func (b *fakeBackend) totalCalls() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	n := 0
	for _, c := range b.calls {
		n += c
	}
	return n
}

func (b *fakeBackend) auth() *api.AuthResponse {
	return &api.AuthResponse{AccessToken: b.validAccess, RefreshToken: b.validRefresh, Profile: b.profile}
}

func (b *fakeBackend) Login(_ context.Context, username, password string) (*api.AuthResponse, error) {
	b.count("login")
	if b.loginErr != nil {
		return nil, b.loginErr
	}
	if username != "alice" || password != "pw123456" {
		return nil, &api.Error{StatusCode: http.StatusUnauthorized, Message: "Invalid username or password"}
	}
	return b.auth(), nil
}

func (b *fakeBackend) Register(_ context.Context, username, _ string) (*api.AuthResponse, error) {
	b.count("register")
	if username == "alice" {
		return nil, &api.Error{StatusCode: http.StatusConflict, Message: "Username already exists"}
	}
	if username == "" {
		return nil, &api.Error{StatusCode: http.StatusBadRequest}
	}
	resp := b.auth()
	resp.Username = username
	return resp, nil
}

func (b *fakeBackend) Refresh(_ context.Context, refreshToken string) (*api.AuthResponse, error) {
	b.count("refresh")
	if b.refreshErr != nil {
		return nil, b.refreshErr
	}
	if refreshToken != b.validRefresh {
		return nil, &api.Error{StatusCode: http.StatusUnauthorized, Message: "Invalid refresh token"}
	}
	b.validAccess, b.validRefresh = "A2", "R2"
	return b.auth(), nil
}

func (b *fakeBackend) Logout(_ context.Context, accessToken, refreshToken string) error {
	b.count("logout")
	b.lock.Lock()
	b.loggedOut = [2]string{accessToken, refreshToken}
	b.lock.Unlock()
	return b.logoutErr
}

func (b *fakeBackend) profileFor(access string) (*api.Profile, error) {
	if b.profileErr != nil {
		return nil, b.profileErr
	}
	if access != b.validAccess {
		return nil, &api.Error{StatusCode: http.StatusUnauthorized}
	}
	p := b.profile
	return &p, nil
}

type usersClient struct {
	backend *fakeBackend
	creds   *credentials.Store
}

func (u usersClient) Profile(ctx context.Context) (*api.Profile, error) {
	u.backend.count("profile")
	access, _ := u.creds.AccessToken(ctx)
	return u.backend.profileFor(access)
}

func (u usersClient) UpdateProfile(ctx context.Context, username string) (*api.Profile, error) {
	u.backend.count("updateProfile")
	if username == "bob" {
		return nil, &api.Error{StatusCode: http.StatusConflict, Message: "Username already exists"}
	}
	u.backend.profile.Username = username
	p := u.backend.profile
	return &p, nil
}

type testFixture struct {
	kv      *memstore.MemStore
	creds   *credentials.Store
	backend *fakeBackend
	manager *session.Manager
	states  []session.State
}

func setupTestFixture(t *testing.T, options ...session.ManagerOption) *testFixture {
	t.Helper()
	kv := memstore.New()
	creds := credentials.New(kv)
	backend := newFakeBackend()

	manager, err := session.NewManager(session.Deps{
		Auth:        backend,
		Users:       usersClient{backend: backend, creds: creds},
		Credentials: creds,
	}, options...)
	require.NoError(t, err)

	f := &testFixture{kv: kv, creds: creds, backend: backend, manager: manager}
	manager.Subscribe(func(s session.State) { f.states = append(f.states, s) })
	return f
}

func (f *testFixture) storeTokens(t *testing.T, access, refresh string) {
	t.Helper()
	require.NoError(t, f.creds.Save(context.Background(), &oauth2.Token{AccessToken: access, RefreshToken: refresh}))
}

func (f *testFixture) requireNoTokens(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	access, err := f.creds.AccessToken(ctx)
	require.NoError(t, err)
	require.Empty(t, access)
	refresh, err := f.creds.RefreshToken(ctx)
	require.NoError(t, err)
	require.Empty(t, refresh)
}

func TestNewManager(t *testing.T) {
	backend := newFakeBackend()
	creds := credentials.New(memstore.New())

	_, err := session.NewManager(session.Deps{Users: usersClient{}, Credentials: creds})
	require.Error(t, err)
	_, err = session.NewManager(session.Deps{Auth: backend, Credentials: creds})
	require.Error(t, err)
	_, err = session.NewManager(session.Deps{Auth: backend, Users: usersClient{}})
	require.Error(t, err)

	m, err := session.NewManager(session.Deps{Auth: backend, Users: usersClient{}, Credentials: creds})
	require.NoError(t, err)
	require.Equal(t, session.State{IsLoading: true}, m.State())
}

func TestManager_Initialize(t *testing.T) {
	ctx := context.Background()

	t.Run("no stored tokens", func(t *testing.T) {
		fixture := setupTestFixture(t)

		require.NoError(t, fixture.manager.Initialize(ctx))
		state := fixture.manager.State()
		require.False(t, state.IsAuthenticated)
		require.False(t, state.IsLoading)
		require.Nil(t, state.User)
		require.Zero(t, fixture.backend.totalCalls())
	})

	t.Run("valid access token", func(t *testing.T) {
		fixture := setupTestFixture(t)
		fixture.storeTokens(t, "A1", "R1")

		require.NoError(t, fixture.manager.Initialize(ctx))
		state := fixture.manager.State()
		require.True(t, state.IsAuthenticated)
		require.False(t, state.IsLoading)
		require.Equal(t, "alice", state.User.Username)
		require.Equal(t, 1, fixture.backend.callCount("profile"))
		require.Zero(t, fixture.backend.callCount("refresh"))
	})

	t.Run("expired access token with valid refresh token", func(t *testing.T) {
		fixture := setupTestFixture(t)
		fixture.storeTokens(t, "expired", "R1")

		require.NoError(t, fixture.manager.Initialize(ctx))
		state := fixture.manager.State()
		require.True(t, state.IsAuthenticated)
		require.False(t, state.IsLoading)
		require.Equal(t, "alice", state.User.Username)
		require.Equal(t, 1, fixture.backend.callCount("refresh"))
		require.Equal(t, 2, fixture.backend.callCount("profile"))

		access, _ := fixture.creds.AccessToken(ctx)
		refresh, _ := fixture.creds.RefreshToken(ctx)
		require.Equal(t, "A2", access)
		require.Equal(t, "R2", refresh)
	})

	t.Run("expired access token with invalid refresh token", func(t *testing.T) {
		fixture := setupTestFixture(t)
		fixture.storeTokens(t, "expired", "revoked")

		require.NoError(t, fixture.manager.Initialize(ctx))
		state := fixture.manager.State()
		require.False(t, state.IsAuthenticated)
		require.False(t, state.IsLoading)
		require.Equal(t, 1, fixture.backend.callCount("refresh"))
		require.Equal(t, 1, fixture.backend.callCount("profile"))
		fixture.requireNoTokens(t)
	})

	t.Run("expired access token without refresh token", func(t *testing.T) {
		fixture := setupTestFixture(t)
		require.NoError(t, fixture.kv.Set(ctx, credentials.AccessTokenKey, "expired"))

		require.NoError(t, fixture.manager.Initialize(ctx))
		require.False(t, fixture.manager.State().IsAuthenticated)
		require.Zero(t, fixture.backend.callCount("refresh"))
		fixture.requireNoTokens(t)
	})

	t.Run("retried profile fetch still rejected", func(t *testing.T) {
		fixture := setupTestFixture(t)
		fixture.storeTokens(t, "expired", "R1")
		// refresh succeeds but the profile endpoint keeps rejecting
		fixture.manager = mustManager(t, fixture, &rejectingUsers{fixture.backend})

		require.NoError(t, fixture.manager.Initialize(ctx))
		require.False(t, fixture.manager.State().IsAuthenticated)
		require.Equal(t, 1, fixture.backend.callCount("refresh"))
		require.Equal(t, 2, fixture.backend.callCount("profile"))
		fixture.requireNoTokens(t)
	})

	t.Run("profile fetch fails for another reason", func(t *testing.T) {
		fixture := setupTestFixture(t)
		fixture.storeTokens(t, "A1", "R1")
		fixture.backend.profileErr = errNetwork

		require.NoError(t, fixture.manager.Initialize(ctx))
		state := fixture.manager.State()
		require.False(t, state.IsAuthenticated)
		require.False(t, state.IsLoading)
		require.Zero(t, fixture.backend.callCount("refresh"))
		fixture.requireNoTokens(t)
	})

	t.Run("restore client is used for the startup fetch", func(t *testing.T) {
		fixture := setupTestFixture(t)
		fixture.storeTokens(t, "expired", "R1")
		restore := &countingUsers{usersClient: usersClient{backend: fixture.backend, creds: fixture.creds}}
		m, err := session.NewManager(session.Deps{
			Auth:        fixture.backend,
			Users:       &rejectingUsers{fixture.backend},
			Restore:     restore,
			Credentials: fixture.creds,
		})
		require.NoError(t, err)

		require.NoError(t, m.Initialize(ctx))
		require.True(t, m.State().IsAuthenticated)
		require.Equal(t, 2, restore.calls)
		require.Equal(t, 1, fixture.backend.callCount("refresh"))
	})

	t.Run("restore client keeps rejecting", func(t *testing.T) {
		fixture := setupTestFixture(t)
		fixture.storeTokens(t, "expired", "R1")
		m, err := session.NewManager(session.Deps{
			Auth:        fixture.backend,
			Users:       usersClient{backend: fixture.backend, creds: fixture.creds},
			Restore:     &rejectingUsers{fixture.backend},
			Credentials: fixture.creds,
		})
		require.NoError(t, err)

		require.NoError(t, m.Initialize(ctx))
		require.False(t, m.State().IsAuthenticated)
		require.Equal(t, 1, fixture.backend.callCount("refresh"))
		require.Equal(t, 2, fixture.backend.callCount("profile"))
		fixture.requireNoTokens(t)
	})

	t.Run("panic never leaves the manager loading", func(t *testing.T) {
		fixture := setupTestFixture(t)
		fixture.storeTokens(t, "A1", "R1")
		fixture.backend.panicOn = "profile"

		require.Error(t, fixture.manager.Initialize(ctx))
		state := fixture.manager.State()
		require.False(t, state.IsAuthenticated)
		require.False(t, state.IsLoading)
	})
}

type rejectingUsers struct {
	backend *fakeBackend
}

func (r *rejectingUsers) Profile(context.Context) (*api.Profile, error) {
	r.backend.count("profile")
	return nil, &api.Error{StatusCode: http.StatusUnauthorized}
}

func (r *rejectingUsers) UpdateProfile(context.Context, string) (*api.Profile, error) {
	return nil, &api.Error{StatusCode: http.StatusUnauthorized}
}

type countingUsers struct {
	usersClient
	calls int
}

func (c *countingUsers) Profile(ctx context.Context) (*api.Profile, error) {
	c.calls++
	return c.usersClient.Profile(ctx)
}

func mustManager(t *testing.T, f *testFixture, users session.UsersAPI) *session.Manager {
	t.Helper()
	m, err := session.NewManager(session.Deps{Auth: f.backend, Users: users, Credentials: f.creds})
	require.NoError(t, err)
	return m
}

func TestManager_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("valid credentials", func(t *testing.T) {
		fixture := setupTestFixture(t)
		require.NoError(t, fixture.manager.Initialize(ctx))
		fixture.states = nil

		res := fixture.manager.Login(ctx, "alice", "pw123456")
		require.Equal(t, session.Result{Success: true}, res)

		state := fixture.manager.State()
		require.True(t, state.IsAuthenticated)
		require.False(t, state.IsLoading)
		require.Equal(t, "alice", state.User.Username)
		require.InDelta(t, 100.0, state.User.Balance, 0.001)

		access, _ := fixture.creds.AccessToken(ctx)
		refresh, _ := fixture.creds.RefreshToken(ctx)
		require.Equal(t, "A1", access)
		require.Equal(t, "R1", refresh)

		// loading is raised for the duration of the call
		require.True(t, fixture.states[0].IsLoading)
		require.False(t, fixture.states[len(fixture.states)-1].IsLoading)

		_, _, err := fixture.creds.SavedLogin(ctx)
		require.Error(t, err)
	})

	t.Run("rejected credentials", func(t *testing.T) {
		fixture := setupTestFixture(t)
		require.NoError(t, fixture.manager.Initialize(ctx))

		res := fixture.manager.Login(ctx, "alice", "wrong")
		require.False(t, res.Success)
		require.Equal(t, "Invalid username or password", res.Error)

		state := fixture.manager.State()
		require.False(t, state.IsAuthenticated)
		require.False(t, state.IsLoading)
		fixture.requireNoTokens(t)
	})

	t.Run("transport failure uses fallback message", func(t *testing.T) {
		fixture := setupTestFixture(t)
		fixture.backend.loginErr = errNetwork

		res := fixture.manager.Login(ctx, "alice", "pw123456")
		require.Equal(t, session.Result{Success: false, Error: session.LoginFailedMessage}, res)
		require.False(t, fixture.manager.State().IsLoading)
	})

	t.Run("panic is reported as a failed login", func(t *testing.T) {
		fixture := setupTestFixture(t)
		fixture.backend.panicOn = "login"

		res := fixture.manager.Login(ctx, "alice", "pw123456")
		require.Equal(t, session.Result{Success: false, Error: session.LoginFailedMessage}, res)
		require.False(t, fixture.manager.State().IsLoading)
	})

	t.Run("remembered login can be replayed", func(t *testing.T) {
		fixture := setupTestFixture(t, session.WithRememberLogin(true))

		res := fixture.manager.LoginWithSavedCredentials(ctx)
		require.Equal(t, session.Result{Success: false, Error: session.NoSavedLoginMessage}, res)

		require.True(t, fixture.manager.Login(ctx, "alice", "pw123456").Success)
		fixture.manager.Logout(ctx)
		require.False(t, fixture.manager.State().IsAuthenticated)

		res = fixture.manager.LoginWithSavedCredentials(ctx)
		require.True(t, res.Success)
		require.True(t, fixture.manager.State().IsAuthenticated)
		require.Equal(t, 2, fixture.backend.callCount("login"))
	})
}

func TestManager_Register(t *testing.T) {
	ctx := context.Background()
	fixture := setupTestFixture(t)

	res := fixture.manager.Register(ctx, "alice", "pw123456")
	require.Equal(t, session.Result{Success: false, Error: "Username already exists"}, res)

	res = fixture.manager.Register(ctx, "", "pw123456")
	require.Equal(t, session.Result{Success: false, Error: session.RegistrationFailedMessage}, res)
	require.False(t, fixture.manager.State().IsAuthenticated)

	res = fixture.manager.Register(ctx, "carol", "pw123456")
	require.True(t, res.Success)
	state := fixture.manager.State()
	require.True(t, state.IsAuthenticated)
	require.Equal(t, "carol", state.User.Username)

	has, err := fixture.creds.HasTokens(ctx)
	require.NoError(t, err)
	require.True(t, has)
}

func TestManager_Logout(t *testing.T) {
	ctx := context.Background()

	t.Run("server accepts", func(t *testing.T) {
		fixture := setupTestFixture(t)
		require.True(t, fixture.manager.Login(ctx, "alice", "pw123456").Success)

		fixture.manager.Logout(ctx)
		require.Equal(t, session.State{}, fixture.manager.State())
		require.Equal(t, 1, fixture.backend.callCount("logout"))
		require.Equal(t, [2]string{"A1", "R1"}, fixture.backend.loggedOut)
		fixture.requireNoTokens(t)
	})

	t.Run("server fails", func(t *testing.T) {
		fixture := setupTestFixture(t)
		require.True(t, fixture.manager.Login(ctx, "alice", "pw123456").Success)
		fixture.backend.logoutErr = errNetwork

		fixture.manager.Logout(ctx)
		require.Equal(t, session.State{}, fixture.manager.State())
		fixture.requireNoTokens(t)
	})

	t.Run("server panics", func(t *testing.T) {
		fixture := setupTestFixture(t)
		require.True(t, fixture.manager.Login(ctx, "alice", "pw123456").Success)
		fixture.backend.panicOn = "logout"

		fixture.manager.Logout(ctx)
		require.Equal(t, session.State{}, fixture.manager.State())
		fixture.requireNoTokens(t)
	})

	t.Run("nothing stored", func(t *testing.T) {
		fixture := setupTestFixture(t)

		fixture.manager.Logout(ctx)
		require.Equal(t, session.State{}, fixture.manager.State())
		require.Zero(t, fixture.backend.callCount("logout"))
	})
}

func TestManager_RefreshProfile(t *testing.T) {
	ctx := context.Background()
	fixture := setupTestFixture(t)
	require.True(t, fixture.manager.Login(ctx, "alice", "pw123456").Success)

	fixture.backend.profile.Balance = 75
	fixture.manager.RefreshProfile(ctx)
	require.InDelta(t, 75.0, fixture.manager.State().User.Balance, 0.001)

	fixture.backend.profileErr = errNetwork
	fixture.manager.RefreshProfile(ctx)
	state := fixture.manager.State()
	require.True(t, state.IsAuthenticated)
	require.InDelta(t, 75.0, state.User.Balance, 0.001)
}

func TestManager_UpdateUsername(t *testing.T) {
	ctx := context.Background()
	fixture := setupTestFixture(t)
	require.True(t, fixture.manager.Login(ctx, "alice", "pw123456").Success)

	res := fixture.manager.UpdateUsername(ctx, "bob")
	require.Equal(t, session.Result{Success: false, Error: "Username already exists"}, res)
	require.Equal(t, "alice", fixture.manager.State().User.Username)

	res = fixture.manager.UpdateUsername(ctx, "alicia")
	require.True(t, res.Success)
	require.Equal(t, "alicia", fixture.manager.State().User.Username)
}

func TestManager_Unsubscribe(t *testing.T) {
	fixture := setupTestFixture(t)
	var seen int
	unsubscribe := fixture.manager.Subscribe(func(session.State) { seen++ })

	require.NoError(t, fixture.manager.Initialize(context.Background()))
	require.Equal(t, 1, seen)

	unsubscribe()
	fixture.manager.Logout(context.Background())
	require.Equal(t, 1, seen)
}
