package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/flashybank-client/app"
	"github.com/jrsteele09/flashybank-client/credentials"
	apperrors "github.com/jrsteele09/flashybank-client/internal/errors"
	"github.com/jrsteele09/flashybank-client/storage/memstore"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func setupTestFixture(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		if body["password"] != "pw123456" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Invalid username or password"}`))
			return
		}
		_, _ = w.Write([]byte(`{"accessToken":"A1","refreshToken":"R1","username":"alice","balance":100}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("FLASHY_STORAGE_DRIVER", "memory")
	t.Setenv("FLASHY_ENVIRONMENT", "production")
	t.Setenv("FLASHY_API_BASEURL", server.URL)
	return server
}

func TestRun_Usage(t *testing.T) {
	setupTestFixture(t)
	var out bytes.Buffer

	require.True(t, errors.Is(run(nil, strings.NewReader(""), &out), errUsage))
	require.True(t, errors.Is(run([]string{"fly"}, strings.NewReader(""), &out), errUsage))
	require.True(t, errors.Is(run([]string{"-no-banner", "rename"}, strings.NewReader(""), &out), errUsage))
}

func TestRun_Status(t *testing.T) {
	server := setupTestFixture(t)
	var out bytes.Buffer

	require.NoError(t, run([]string{"-no-banner", "status"}, strings.NewReader(""), &out))
	require.Contains(t, out.String(), "Backend:    "+server.URL)
	require.Contains(t, out.String(), "signed out")
	require.NotContains(t, out.String(), "Token:")
	require.Contains(t, out.String(), "Quick Mode: off")
	require.Contains(t, out.String(), "Theme:      green, light")
}

func TestRun_Login(t *testing.T) {
	setupTestFixture(t)
	var out bytes.Buffer

	require.NoError(t, run([]string{"-no-banner", "login"}, strings.NewReader("alice\npw123456\n"), &out))
	require.Contains(t, out.String(), "Welcome back, alice")

	err := run([]string{"-no-banner", "login", "-u", "alice"}, strings.NewReader("wrong\n"), &out)
	require.EqualError(t, err, "Invalid username or password")

	err = run([]string{"-no-banner", "login", "-u", "alice"}, strings.NewReader("\n"), &out)
	require.EqualError(t, err, "please fill in all fields")
}

func TestRun_RequiresSignIn(t *testing.T) {
	setupTestFixture(t)
	var out bytes.Buffer

	err := run([]string{"-no-banner", "balance"}, strings.NewReader(""), &out)
	require.ErrorIs(t, err, errNotSignedIn)
}

func TestRun_Theme(t *testing.T) {
	setupTestFixture(t)
	var out bytes.Buffer

	require.NoError(t, run([]string{"-no-banner", "theme", "list"}, strings.NewReader(""), &out))
	require.Contains(t, out.String(), "* green")
	require.Contains(t, out.String(), "ocean")

	require.Error(t, run([]string{"-no-banner", "theme", "set", "neon"}, strings.NewReader(""), &out))
}

func TestTracingTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	var trace bytes.Buffer
	client := &http.Client{Transport: &tracingTransport{base: http.DefaultTransport, out: &trace}}
	resp, err := client.Get(server.URL + "/api/users/profile")
	require.NoError(t, err)
	resp.Body.Close()

	require.Contains(t, trace.String(), colourise(Green, " GET    "))
	require.Contains(t, trace.String(), "/api/users/profile")
	require.Contains(t, trace.String(), colourise(Red, "418"))
}

func TestStatusColor(t *testing.T) {
	require.Equal(t, Green, statusColor(http.StatusOK))
	require.Equal(t, Yellow, statusColor(http.StatusFound))
	require.Equal(t, Red, statusColor(http.StatusUnauthorized))
	require.Equal(t, RedInverse, statusColor(http.StatusBadGateway))
}

func signedToken(t *testing.T, subject string, expires time.Time) string {
	t.Helper()
	tok, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": subject,
		"exp": expires.Unix(),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return tok
}

func TestCLI_PrintToken(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		access string
		want   []string
	}{
		{"valid jwt", signedToken(t, "alice", time.Now().Add(time.Hour)), []string{"subject alice", "expires "}},
		{"expired jwt", signedToken(t, "alice", time.Now().Add(-time.Hour)), []string{"subject alice", "expired "}},
		{"opaque token", "A1", []string{"Token:      opaque"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			creds := credentials.New(memstore.New())
			require.NoError(t, creds.Save(ctx, &oauth2.Token{AccessToken: tt.access, RefreshToken: "R1"}))
			c := &cli{app: &app.App{Credentials: creds}, out: &out}

			c.printToken(ctx)
			for _, w := range tt.want {
				require.Contains(t, out.String(), w)
			}
		})
	}

	t.Run("nothing stored", func(t *testing.T) {
		var out bytes.Buffer
		c := &cli{app: &app.App{Credentials: credentials.New(memstore.New())}, out: &out}
		c.printToken(ctx)
		require.Empty(t, out.String())
	})
}

func TestCLI_Forget(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	creds := credentials.New(memstore.New())
	require.NoError(t, creds.SaveLogin(ctx, "alice", "pw123456"))
	c := &cli{app: &app.App{Credentials: creds}, out: &out}

	require.NoError(t, cmdForget(ctx, c, nil))
	require.Contains(t, out.String(), "Saved login deleted")

	_, _, err := creds.SavedLogin(ctx)
	require.ErrorIs(t, err, apperrors.ErrNoSavedLogin)
}
