package cmd

import (
	"bytes"
	"encoding/base64"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/portalauth/config"
	"github.com/jmcleod/portalauth/mockbackend"
	"github.com/jmcleod/portalauth/session"
)

func startBackend(t *testing.T) string {
	t.Helper()
	srv, err := mockbackend.New(mockbackend.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)
	for _, u := range mockbackend.DefaultUsers() {
		require.NoError(t, srv.AddUser(u))
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts.URL
}

func testConfig(t *testing.T, apiURL string) *config.Config {
	t.Helper()
	return &config.Config{
		APIURL:         apiURL,
		Realm:          session.RealmEmployee,
		RequestTimeout: 5 * time.Second,
		DataDir:        t.TempDir(),
		Store:          config.StoreBBolt,
		PollInterval:   time.Minute,
		LogLevel:       "error",
		LogFormat:      "text",
	}
}

func TestLoginPersistsAcrossRuns(t *testing.T) {
	c := testConfig(t, startBackend(t))
	c.StorePassphrase = "correct horse"

	a, err := newApp(c)
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, runLogin(t.Context(), a, session.Credentials{Username: "alice", Password: "pw"}, &out))
	assert.Contains(t, out.String(), "alice")
	require.NoError(t, a.Close())

	b, err := newApp(c)
	require.NoError(t, err)
	defer b.Close()

	report := buildStatus(t.Context(), b.svc, true)
	assert.True(t, report.Authenticated)
	assert.Equal(t, "alice", report.Session.Username)
	assert.Equal(t, []string{"EMPLOYEE"}, report.Roles)
	require.NotNil(t, report.Profile)
	assert.Equal(t, "Alice Smith", report.Profile.Name)
	assert.Empty(t, report.Error)

	var rendered bytes.Buffer
	renderStatus(&rendered, report, time.Now())
	assert.Contains(t, rendered.String(), "Alice Smith")
	assert.Contains(t, rendered.String(), "Finance")
}

func TestLoginFailureMessage(t *testing.T) {
	c := testConfig(t, startBackend(t))
	c.Store = config.StoreMemory

	a, err := newApp(c)
	require.NoError(t, err)
	defer a.Close()

	err = runLogin(t.Context(), a, session.Credentials{Username: "alice", Password: "wrong"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Equal(t, "Invalid username or password. Please try again.", err.Error())

	report := buildStatus(t.Context(), a.svc, false)
	assert.False(t, report.Authenticated)
	assert.Empty(t, report.Roles)
}

func TestOpenStoreWrongPassphrase(t *testing.T) {
	c := testConfig(t, "http://localhost")
	c.StorePassphrase = "first"
	a, err := newApp(c)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	c.StorePassphrase = "second"
	_, err = newApp(c)
	assert.ErrorContains(t, err, "unlocking session storage")
}

func TestOpenStoreNone(t *testing.T) {
	c := testConfig(t, "http://localhost")
	c.Store = config.StoreNone
	a, err := newApp(c)
	require.NoError(t, err)
	defer a.Close()
	assert.False(t, a.svc.IsAuthenticated())
}

func segment(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestInspectToken(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	t.Run("valid", func(t *testing.T) {
		raw := segment(`{"alg":"HS256"}`) + "." + segment(`{"exp":1700000600,"role":"EMPLOYEE","username":"alice"}`) + ".sig"
		r := inspectToken(raw, now)
		assert.Equal(t, 3, r.Segments)
		assert.Equal(t, "ok", r.Shape)
		assert.False(t, r.Expired)
		require.NotNil(t, r.Expiry)
		assert.Equal(t, int64(1700000600), r.Expiry.Unix())
		assert.Equal(t, []string{"EMPLOYEE"}, r.Roles)

		var out bytes.Buffer
		renderInspection(&out, r)
		assert.Contains(t, out.String(), "valid")
		assert.Contains(t, out.String(), "alice")
	})

	t.Run("missing exp", func(t *testing.T) {
		raw := segment(`{}`) + "." + segment(`{"authorities":[{"authority":"ROLE_ADMIN"}]}`) + ".sig"
		r := inspectToken(raw, now)
		assert.True(t, r.Expired)
		assert.Nil(t, r.Expiry)
		assert.Equal(t, []string{"ROLE_ADMIN"}, r.Roles)
	})

	t.Run("malformed", func(t *testing.T) {
		r := inspectToken("not-a-token", now)
		assert.Equal(t, 1, r.Segments)
		assert.True(t, strings.HasPrefix(r.Shape, "malformed token"))
		assert.NotEmpty(t, r.DecodeErr)
		assert.True(t, r.Expired)
		assert.Empty(t, r.Roles)
	})
}

func TestReadPassword(t *testing.T) {
	pw, err := readPassword(strings.NewReader("s3cret\r\nignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)

	pw, err = readPassword(strings.NewReader("no-newline"))
	require.NoError(t, err)
	assert.Equal(t, "no-newline", pw)
}

func TestAPIRequestCarriesSession(t *testing.T) {
	c := testConfig(t, startBackend(t))
	c.Store = config.StoreMemory

	a, err := newApp(c)
	require.NoError(t, err)
	defer a.Close()

	var out bytes.Buffer
	err = runAPI(t.Context(), a, c.APIURL, "get", "employee/get-employee-detail", "", &out)
	assert.ErrorContains(t, err, "not logged in")

	require.NoError(t, runLogin(t.Context(), a, session.Credentials{Username: "alice", Password: "pw"}, &bytes.Buffer{}))

	out.Reset()
	require.NoError(t, runAPI(t.Context(), a, c.APIURL, "GET", "/employee/get-employee-detail", "", &out))
	assert.Contains(t, out.String(), "Alice Smith")
}
