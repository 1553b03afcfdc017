package session

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signedToken(t *testing.T, expiry time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "user-1",
		"role": "supervisor",
		"exp":  expiry.Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.json")
	return NewStore(path, testSecret, slog.Default()), path
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	token := signedToken(t, time.Now().Add(time.Hour))

	require.NoError(t, store.Save(Session{Token: token, Role: "supervisor"}))

	sess, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "supervisor", sess.Role)
	assert.Equal(t, token, sess.Token)
}

func TestLoadMissingFileRequiresReauth(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Load()
	assert.ErrorIs(t, err, ErrReauthRequired)
}

func TestCorruptedSessionFileIsClearedOnLoad(t *testing.T) {
	store, path := newTestStore(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"token": not-json`), 0o600))

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrReauthRequired)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "corrupted file must be removed")
}

func TestExpiredTokenIsClearedOnLoad(t *testing.T) {
	store, path := newTestStore(t)
	expired := signedToken(t, time.Now().Add(-time.Hour))
	require.NoError(t, os.WriteFile(path, mustJSON(t, Session{Token: expired, Role: "agency", AgencyID: "ag-1"}), 0o600))

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrReauthRequired)
}

func TestTokenProviderExposesBearerToken(t *testing.T) {
	store, _ := newTestStore(t)
	token := signedToken(t, time.Now().Add(time.Hour))
	require.NoError(t, store.Save(Session{Token: token, Role: "agency", AgencyID: "ag-1"}))

	got, err := store.Token()
	require.NoError(t, err)
	assert.Equal(t, token, got)
}

func TestClearRemovesSession(t *testing.T) {
	store, _ := newTestStore(t)
	token := signedToken(t, time.Now().Add(time.Hour))
	require.NoError(t, store.Save(Session{Token: token, Role: "supervisor"}))

	store.Clear()

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrReauthRequired)
}

func mustJSON(t *testing.T, sess Session) []byte {
	t.Helper()
	raw := []byte(`{"token":"` + sess.Token + `","role":"` + sess.Role + `","agencyId":"` + sess.AgencyID + `"}`)
	return raw
}
