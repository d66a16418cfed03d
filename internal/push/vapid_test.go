package push_test

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"finance-push-go/internal/push"
	"finance-push-go/internal/testutil"
)

func requireConfigError(t *testing.T, err error, field string, kind push.ConfigErrorKind) *push.ConfigError {
	t.Helper()
	var cfgErr *push.ConfigError
	require.True(t, errors.As(err, &cfgErr), "expected *push.ConfigError, got %v", err)
	require.Equal(t, field, cfgErr.Field)
	require.Equal(t, kind, cfgErr.Kind)
	return cfgErr
}

func TestLoadVAPIDKeys(t *testing.T) {
	pub, priv := testutil.NewVAPIDKeyStrings(t)

	keys, err := push.LoadVAPIDKeys(pub, priv, "mailto:ops@example.com", nil)
	require.NoError(t, err)
	require.Equal(t, pub, keys.PublicKeyString())
	require.Len(t, keys.PublicKey(), 65)
	require.Equal(t, byte(0x04), keys.PublicKey()[0])
	require.Equal(t, "mailto:ops@example.com", keys.Subject())
}

func TestLoadVAPIDKeysAcceptsStandardPaddedBase64(t *testing.T) {
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)

	pub := base64.StdEncoding.EncodeToString(key.PublicKey().Bytes())
	priv := base64.StdEncoding.EncodeToString(key.Bytes())

	keys, err := push.LoadVAPIDKeys(pub, priv, "https://finance.example.com", nil)
	require.NoError(t, err)
	require.Equal(t, base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()), keys.PublicKeyString())
}

func TestLoadVAPIDKeysMissing(t *testing.T) {
	_, priv := testutil.NewVAPIDKeyStrings(t)

	_, err := push.LoadVAPIDKeys("", priv, "mailto:ops@example.com", nil)
	requireConfigError(t, err, "VAPID_PUBLIC_KEY", push.ConfigMissing)

	pub, _ := testutil.NewVAPIDKeyStrings(t)
	_, err = push.LoadVAPIDKeys(pub, "  ", "mailto:ops@example.com", nil)
	requireConfigError(t, err, "VAPID_PRIVATE_KEY", push.ConfigMissing)
}

func TestLoadVAPIDKeysBadEncoding(t *testing.T) {
	_, priv := testutil.NewVAPIDKeyStrings(t)

	_, err := push.LoadVAPIDKeys("not*base64!", priv, "mailto:ops@example.com", nil)
	requireConfigError(t, err, "VAPID_PUBLIC_KEY", push.ConfigInvalidEncoding)
}

func TestLoadVAPIDKeysWrongShape(t *testing.T) {
	pub, priv := testutil.NewVAPIDKeyStrings(t)
	raw, err := base64.RawURLEncoding.DecodeString(pub)
	require.NoError(t, err)

	short := base64.RawURLEncoding.EncodeToString(raw[:64])
	_, err = push.LoadVAPIDKeys(short, priv, "mailto:ops@example.com", nil)
	cfgErr := requireConfigError(t, err, "VAPID_PUBLIC_KEY", push.ConfigInvalidKeyShape)
	require.Contains(t, cfgErr.Detail, "got 64")

	compressed := append([]byte{0x05}, raw[1:]...)
	_, err = push.LoadVAPIDKeys(base64.RawURLEncoding.EncodeToString(compressed), priv, "mailto:ops@example.com", nil)
	requireConfigError(t, err, "VAPID_PUBLIC_KEY", push.ConfigInvalidKeyShape)

	privRaw, err := base64.RawURLEncoding.DecodeString(priv)
	require.NoError(t, err)
	_, err = push.LoadVAPIDKeys(pub, base64.RawURLEncoding.EncodeToString(privRaw[:31]), "mailto:ops@example.com", nil)
	requireConfigError(t, err, "VAPID_PRIVATE_KEY", push.ConfigInvalidKeyShape)
}

func TestLoadVAPIDKeysMismatch(t *testing.T) {
	pubA, _ := testutil.NewVAPIDKeyStrings(t)
	_, privB := testutil.NewVAPIDKeyStrings(t)

	_, err := push.LoadVAPIDKeys(pubA, privB, "mailto:ops@example.com", nil)
	requireConfigError(t, err, "VAPID_PUBLIC_KEY", push.ConfigKeyMismatch)
}

func TestLoadVAPIDKeysSubject(t *testing.T) {
	pub, priv := testutil.NewVAPIDKeyStrings(t)

	keys, err := push.LoadVAPIDKeys(pub, priv, "ops@example.com", nil)
	require.NoError(t, err)
	require.Equal(t, "mailto:ops@example.com", keys.Subject())

	keys, err = push.LoadVAPIDKeys(pub, priv, "https://finance.example.com/contact", nil)
	require.NoError(t, err)
	require.Equal(t, "https://finance.example.com/contact", keys.Subject())

	_, err = push.LoadVAPIDKeys(pub, priv, "", nil)
	requireConfigError(t, err, "VAPID_SUBJECT", push.ConfigMissing)
}

func TestLoadVAPIDKeysWarnsOnOddSubject(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	pub, priv := testutil.NewVAPIDKeyStrings(t)

	keys, err := push.LoadVAPIDKeys(pub, priv, "finance team", zap.New(core))
	require.NoError(t, err)
	require.Equal(t, "finance team", keys.Subject())
	require.Equal(t, 1, logs.Len())
}

func TestLoadVAPIDKeysWarnsOnPlainHTTPSubject(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	pub, priv := testutil.NewVAPIDKeyStrings(t)

	keys, err := push.LoadVAPIDKeys(pub, priv, "http://finance.example.com", zap.New(core))
	require.NoError(t, err)
	require.Equal(t, "http://finance.example.com", keys.Subject())
	require.Equal(t, 1, logs.FilterMessageSnippet("plain http:").Len())
}
