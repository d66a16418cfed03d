package push_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"finance-push-go/internal/push"
	"finance-push-go/internal/testutil"
)

const testUser = "3f6c2a52-1f0e-4a8e-9b43-3c1d1f9a2b10"

func splitVAPIDHeader(t *testing.T, header string) (token, key string) {
	t.Helper()
	require.True(t, strings.HasPrefix(header, "vapid "), header)
	for _, part := range strings.Split(strings.TrimPrefix(header, "vapid "), ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		require.True(t, ok)
		switch k {
		case "t":
			token = v
		case "k":
			key = v
		}
	}
	return token, key
}

func TestBuildHeaders(t *testing.T) {
	keys := testutil.NewVAPIDKeys(t)
	sub := testutil.NewSubscriber(t).Subscription(testUser, "https://fcm.googleapis.com/fcm/send/abc123")

	req, err := push.NewEncoder(keys).Build(sub, []byte(`{"title":"hi"}`), 3600, webpush.UrgencyHigh)
	require.NoError(t, err)

	require.Equal(t, sub.Endpoint, req.Endpoint)
	require.Equal(t, "aes128gcm", req.Header.Get("Content-Encoding"))
	require.Equal(t, "application/octet-stream", req.Header.Get("Content-Type"))
	require.Equal(t, "3600", req.Header.Get("TTL"))
	require.Equal(t, "high", req.Header.Get("Urgency"))

	_, k := splitVAPIDHeader(t, req.Header.Get("Authorization"))
	require.Equal(t, keys.PublicKeyString(), k)
}

func TestBuildSignsVAPIDClaims(t *testing.T) {
	keys := testutil.NewVAPIDKeys(t)
	sub := testutil.NewSubscriber(t).Subscription(testUser, "https://updates.push.services.mozilla.com/wpush/v2/xyz")

	before := time.Now()
	req, err := push.NewEncoder(keys).Build(sub, []byte("{}"), 60, "")
	require.NoError(t, err)

	token, _ := splitVAPIDHeader(t, req.Header.Get("Authorization"))
	raw := keys.PublicKey()
	pub := &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(raw[1:33]),
		Y:     new(big.Int).SetBytes(raw[33:65]),
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) { return pub, nil },
		jwt.WithValidMethods([]string{"ES256"}))
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	require.Equal(t, "https://updates.push.services.mozilla.com", claims["aud"])
	require.Equal(t, "mailto:ops@example.com", claims["sub"])

	exp, err := claims.GetExpirationTime()
	require.NoError(t, err)
	require.WithinDuration(t, before.Add(12*time.Hour), exp.Time, time.Minute)
	require.Equal(t, "normal", req.Header.Get("Urgency"))
}

func TestBuildKeepsHTTPSSubject(t *testing.T) {
	pub, priv := testutil.NewVAPIDKeyStrings(t)
	keys, err := push.LoadVAPIDKeys(pub, priv, "https://finance.example.com/contact", nil)
	require.NoError(t, err)
	sub := testutil.NewSubscriber(t).Subscription(testUser, "https://push.example.com/x")

	req, err := push.NewEncoder(keys).Build(sub, []byte("{}"), 60, "")
	require.NoError(t, err)

	token, _ := splitVAPIDHeader(t, req.Header.Get("Authorization"))
	claims := jwt.MapClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(token, claims)
	require.NoError(t, err)
	require.Equal(t, "https://finance.example.com/contact", claims["sub"])
	require.Equal(t, "https://push.example.com", claims["aud"])
}

func TestBuildRoundTrip(t *testing.T) {
	keys := testutil.NewVAPIDKeys(t)
	browser := testutil.NewSubscriber(t)
	sub := browser.Subscription(testUser, "https://push.example.com/abc")
	payload := []byte(`{"title":"Budget check","body":"Food budget is at 92% used."}`)

	req, err := push.NewEncoder(keys).Build(sub, payload, 60, "")
	require.NoError(t, err)

	plain, err := browser.Decrypt(req.Body)
	require.NoError(t, err)
	require.Equal(t, payload, plain)
}

func TestBuildUsesFreshKeyAndSalt(t *testing.T) {
	keys := testutil.NewVAPIDKeys(t)
	sub := testutil.NewSubscriber(t).Subscription(testUser, "https://push.example.com/abc")
	enc := push.NewEncoder(keys)

	a, err := enc.Build(sub, []byte("same"), 60, "")
	require.NoError(t, err)
	b, err := enc.Build(sub, []byte("same"), 60, "")
	require.NoError(t, err)

	require.NotEqual(t, a.Body[:16], b.Body[:16], "salt reused")
	require.NotEqual(t, a.Body[21:86], b.Body[21:86], "ephemeral key reused")
}

func TestBuildPayloadSizeLimit(t *testing.T) {
	keys := testutil.NewVAPIDKeys(t)
	browser := testutil.NewSubscriber(t)
	sub := browser.Subscription(testUser, "https://push.example.com/abc")
	enc := push.NewEncoder(keys)

	req, err := enc.Build(sub, make([]byte, push.MaxPayloadSize), 60, "")
	require.NoError(t, err)
	require.Len(t, req.Body, 4096)

	plain, err := browser.Decrypt(req.Body)
	require.NoError(t, err)
	require.Len(t, plain, push.MaxPayloadSize)

	_, err = enc.Build(sub, make([]byte, push.MaxPayloadSize+1), 60, "")
	var encErr *push.EncodingError
	require.True(t, errors.As(err, &encErr))
	require.Equal(t, push.EncodingPayloadTooLarge, encErr.Kind)
}

func TestBuildRejectsMalformedSubscription(t *testing.T) {
	keys := testutil.NewVAPIDKeys(t)
	good := testutil.NewSubscriber(t).Subscription(testUser, "https://push.example.com/abc")
	enc := push.NewEncoder(keys)

	cases := []struct {
		name string
		edit func(s *struct{ endpoint, p256dh, auth string })
		kind push.EncodingErrorKind
	}{
		{"short p256dh", func(s *struct{ endpoint, p256dh, auth string }) { s.p256dh = "BAAA" }, push.EncodingInvalidSubscriptionKeys},
		{"non base64 auth", func(s *struct{ endpoint, p256dh, auth string }) { s.auth = "@@@" }, push.EncodingInvalidSubscriptionKeys},
		{"short auth", func(s *struct{ endpoint, p256dh, auth string }) { s.auth = "AAAA" }, push.EncodingInvalidSubscriptionKeys},
		{"relative endpoint", func(s *struct{ endpoint, p256dh, auth string }) { s.endpoint = "/push/abc" }, push.EncodingInvalidEndpoint},
		{"ftp endpoint", func(s *struct{ endpoint, p256dh, auth string }) { s.endpoint = "ftp://push.example.com/abc" }, push.EncodingInvalidEndpoint},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fields := struct{ endpoint, p256dh, auth string }{good.Endpoint, good.P256dh, good.Auth}
			tc.edit(&fields)

			sub := good
			sub.Endpoint, sub.P256dh, sub.Auth = fields.endpoint, fields.p256dh, fields.auth

			_, err := enc.Build(sub, []byte("{}"), 60, "")
			var encErr *push.EncodingError
			require.True(t, errors.As(err, &encErr), "got %v", err)
			require.Equal(t, tc.kind, encErr.Kind)
		})
	}
}

func TestParseUrgency(t *testing.T) {
	u, err := push.ParseUrgency("")
	require.NoError(t, err)
	require.Equal(t, webpush.UrgencyNormal, u)

	u, err = push.ParseUrgency("Very-Low")
	require.NoError(t, err)
	require.Equal(t, webpush.UrgencyVeryLow, u)

	_, err = push.ParseUrgency("urgent")
	require.Error(t, err)
}

func TestValidateSubscription(t *testing.T) {
	good := testutil.NewSubscriber(t).Subscription(testUser, "https://push.example.com/abc")
	require.NoError(t, push.ValidateSubscription(good))

	bad := good
	bad.Auth = "AAAA"
	require.Error(t, push.ValidateSubscription(bad))

	bad = good
	bad.Endpoint = "push.example.com/abc"
	var encErr *push.EncodingError
	require.True(t, errors.As(push.ValidateSubscription(bad), &encErr))
	require.Equal(t, push.EncodingInvalidEndpoint, encErr.Kind)
}
