package push

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"

	"finance-push-go/internal/models"
)

const (
	// maxRecordSize is both the aes128gcm record size we advertise and the
	// largest body push services are required to accept.
	maxRecordSize = 4096

	authSecretLen = 16
	gcmTagLen     = 16
	headerLen     = 16 + 4 + 1 + 65
)

// MaxPayloadSize is the largest plaintext that fits in one aes128gcm record.
const MaxPayloadSize = maxRecordSize - headerLen - gcmTagLen - 1

// errCaptured stops webpush-go before it touches the network.
var errCaptured = errors.New("push: request captured")

// ParseUrgency maps an RFC 8030 urgency string to the webpush-go value.
// Empty means normal.
func ParseUrgency(s string) (webpush.Urgency, error) {
	switch u := webpush.Urgency(strings.ToLower(strings.TrimSpace(s))); u {
	case "":
		return webpush.UrgencyNormal, nil
	case webpush.UrgencyVeryLow, webpush.UrgencyLow, webpush.UrgencyNormal, webpush.UrgencyHigh:
		return u, nil
	}
	return "", fmt.Errorf("invalid urgency %q", s)
}

// Request is a fully built, encrypted push message ready to POST.
type Request struct {
	Endpoint string
	Header   http.Header
	Body     []byte
}

// HTTPRequest materializes the request bound to ctx.
func (r *Request) HTTPRequest(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(r.Body))
	if err != nil {
		return nil, err
	}
	for k, v := range r.Header {
		req.Header[k] = append([]string(nil), v...)
	}
	return req, nil
}

// captureClient satisfies webpush.HTTPClient by keeping the request instead
// of sending it.
type captureClient struct {
	req *http.Request
}

func (c *captureClient) Do(req *http.Request) (*http.Response, error) {
	c.req = req
	return nil, errCaptured
}

// Encoder builds RFC 8291/8292 push requests with webpush-go. Delivery is
// left to the caller so it controls the client, timeout and outcome.
type Encoder struct {
	keys *VAPIDKeys
}

func NewEncoder(keys *VAPIDKeys) *Encoder {
	return &Encoder{keys: keys}
}

// Build encrypts payload for sub and signs the VAPID authorization. Errors
// are always *EncodingError and concern only this subscription.
func (e *Encoder) Build(sub models.PushSubscription, payload []byte, ttl int, urgency webpush.Urgency) (*Request, error) {
	if err := ValidateSubscription(sub); err != nil {
		return nil, err
	}
	if len(payload) > MaxPayloadSize {
		return nil, encodingErr(EncodingPayloadTooLarge, "payload is %d bytes, limit %d", len(payload), MaxPayloadSize)
	}
	if ttl < 0 {
		ttl = 0
	}
	if urgency == "" {
		urgency = webpush.UrgencyNormal
	}

	client := &captureClient{}
	_, err := webpush.SendNotificationWithContext(context.Background(), payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
	}, &webpush.Options{
		HTTPClient:      client,
		RecordSize:      maxRecordSize,
		Subscriber:      e.subscriber(),
		TTL:             ttl,
		Urgency:         urgency,
		VAPIDPublicKey:  e.keys.PublicKeyString(),
		VAPIDPrivateKey: e.keys.privateKeyString(),
	})
	if client.req == nil {
		if err == nil {
			err = errors.New("no request built")
		}
		return nil, encodingErr(EncodingInvalidSubscriptionKeys, "encrypt: %w", err)
	}

	body, err := io.ReadAll(client.req.Body)
	if err != nil {
		return nil, encodingErr(EncodingInvalidSubscriptionKeys, "read encrypted body: %w", err)
	}
	return &Request{Endpoint: sub.Endpoint, Header: client.req.Header.Clone(), Body: body}, nil
}

// subscriber is the sub claim as webpush-go expects it: the library adds
// mailto: itself to anything that is not an https: URL.
func (e *Encoder) subscriber() string {
	sub := e.keys.subject
	if strings.HasPrefix(strings.ToLower(sub), "mailto:") {
		return sub[len("mailto:"):]
	}
	return sub
}

// audience returns scheme://host of the push service, the VAPID aud claim.
func audience(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", encodingErr(EncodingInvalidEndpoint, "parse endpoint: %w", err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return "", encodingErr(EncodingInvalidEndpoint, "endpoint must be an absolute http(s) URL")
	}
	return u.Scheme + "://" + u.Host, nil
}

// EndpointOrigin is audience without the error, for logging.
func EndpointOrigin(endpoint string) string {
	aud, err := audience(endpoint)
	if err != nil {
		return "invalid"
	}
	return aud
}

// ValidateSubscription rejects subscriptions Build could never encode.
func ValidateSubscription(sub models.PushSubscription) error {
	if _, err := audience(sub.Endpoint); err != nil {
		return err
	}
	uaPublic, err := decodeBase64(sub.P256dh)
	if err != nil {
		return encodingErr(EncodingInvalidSubscriptionKeys, "p256dh is not base64: %w", err)
	}
	if _, err := ecdh.P256().NewPublicKey(uaPublic); err != nil {
		return encodingErr(EncodingInvalidSubscriptionKeys, "p256dh is not a P-256 point (%d bytes)", len(uaPublic))
	}
	authSecret, err := decodeBase64(sub.Auth)
	if err != nil {
		return encodingErr(EncodingInvalidSubscriptionKeys, "auth is not base64: %w", err)
	}
	if len(authSecret) != authSecretLen {
		return encodingErr(EncodingInvalidSubscriptionKeys, "auth secret is %d bytes, want %d", len(authSecret), authSecretLen)
	}
	return nil
}
