// Package testutil provides in-memory stores, key material and a fake push
// service for tests.
package testutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"testing"

	"golang.org/x/crypto/hkdf"

	"finance-push-go/internal/models"
	"finance-push-go/internal/push"
)

// NewVAPIDKeyStrings returns a matching base64url public/private key pair.
func NewVAPIDKeyStrings(t testing.TB) (public, private string) {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate vapid key: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(key.Bytes())
}

// NewVAPIDKeys returns loaded keys with a mailto subject.
func NewVAPIDKeys(t testing.TB) *push.VAPIDKeys {
	t.Helper()
	pub, priv := NewVAPIDKeyStrings(t)
	keys, err := push.LoadVAPIDKeys(pub, priv, "mailto:ops@example.com", nil)
	if err != nil {
		t.Fatalf("load vapid keys: %v", err)
	}
	return keys
}

// Subscriber plays the browser side of a push subscription.
type Subscriber struct {
	key  *ecdh.PrivateKey
	auth []byte
}

func NewSubscriber(t testing.TB) *Subscriber {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate subscriber key: %v", err)
	}
	auth := make([]byte, 16)
	if _, err := rand.Read(auth); err != nil {
		t.Fatalf("generate auth secret: %v", err)
	}
	return &Subscriber{key: key, auth: auth}
}

// Subscription returns a subscription record pointing at endpoint.
func (s *Subscriber) Subscription(userID, endpoint string) models.PushSubscription {
	return models.PushSubscription{
		UserID:   userID,
		Endpoint: endpoint,
		P256dh:   base64.RawURLEncoding.EncodeToString(s.key.PublicKey().Bytes()),
		Auth:     base64.RawURLEncoding.EncodeToString(s.auth),
	}
}

// Decrypt reverses aes128gcm encoding for a single-record body.
func (s *Subscriber) Decrypt(body []byte) ([]byte, error) {
	if len(body) < 21 {
		return nil, errors.New("body shorter than header")
	}
	salt := body[:16]
	rs := binary.BigEndian.Uint32(body[16:20])
	idLen := int(body[20])
	if len(body) < 21+idLen {
		return nil, errors.New("truncated key id")
	}
	asPublic := body[21 : 21+idLen]
	ciphertext := body[21+idLen:]
	if uint32(len(ciphertext)) > rs {
		return nil, fmt.Errorf("record of %d bytes exceeds rs %d", len(ciphertext), rs)
	}

	asKey, err := ecdh.P256().NewPublicKey(asPublic)
	if err != nil {
		return nil, fmt.Errorf("sender key: %w", err)
	}
	shared, err := s.key.ECDH(asKey)
	if err != nil {
		return nil, err
	}

	uaPublic := s.key.PublicKey().Bytes()
	info := append([]byte("WebPush: info\x00"), uaPublic...)
	info = append(info, asPublic...)

	ikm, err := derive(shared, s.auth, info, 32)
	if err != nil {
		return nil, err
	}
	cek, err := derive(ikm, salt, []byte("Content-Encoding: aes128gcm\x00"), 16)
	if err != nil {
		return nil, err
	}
	nonce, err := derive(ikm, salt, []byte("Content-Encoding: nonce\x00"), 12)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open record: %w", err)
	}

	end := len(plain) - 1
	for end >= 0 && plain[end] == 0 {
		end--
	}
	if end < 0 || plain[end] != 0x02 {
		return nil, errors.New("missing last-record delimiter")
	}
	return plain[:end], nil
}

func derive(secret, salt, info []byte, n int) ([]byte, error) {
	out := make([]byte, n)
	_, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), out)
	return out, err
}
