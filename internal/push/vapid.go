package push

import (
	"bytes"
	"crypto/ecdh"
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"
)

const (
	vapidPublicKeyLen  = 65
	vapidPrivateKeyLen = 32
)

// VAPIDKeys is the application server identity. It is immutable after
// LoadVAPIDKeys and safe to share across goroutines.
type VAPIDKeys struct {
	publicKey  []byte
	privateKey []byte
	subject    string
}

// PublicKey returns the uncompressed P-256 point (0x04 || X || Y).
func (k *VAPIDKeys) PublicKey() []byte { return bytes.Clone(k.publicKey) }

// PublicKeyString returns the public key as unpadded base64url, the form
// browsers expect as applicationServerKey.
func (k *VAPIDKeys) PublicKeyString() string {
	return base64.RawURLEncoding.EncodeToString(k.publicKey)
}

func (k *VAPIDKeys) privateKeyString() string {
	return base64.RawURLEncoding.EncodeToString(k.privateKey)
}

// Subject returns the normalized sub claim.
func (k *VAPIDKeys) Subject() string { return k.subject }

// LoadVAPIDKeys decodes and validates operator-supplied key material.
// Any failure is a *ConfigError naming the offending variable.
func LoadVAPIDKeys(publicB64, privateB64, subject string, log *zap.Logger) (*VAPIDKeys, error) {
	if log == nil {
		log = zap.NewNop()
	}

	pub, err := decodeKeyField("VAPID_PUBLIC_KEY", publicB64)
	if err != nil {
		return nil, err
	}
	priv, err := decodeKeyField("VAPID_PRIVATE_KEY", privateB64)
	if err != nil {
		return nil, err
	}

	if len(pub) != vapidPublicKeyLen {
		return nil, &ConfigError{
			Field:  "VAPID_PUBLIC_KEY",
			Kind:   ConfigInvalidKeyShape,
			Detail: fmt.Sprintf("expected %d bytes, got %d", vapidPublicKeyLen, len(pub)),
		}
	}
	if pub[0] != 0x04 {
		return nil, &ConfigError{
			Field:  "VAPID_PUBLIC_KEY",
			Kind:   ConfigInvalidKeyShape,
			Detail: fmt.Sprintf("expected uncompressed point prefix 0x04, got 0x%02x (length %d)", pub[0], len(pub)),
		}
	}
	if len(priv) != vapidPrivateKeyLen {
		return nil, &ConfigError{
			Field:  "VAPID_PRIVATE_KEY",
			Kind:   ConfigInvalidKeyShape,
			Detail: fmt.Sprintf("expected %d bytes, got %d", vapidPrivateKeyLen, len(priv)),
		}
	}

	if _, err := ecdh.P256().NewPublicKey(pub); err != nil {
		return nil, &ConfigError{Field: "VAPID_PUBLIC_KEY", Kind: ConfigInvalidKeyShape, Detail: "not a point on P-256"}
	}
	ecdhPriv, err := ecdh.P256().NewPrivateKey(priv)
	if err != nil {
		return nil, &ConfigError{Field: "VAPID_PRIVATE_KEY", Kind: ConfigInvalidKeyShape, Detail: "scalar out of range for P-256"}
	}
	if !bytes.Equal(ecdhPriv.PublicKey().Bytes(), pub) {
		return nil, &ConfigError{
			Field:  "VAPID_PUBLIC_KEY",
			Kind:   ConfigKeyMismatch,
			Detail: "public key does not belong to VAPID_PRIVATE_KEY",
		}
	}

	sub, err := normalizeSubject(subject, log)
	if err != nil {
		return nil, err
	}

	return &VAPIDKeys{publicKey: pub, privateKey: priv, subject: sub}, nil
}

func decodeKeyField(field, value string) ([]byte, error) {
	if strings.TrimSpace(value) == "" {
		return nil, &ConfigError{Field: field, Kind: ConfigMissing}
	}
	b, err := decodeBase64(value)
	if err != nil {
		return nil, &ConfigError{Field: field, Kind: ConfigInvalidEncoding, Detail: "not valid base64url"}
	}
	return b, nil
}

// decodeBase64 accepts base64url or standard base64, padded or not. Browsers
// and key generators disagree on the form.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}

// normalizeSubject keeps mailto:/http(s): URIs, prefixes bare emails with
// mailto:, and passes anything else (plain http: included) through with a
// warning. Safari's push
// service rejects subjects that are not mailto: or https: URIs.
func normalizeSubject(subject string, log *zap.Logger) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", &ConfigError{Field: "VAPID_SUBJECT", Kind: ConfigMissing}
	}

	lower := strings.ToLower(subject)
	if strings.HasPrefix(lower, "http://") {
		log.Warn("VAPID subject uses plain http:; it is sent with a mailto: prefix and most push services will reject it",
			zap.String("subject", subject))
		return subject, nil
	}
	for _, prefix := range []string{"mailto:", "https://"} {
		if strings.HasPrefix(lower, prefix) {
			return subject, nil
		}
	}

	if addr, err := mail.ParseAddress(subject); err == nil && addr.Address == subject {
		return "mailto:" + subject, nil
	}

	log.Warn("VAPID subject is neither a mailto: nor an https: URI; some push services will reject it",
		zap.String("subject", subject))
	return subject, nil
}
