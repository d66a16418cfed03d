package models

import "time"

// PushSubscription is one browser/device delivery handle for a user.
// (UserID, Endpoint) is unique.
type PushSubscription struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	Endpoint   string    `json:"endpoint"`
	P256dh     string    `json:"-"` // subscriber ECDH public key, base64url
	Auth       string    `json:"-"` // 16-byte auth secret, base64url
	DeviceName string    `json:"device_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DeliveryOutcome classifies a single push attempt.
type DeliveryOutcome string

const (
	OutcomeDelivered        DeliveryOutcome = "delivered"
	OutcomeGone             DeliveryOutcome = "gone"
	OutcomeTransientFailure DeliveryOutcome = "transient_failure"
	OutcomeEncodingFailure  DeliveryOutcome = "encoding_failure"
)

// DeliveryFailure describes why one subscription did not receive a message.
type DeliveryFailure struct {
	SubscriptionID int64           `json:"subscription_id"`
	Outcome        DeliveryOutcome `json:"outcome"`
	StatusCode     int             `json:"status_code,omitempty"`
	Reason         string          `json:"reason"`
}

// DeliveryReport aggregates the per-subscription results of one send.
type DeliveryReport struct {
	Sent     int               `json:"sent"`
	Total    int               `json:"total"`
	Pruned   int               `json:"pruned"`
	Failures []DeliveryFailure `json:"failures"`
}
