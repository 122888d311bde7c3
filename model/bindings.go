package model

import (
	"encoding/json"
	"time"
)

// Channel identifies one delivery medium.
type Channel string

const (
	ChannelInApp    Channel = "in_app"
	ChannelTelegram Channel = "telegram"
	ChannelEmail    Channel = "email"
)

// TelegramBinding links an actor to a Telegram account. Enabled implies ExternalUserID is set.
type TelegramBinding struct {
	Actor           Actor
	ExternalUserID  *int64
	ExternalHandle  *string
	Enabled         bool
	ConnectionToken *string
	TokenIssuedAt   *time.Time
}

// Deliverable returns true if messages can be sent to the bound Telegram account.
func (b *TelegramBinding) Deliverable() bool {
	return b != nil && b.Enabled && b.ExternalUserID != nil
}

// ChannelPreference says which external channels an actor wants for one event kind.
type ChannelPreference struct {
	Email    bool `json:"email"`
	Telegram bool `json:"telegram"`
}

// Preferences maps event kinds to channel preferences. A missing entry means every channel is allowed.
type Preferences map[EventKind]ChannelPreference

// Allows returns true unless the preferences explicitly disable the channel for the kind.
func (p Preferences) Allows(kind EventKind, channel Channel) bool {
	pref, ok := p[kind]
	if !ok {
		return true
	}
	switch channel {
	case ChannelEmail:
		return pref.Email
	case ChannelTelegram:
		return pref.Telegram
	default:
		return true
	}
}

// Validate returns ErrInvalidPreferences if any entry names an unknown kind.
func (p Preferences) Validate() error {
	for kind := range p {
		if !kind.Valid() {
			return ErrInvalidPreferences
		}
	}
	return nil
}

// MarshalPreferences encodes preferences for storage. Nil preferences encode as an empty object.
func MarshalPreferences(p Preferences) ([]byte, error) {
	if p == nil {
		p = Preferences{}
	}
	return json.Marshal(p)
}

// UnmarshalPreferences decodes stored preferences. Empty input yields empty preferences.
func UnmarshalPreferences(b []byte) (Preferences, error) {
	p := Preferences{}
	if len(b) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// EmailBinding holds a client's notification email and its verification state. Verified implies
// VerificationCode is nil.
type EmailBinding struct {
	ClientID         int64
	Email            *string
	VerificationCode *string
	CodeSentAt       *time.Time
	Verified         bool
	Enabled          bool
	Preferences      Preferences
}

// Deliverable returns true if notification emails may be sent to the bound address.
func (b *EmailBinding) Deliverable() bool {
	return b != nil && b.Email != nil && *b.Email != "" && b.Verified && b.Enabled
}
