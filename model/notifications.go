package model

import "time"

// Notification is a single in-app feed entry. The feed is append-only and the Read flag never
// reverts to false once set.
type Notification struct {
	ID            int64     `json:"id"`
	Recipient     Actor     `json:"recipient"`
	Kind          EventKind `json:"kind"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	ReferenceType *string   `json:"reference_type,omitempty"`
	ReferenceID   *int64    `json:"reference_id,omitempty"`
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"created_at"`
}

// ListOptions restricts a feed listing.
type ListOptions struct {
	UnreadOnly bool
	Limit      uint64
	Offset     uint64
}
