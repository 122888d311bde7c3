package model

import "time"

// AuthorKind says which side wrote a ticket comment.
type AuthorKind string

const (
	AuthorNone   AuthorKind = "none"
	AuthorStaff  AuthorKind = "staff"
	AuthorClient AuthorKind = "client"
)

// ReadMarker records when a viewer last opened a ticket.
type ReadMarker struct {
	TicketID   int64
	Viewer     Actor
	LastReadAt time.Time
}

// TicketActivity summarizes the most recent comment on a ticket. It is derived, never stored.
type TicketActivity struct {
	TicketID          int64
	LastCommentAt     *time.Time
	LastCommentAuthor AuthorKind
}

// TicketRow is the subset of a ticket list row needed to order the list.
type TicketRow struct {
	ID        int64     `json:"id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
	Unread    bool      `json:"unread"`
}
