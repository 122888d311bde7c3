package model

import (
	"fmt"
	"strings"
)

// ActorKind identifies which side of the helpdesk an actor belongs to.
type ActorKind string

const (
	// ActorClient is a customer of the helpdesk.
	ActorClient ActorKind = "client"

	// ActorStaff is a staff user working tickets.
	ActorStaff ActorKind = "staff"
)

// Actor is anything that can receive notifications or view tickets: either a client or a staff user.
type Actor struct {
	Kind ActorKind `json:"type"`
	ID   int64     `json:"id"`
}

// Client returns the actor representing the client with the given ID.
func Client(id int64) Actor {
	return Actor{Kind: ActorClient, ID: id}
}

// StaffUser returns the actor representing the staff user with the given ID.
func StaffUser(id int64) Actor {
	return Actor{Kind: ActorStaff, ID: id}
}

// IsClient returns true if the actor is a client.
func (a Actor) IsClient() bool {
	return a.Kind == ActorClient
}

// IsStaff returns true if the actor is a staff user.
func (a Actor) IsStaff() bool {
	return a.Kind == ActorStaff
}

// Validate returns an error if the actor is malformed.
func (a Actor) Validate() error {
	if a.Kind != ActorClient && a.Kind != ActorStaff {
		return fmt.Errorf("invalid actor type: %q", a.Kind)
	}
	if a.ID <= 0 {
		return fmt.Errorf("invalid actor ID: %d", a.ID)
	}
	return nil
}

// String returns a compact representation suitable for log fields.
func (a Actor) String() string {
	return fmt.Sprintf("%s:%d", a.Kind, a.ID)
}

// ParseActorKind converts a string to an ActorKind. The legacy name "user" is accepted for staff.
func ParseActorKind(s string) (ActorKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "client":
		return ActorClient, nil
	case "staff", "user":
		return ActorStaff, nil
	default:
		return "", fmt.Errorf("invalid actor type: %q", s)
	}
}
