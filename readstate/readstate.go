// Package readstate derives per-viewer unread state for tickets from read markers and comment authorship.
// Nothing about unread state is stored on the ticket itself; it is recomputed on every request.
package readstate

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/cyverse-de/helpdesk-notifier/model"
)

// Store provides ticket activity and read markers.
type Store interface {
	TicketExists(ctx context.Context, ticketID int64) (bool, error)
	GetTicketActivity(ctx context.Context, ticketID int64) (model.TicketActivity, error)
	ListTicketActivity(ctx context.Context, ticketIDs []int64) (map[int64]model.TicketActivity, error)
	GetReadMarker(ctx context.Context, ticketID int64, viewer model.Actor) (*time.Time, error)
	ListReadMarkers(ctx context.Context, ticketIDs []int64, viewer model.Actor) (map[int64]time.Time, error)
	UpsertReadMarker(ctx context.Context, ticketID int64, viewer model.Actor, at time.Time) error
}

// Derive reports whether a ticket has unread activity for a viewer of the given kind. Only a last comment
// written by the other side can be unread, and only if it is strictly newer than the viewer's last visit.
func Derive(activity model.TicketActivity, lastReadAt *time.Time, viewerKind model.ActorKind) bool {
	if activity.LastCommentAt == nil {
		return false
	}

	var otherSide model.AuthorKind
	switch viewerKind {
	case model.ActorStaff:
		otherSide = model.AuthorClient
	case model.ActorClient:
		otherSide = model.AuthorStaff
	default:
		return false
	}
	if activity.LastCommentAuthor != otherSide {
		return false
	}

	return lastReadAt == nil || activity.LastCommentAt.After(*lastReadAt)
}

// Tracker answers unread queries and records ticket views.
type Tracker struct {
	store Store
	now   func() time.Time
}

// New returns a new tracker.
func New(store Store) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

func (t *Tracker) requireTicket(ctx context.Context, ticketID int64, viewer model.Actor) error {
	if err := viewer.Validate(); err != nil {
		return errors.Wrap(model.ErrNotFound, err.Error())
	}
	exists, err := t.store.TicketExists(ctx, ticketID)
	if err != nil {
		return err
	}
	if !exists {
		return errors.Wrapf(model.ErrNotFound, "ticket %d", ticketID)
	}
	return nil
}

// IsUnread reports whether the ticket has activity the viewer hasn't seen.
func (t *Tracker) IsUnread(ctx context.Context, ticketID int64, viewer model.Actor) (bool, error) {
	if err := t.requireTicket(ctx, ticketID, viewer); err != nil {
		return false, err
	}

	activity, err := t.store.GetTicketActivity(ctx, ticketID)
	if err != nil {
		return false, err
	}
	lastReadAt, err := t.store.GetReadMarker(ctx, ticketID, viewer)
	if err != nil {
		return false, err
	}

	return Derive(activity, lastReadAt, viewer.Kind), nil
}

// MarkViewed records that the viewer has just opened the ticket. The marker is never placed before the last
// comment, so a view always clears the unread state even if the database clock runs ahead.
func (t *Tracker) MarkViewed(ctx context.Context, ticketID int64, viewer model.Actor) error {
	if err := t.requireTicket(ctx, ticketID, viewer); err != nil {
		return err
	}

	activity, err := t.store.GetTicketActivity(ctx, ticketID)
	if err != nil {
		return err
	}

	at := t.now().UTC()
	if activity.LastCommentAt != nil && activity.LastCommentAt.After(at) {
		at = *activity.LastCommentAt
	}
	return t.store.UpsertReadMarker(ctx, ticketID, viewer, at)
}

// UnreadFlags derives the unread state of every listed ticket for the viewer.
func (t *Tracker) UnreadFlags(ctx context.Context, ticketIDs []int64, viewer model.Actor) (map[int64]bool, error) {
	flags := make(map[int64]bool, len(ticketIDs))
	if len(ticketIDs) == 0 {
		return flags, nil
	}
	if err := viewer.Validate(); err != nil {
		return nil, errors.Wrap(model.ErrNotFound, err.Error())
	}

	activity, err := t.store.ListTicketActivity(ctx, ticketIDs)
	if err != nil {
		return nil, err
	}
	markers, err := t.store.ListReadMarkers(ctx, ticketIDs, viewer)
	if err != nil {
		return nil, err
	}

	for _, id := range ticketIDs {
		var lastReadAt *time.Time
		if marker, ok := markers[id]; ok {
			lastReadAt = &marker
		}
		flags[id] = Derive(activity[id], lastReadAt, viewer.Kind)
	}
	return flags, nil
}

// Order fills in the unread flag of every row for the viewer and sorts the rows for display.
func (t *Tracker) Order(ctx context.Context, rows []model.TicketRow, viewer model.Actor) ([]model.TicketRow, error) {
	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	flags, err := t.UnreadFlags(ctx, ids, viewer)
	if err != nil {
		return nil, err
	}

	ordered := make([]model.TicketRow, len(rows))
	for i, row := range rows {
		row.Unread = flags[row.ID]
		ordered[i] = row
	}
	SortTickets(ordered)
	return ordered, nil
}

var statusRank = map[string]int{
	"new":         0,
	"open":        1,
	"in_progress": 2,
	"waiting":     3,
	"resolved":    4,
	"closed":      5,
}

func rank(status string) int {
	if r, ok := statusRank[status]; ok {
		return r
	}
	return len(statusRank)
}

// SortTickets orders rows with unread tickets first, then by status, then most recently updated first.
func SortTickets(rows []model.TicketRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Unread != b.Unread {
			return a.Unread
		}
		if ra, rb := rank(a.Status), rank(b.Status); ra != rb {
			return ra < rb
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID > b.ID
	})
}
