package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyverse-de/helpdesk-notifier/linking"
	"github.com/cyverse-de/helpdesk-notifier/model"
	"github.com/cyverse-de/helpdesk-notifier/verification"
)

type fakeNotifier struct {
	events  []model.Event
	staff   []model.Event
	missing map[model.Actor]bool
}

func (n *fakeNotifier) Notify(_ context.Context, event model.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if n.missing[event.Recipient] {
		return model.ErrNotFound
	}
	n.events = append(n.events, event)
	return nil
}

func (n *fakeNotifier) NotifyStaff(_ context.Context, event model.Event) (int, error) {
	if !event.Kind.Valid() {
		return 0, model.ErrUnknownKind
	}
	n.staff = append(n.staff, event)
	return 3, nil
}

type fakeFeed struct {
	lastOpts  model.ListOptions
	lastActor model.Actor
	markErr   error
}

func (f *fakeFeed) List(_ context.Context, recipient model.Actor, opts model.ListOptions) ([]model.Notification, error) {
	f.lastActor = recipient
	f.lastOpts = opts
	return []model.Notification{{ID: 1, Recipient: recipient, Kind: model.KindNewTicket, Title: "New ticket"}}, nil
}

func (f *fakeFeed) MarkRead(_ context.Context, _ int64, _ model.Actor) error {
	return f.markErr
}

func (f *fakeFeed) MarkAllRead(context.Context, model.Actor) (int64, error) {
	return 4, nil
}

func (f *fakeFeed) UnreadCount(context.Context, model.Actor) (int64, error) {
	return 7, nil
}

type fakeEmail struct {
	err         error
	requested   string
	verified    string
	prefs       model.Preferences
	enabled     bool
	unboundCall bool
}

func (e *fakeEmail) State(_ context.Context, clientID int64) (*verification.EmailState, error) {
	if clientID != 1 {
		return nil, model.ErrNotFound
	}
	return &verification.EmailState{Email: "client@example.com", Verified: true, Enabled: true}, nil
}

func (e *fakeEmail) RequestVerification(_ context.Context, _ int64, email string) error {
	e.requested = email
	return e.err
}

func (e *fakeEmail) Verify(_ context.Context, _ int64, code string) error {
	e.verified = code
	return e.err
}

func (e *fakeEmail) Unbind(context.Context, int64) error {
	e.unboundCall = true
	return e.err
}

func (e *fakeEmail) SetPreferences(_ context.Context, _ int64, prefs model.Preferences, enabled bool) error {
	if err := prefs.Validate(); err != nil {
		return err
	}
	e.prefs = prefs
	e.enabled = enabled
	return e.err
}

type fakeLinker struct {
	disconnected []model.Actor
}

func (l *fakeLinker) Status(context.Context, model.Actor) (*linking.BindingStatus, error) {
	return &linking.BindingStatus{Connected: true, Enabled: true, Handle: "alice"}, nil
}

func (l *fakeLinker) IssueToken(_ context.Context, actor model.Actor) (*linking.ConnectionLink, error) {
	if actor.ID == 404 {
		return nil, model.ErrNotFound
	}
	return &linking.ConnectionLink{Token: "abc", DeepLink: "https://t.me/bot?start=abc", QRCode: []byte("png")}, nil
}

func (l *fakeLinker) Disconnect(_ context.Context, actor model.Actor) error {
	l.disconnected = append(l.disconnected, actor)
	return nil
}

type fakeReadState struct {
	viewed []model.Actor
}

func (s *fakeReadState) IsUnread(_ context.Context, ticketID int64, viewer model.Actor) (bool, error) {
	if ticketID == 404 {
		return false, model.ErrNotFound
	}
	return viewer.IsStaff(), nil
}

func (s *fakeReadState) MarkViewed(_ context.Context, _ int64, viewer model.Actor) error {
	s.viewed = append(s.viewed, viewer)
	return nil
}

func (s *fakeReadState) Order(_ context.Context, rows []model.TicketRow, _ model.Actor) ([]model.TicketRow, error) {
	ordered := make([]model.TicketRow, len(rows))
	for i, row := range rows {
		ordered[len(rows)-1-i] = row
	}
	return ordered, nil
}

type fixture struct {
	notifier  *fakeNotifier
	feed      *fakeFeed
	email     *fakeEmail
	linker    *fakeLinker
	readState *fakeReadState
	handler   http.Handler
}

func newFixture() *fixture {
	f := &fixture{
		notifier:  &fakeNotifier{},
		feed:      &fakeFeed{},
		email:     &fakeEmail{},
		linker:    &fakeLinker{},
		readState: &fakeReadState{},
	}
	server := &Server{
		Notifier:  f.notifier,
		Feed:      f.feed,
		Email:     f.email,
		Linker:    f.linker,
		ReadState: f.readState,
	}
	f.handler = server.Router(nil)
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	rec := newFixture().do(http.MethodGet, "/api/v1/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNotify(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/api/v1/events",
		`{"kind":"new_ticket","recipient":{"type":"staff","id":3},"payload":{"ticket_title":"VPN"}}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, model.StaffUser(3), f.notifier.events[0].Recipient)
	assert.Equal(t, "VPN", f.notifier.events[0].Payload.String("ticket_title"))
}

func TestNotifyRejectsBadInput(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/api/v1/events", `{"kind":"bogus","recipient":{"type":"client","id":1}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/events", `{"kind":"new_ticket","recipient":{"type":"robot","id":1}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/events", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, f.notifier.events)
}

func TestNotifyUnknownRecipient(t *testing.T) {
	f := newFixture()
	f.notifier.missing = map[model.Actor]bool{model.Client(404): true}

	rec := f.do(http.MethodPost, "/api/v1/events", `{"kind":"new_ticket","recipient":{"type":"client","id":404}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, f.notifier.events)
}

func TestNotifyStaff(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/api/v1/events/staff", `{"kind":"ticket_message","payload":{"message":"hi"}}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, float64(3), decode(t, rec)["recipients"])
	require.Len(t, f.notifier.staff, 1)
}

func TestListNotifications(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/api/v1/actors/client/5/notifications?unread=true&limit=10&offset=20", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.Client(5), f.feed.lastActor)
	assert.Equal(t, model.ListOptions{UnreadOnly: true, Limit: 10, Offset: 20}, f.feed.lastOpts)

	notifications, ok := decode(t, rec)["notifications"].([]interface{})
	require.True(t, ok)
	assert.Len(t, notifications, 1)
}

func TestListNotificationsBadParameters(t *testing.T) {
	f := newFixture()

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/actors/robot/5/notifications", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/actors/client/x/notifications", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/actors/client/5/notifications?limit=-1", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/actors/client/5/notifications?unread=maybe", "").Code)
}

func TestUnreadCount(t *testing.T) {
	rec := newFixture().do(http.MethodGet, "/api/v1/actors/user/5/notifications/unread-count", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(7), decode(t, rec)["count"])
}

func TestMarkRead(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/api/v1/actors/client/5/notifications/9/read", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	f.feed.markErr = model.ErrNotFound
	rec = f.do(http.MethodPost, "/api/v1/actors/client/5/notifications/9/read", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMarkAllRead(t *testing.T) {
	rec := newFixture().do(http.MethodPost, "/api/v1/actors/client/5/notifications/read-all", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(4), decode(t, rec)["updated"])
}

func TestEmailState(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/api/v1/clients/1/email", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "client@example.com", decode(t, rec)["email"])

	rec = f.do(http.MethodGet, "/api/v1/clients/2/email", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestVerification(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/api/v1/clients/1/email", `{"email":"client@example.com"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "client@example.com", f.email.requested)

	f.email.err = model.ErrInvalidEmail
	rec = f.do(http.MethodPost, "/api/v1/clients/1/email", `{"email":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.email.err = model.ErrChannelDisabled
	rec = f.do(http.MethodPost, "/api/v1/clients/1/email", `{"email":"client@example.com"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestVerifyEmail(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/api/v1/clients/1/email/verify", `{"code":"123456"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "123456", f.email.verified)

	f.email.err = model.ErrVerificationMismatch
	rec = f.do(http.MethodPost, "/api/v1/clients/1/email/verify", `{"code":"000000"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.email.err = model.ErrCodeExpired
	rec = f.do(http.MethodPost, "/api/v1/clients/1/email/verify", `{"code":"123456"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnbindEmail(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodDelete, "/api/v1/clients/1/email", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, f.email.unboundCall)
}

func TestSetPreferences(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPut, "/api/v1/clients/1/email/preferences",
		`{"enabled":false,"preferences":{"new_invoice":{"email":true,"telegram":false}}}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, f.email.enabled)
	assert.Equal(t, model.Preferences{model.KindNewInvoice: {Email: true}}, f.email.prefs)

	rec = f.do(http.MethodPut, "/api/v1/clients/1/email/preferences", `{"enabled":true,"preferences":{"bogus":{}}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPut, "/api/v1/clients/1/email/preferences", `{"preferences":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTelegramRoutes(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/api/v1/actors/staff/3/telegram", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decode(t, rec)["handle"])

	rec = f.do(http.MethodPost, "/api/v1/actors/staff/3/telegram/token", "")
	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "https://t.me/bot?start=abc", body["deep_link"])
	assert.Equal(t, "cG5n", body["qr_code"])
	_, hasToken := body["Token"]
	assert.False(t, hasToken)

	rec = f.do(http.MethodPost, "/api/v1/actors/staff/404/telegram/token", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodDelete, "/api/v1/actors/client/8/telegram", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []model.Actor{model.Client(8)}, f.linker.disconnected)
}

func TestTicketRoutes(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/api/v1/tickets/42/unread?viewer_type=staff&viewer_id=2", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["unread"])

	rec = f.do(http.MethodGet, "/api/v1/tickets/404/unread?viewer_type=staff&viewer_id=2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/tickets/42/unread", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/tickets/42/viewed?viewer_type=client&viewer_id=1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []model.Actor{model.Client(1)}, f.readState.viewed)
}

func TestOrderTickets(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/api/v1/tickets/unread",
		`{"viewer":{"type":"staff","id":2},"tickets":[{"id":1,"status":"open"},{"id":2,"status":"new"}]}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Tickets []model.TicketRow `json:"tickets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Tickets, 2)
	assert.Equal(t, int64(2), body.Tickets[0].ID)

	rec = f.do(http.MethodPost, "/api/v1/tickets/unread", `{"viewer":{"type":"nobody","id":2},"tickets":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(model.ErrNotFound))
	assert.Equal(t, http.StatusBadRequest, statusFor(model.ErrInvalidToken))
	assert.Equal(t, http.StatusBadRequest, statusFor(model.ErrInvalidPreferences))
	assert.Equal(t, http.StatusBadRequest, statusFor(badRequest("nope")))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(model.ErrChannelDisabled))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestInternalErrorsAreHidden(t *testing.T) {
	f := newFixture()
	f.feed.markErr = errors.New("pq: connection refused")

	rec := f.do(http.MethodPost, "/api/v1/actors/client/5/notifications/9/read", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decode(t, rec)["error"])
}
