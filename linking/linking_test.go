package linking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyverse-de/helpdesk-notifier/model"
)

// memoryStore mimics the conditional updates performed by the database.
type memoryStore struct {
	mu        sync.Mutex
	actors    map[model.Actor]bool
	bindings  map[model.Actor]*model.TelegramBinding
	redeemErr error
}

func newMemoryStore(actors ...model.Actor) *memoryStore {
	s := &memoryStore{actors: map[model.Actor]bool{}, bindings: map[model.Actor]*model.TelegramBinding{}}
	for _, a := range actors {
		s.actors[a] = true
	}
	return s
}

func (s *memoryStore) ActorExists(_ context.Context, actor model.Actor) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actors[actor], nil
}

func (s *memoryStore) GetTelegramBinding(_ context.Context, actor model.Actor) (*model.TelegramBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[actor]
	if !ok {
		return nil, nil
	}
	copied := *b
	return &copied, nil
}

func (s *memoryStore) StoreConnectionToken(_ context.Context, actor model.Actor, token string, issuedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[actor]
	if !ok {
		b = &model.TelegramBinding{Actor: actor}
		s.bindings[actor] = b
	}
	b.ConnectionToken = &token
	b.TokenIssuedAt = &issuedAt
	return nil
}

func (s *memoryStore) RedeemConnectionToken(
	_ context.Context,
	kind model.ActorKind,
	token string,
	externalUserID int64,
	externalHandle string,
	_ time.Time,
) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.redeemErr != nil {
		return 0, false, s.redeemErr
	}
	for actor, b := range s.bindings {
		if actor.Kind != kind || b.ConnectionToken == nil || *b.ConnectionToken != token {
			continue
		}
		b.ExternalUserID = &externalUserID
		b.ExternalHandle = &externalHandle
		b.Enabled = true
		b.ConnectionToken = nil
		return actor.ID, true, nil
	}
	return 0, false, nil
}

func (s *memoryStore) DisableTelegramBinding(_ context.Context, actor model.Actor, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bindings[actor]; ok {
		b.Enabled = false
	}
	return nil
}

type fakeQR struct {
	encoded []string
}

func (q *fakeQR) Encode(text string) ([]byte, error) {
	q.encoded = append(q.encoded, text)
	return []byte("png:" + text), nil
}

func newTestLinker(store BindingStore) *Linker {
	l := New(store, &fakeQR{}, "@helpdesk_bot")
	counter := 0
	l.newToken = func() (string, error) {
		counter++
		return fmt.Sprintf("token%d", counter), nil
	}
	return l
}

func TestIssueToken(t *testing.T) {
	actor := model.Client(7)
	store := newMemoryStore(actor)
	l := newTestLinker(store)

	link, err := l.IssueToken(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, "token1", link.Token)
	assert.Equal(t, "https://t.me/helpdesk_bot?start=token1", link.DeepLink)
	assert.Equal(t, []byte("png:https://t.me/helpdesk_bot?start=token1"), link.QRCode)

	status, err := l.Status(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, &BindingStatus{TokenPending: true}, status)
}

func TestIssueTokenUnknownActor(t *testing.T) {
	l := newTestLinker(newMemoryStore())

	_, err := l.IssueToken(context.Background(), model.StaffUser(99))
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = l.IssueToken(context.Background(), model.Actor{Kind: "robot", ID: 1})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestIssueTokenWithoutBot(t *testing.T) {
	actor := model.Client(7)
	l := New(newMemoryStore(actor), nil, "")

	_, err := l.IssueToken(context.Background(), actor)
	assert.ErrorIs(t, err, model.ErrChannelDisabled)
}

func TestRedeemToken(t *testing.T) {
	actor := model.StaffUser(3)
	store := newMemoryStore(actor)
	l := newTestLinker(store)
	ctx := context.Background()

	link, err := l.IssueToken(ctx, actor)
	require.NoError(t, err)

	linked, err := l.RedeemToken(ctx, link.Token, 5550001, "alice")
	require.NoError(t, err)
	assert.Equal(t, actor, linked)

	status, err := l.Status(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, &BindingStatus{Connected: true, Enabled: true, Handle: "alice"}, status)
}

func TestRedeemTokenTwice(t *testing.T) {
	actor := model.Client(7)
	store := newMemoryStore(actor)
	l := newTestLinker(store)
	ctx := context.Background()

	link, err := l.IssueToken(ctx, actor)
	require.NoError(t, err)

	_, err = l.RedeemToken(ctx, link.Token, 5550001, "alice")
	require.NoError(t, err)

	_, err = l.RedeemToken(ctx, link.Token, 5550002, "mallory")
	assert.ErrorIs(t, err, model.ErrInvalidToken)

	binding, err := store.GetTelegramBinding(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, int64(5550001), *binding.ExternalUserID)
}

func TestReissueInvalidatesPreviousToken(t *testing.T) {
	actor := model.Client(7)
	l := newTestLinker(newMemoryStore(actor))
	ctx := context.Background()

	first, err := l.IssueToken(ctx, actor)
	require.NoError(t, err)
	second, err := l.IssueToken(ctx, actor)
	require.NoError(t, err)
	require.NotEqual(t, first.Token, second.Token)

	_, err = l.RedeemToken(ctx, first.Token, 5550001, "alice")
	assert.ErrorIs(t, err, model.ErrInvalidToken)

	linked, err := l.RedeemToken(ctx, second.Token, 5550001, "alice")
	require.NoError(t, err)
	assert.Equal(t, actor, linked)
}

func TestRedeemEmptyToken(t *testing.T) {
	l := newTestLinker(newMemoryStore())

	_, err := l.RedeemToken(context.Background(), "  ", 1, "")
	assert.ErrorIs(t, err, model.ErrInvalidToken)
}

func TestDisconnectKeepsExternalIdentity(t *testing.T) {
	actor := model.StaffUser(3)
	store := newMemoryStore(actor)
	l := newTestLinker(store)
	ctx := context.Background()

	link, err := l.IssueToken(ctx, actor)
	require.NoError(t, err)
	_, err = l.RedeemToken(ctx, link.Token, 5550001, "alice")
	require.NoError(t, err)

	require.NoError(t, l.Disconnect(ctx, actor))
	require.NoError(t, l.Disconnect(ctx, actor))

	status, err := l.Status(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, &BindingStatus{Connected: true, Enabled: false, Handle: "alice"}, status)
}

func TestStatusUnlinked(t *testing.T) {
	actor := model.Client(1)
	l := newTestLinker(newMemoryStore(actor))

	status, err := l.Status(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, &BindingStatus{}, status)
}

func TestHandleInbound(t *testing.T) {
	actor := model.Client(7)
	l := newTestLinker(newMemoryStore(actor))
	ctx := context.Background()

	link, err := l.IssueToken(ctx, actor)
	require.NoError(t, err)

	assert.Equal(t, HelpReply, l.HandleInbound(ctx, 1, "alice", "hello"))
	assert.Equal(t, HelpReply, l.HandleInbound(ctx, 1, "alice", "/start"))
	assert.Equal(t, HelpReply, l.HandleInbound(ctx, 1, "alice", "/help"))
	assert.Equal(t, HelpReply, l.HandleInbound(ctx, 1, "alice", ""))
	assert.Equal(t, InvalidReply, l.HandleInbound(ctx, 1, "alice", "/start bogus"))
	assert.Equal(t, LinkedReply, l.HandleInbound(ctx, 1, "alice", "/start@helpdesk_bot "+link.Token))
	assert.Equal(t, InvalidReply, l.HandleInbound(ctx, 1, "alice", "/start "+link.Token))
}

func TestHandleInboundStoreFailure(t *testing.T) {
	store := newMemoryStore()
	store.redeemErr = errors.New("connection reset")
	l := newTestLinker(store)

	assert.Equal(t, FailureReply, l.HandleInbound(context.Background(), 1, "alice", "/start token1"))
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text    string
		command string
		arg     string
	}{
		{"/start abc", "/start", "abc"},
		{"  /START   abc  ", "/start", "abc"},
		{"/start@bot abc", "/start", "abc"},
		{"/start", "/start", ""},
		{"start abc", "", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		command, arg := parseCommand(tt.text)
		assert.Equal(t, tt.command, command, tt.text)
		assert.Equal(t, tt.arg, arg, tt.text)
	}
}

func TestQRCodeEncode(t *testing.T) {
	png, err := QRCode{}.Encode("https://t.me/helpdesk_bot?start=abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])
}
