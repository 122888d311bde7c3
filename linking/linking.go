// Package linking binds Telegram accounts to helpdesk actors using single-use connection tokens.
package linking

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cyverse-de/helpdesk-notifier/common"
	"github.com/cyverse-de/helpdesk-notifier/logging"
	"github.com/cyverse-de/helpdesk-notifier/model"
)

var log = logging.Log.WithField("package", "linking")

// Replies sent in response to inbound bot messages.
const (
	LinkedReply  = "Your Telegram account is now linked. Helpdesk notifications will be delivered here."
	InvalidReply = "This connection link is invalid or has already been used. Please generate a new one in your profile settings."
	HelpReply    = "To receive helpdesk notifications here, open your profile settings and follow the Connect Telegram link."
	FailureReply = "Something went wrong while linking your account. Please try again later."
)

// redeemOrder is the order in which actor kinds are searched for a connection token.
var redeemOrder = []model.ActorKind{model.ActorClient, model.ActorStaff}

// BindingStore persists Telegram bindings.
type BindingStore interface {
	ActorExists(ctx context.Context, actor model.Actor) (bool, error)
	GetTelegramBinding(ctx context.Context, actor model.Actor) (*model.TelegramBinding, error)
	StoreConnectionToken(ctx context.Context, actor model.Actor, token string, issuedAt time.Time) error
	RedeemConnectionToken(
		ctx context.Context,
		kind model.ActorKind,
		token string,
		externalUserID int64,
		externalHandle string,
		now time.Time,
	) (int64, bool, error)
	DisableTelegramBinding(ctx context.Context, actor model.Actor, now time.Time) error
}

// QREncoder renders text as a PNG QR code.
type QREncoder interface {
	Encode(text string) ([]byte, error)
}

// ConnectionLink is what an actor needs to link their Telegram account.
type ConnectionLink struct {
	Token    string `json:"-"`
	DeepLink string `json:"deep_link"`
	QRCode   []byte `json:"qr_code"`
}

// BindingStatus describes an actor's Telegram binding.
type BindingStatus struct {
	Connected    bool   `json:"connected"`
	Enabled      bool   `json:"enabled"`
	Handle       string `json:"handle,omitempty"`
	TokenPending bool   `json:"token_pending"`
}

// Linker issues and redeems connection tokens.
type Linker struct {
	store       BindingStore
	qr          QREncoder
	botUsername string
	now         func() time.Time
	newToken    func() (string, error)
}

// New returns a new linker for the bot with the given username.
func New(store BindingStore, qr QREncoder, botUsername string) *Linker {
	return &Linker{
		store:       store,
		qr:          qr,
		botUsername: strings.TrimPrefix(botUsername, "@"),
		now:         time.Now,
		newToken:    common.NewConnectionToken,
	}
}

func (l *Linker) requireActor(ctx context.Context, actor model.Actor) error {
	if err := actor.Validate(); err != nil {
		return errors.Wrap(model.ErrNotFound, err.Error())
	}
	exists, err := l.store.ActorExists(ctx, actor)
	if err != nil {
		return err
	}
	if !exists {
		return errors.Wrapf(model.ErrNotFound, "%s", actor)
	}
	return nil
}

// DeepLink returns the link that opens the bot with the token as its start parameter.
func (l *Linker) DeepLink(token string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", url.PathEscape(l.botUsername), url.QueryEscape(token))
}

// IssueToken stores a fresh connection token for the actor, replacing any token issued earlier, and returns
// the deep link and its QR code.
func (l *Linker) IssueToken(ctx context.Context, actor model.Actor) (*ConnectionLink, error) {
	wrapMsg := fmt.Sprintf("unable to issue a connection token for %s", actor)

	if l.botUsername == "" {
		return nil, errors.Wrap(model.ErrChannelDisabled, wrapMsg)
	}
	if err := l.requireActor(ctx, actor); err != nil {
		return nil, err
	}

	token, err := l.newToken()
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}
	if err = l.store.StoreConnectionToken(ctx, actor, token, l.now().UTC()); err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	link := &ConnectionLink{Token: token, DeepLink: l.DeepLink(token)}
	if l.qr != nil {
		if link.QRCode, err = l.qr.Encode(link.DeepLink); err != nil {
			return nil, errors.Wrap(err, wrapMsg)
		}
	}

	log.WithField("actor", actor.String()).Debug("issued a telegram connection token")
	return link, nil
}

// RedeemToken links the Telegram account to whichever actor currently holds the token. Client bindings are
// searched before staff bindings. Unknown, replaced and already redeemed tokens fail with ErrInvalidToken.
func (l *Linker) RedeemToken(ctx context.Context, token string, externalUserID int64, externalHandle string) (model.Actor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.Actor{}, model.ErrInvalidToken
	}

	now := l.now().UTC()
	for _, kind := range redeemOrder {
		id, ok, err := l.store.RedeemConnectionToken(ctx, kind, token, externalUserID, externalHandle, now)
		if err != nil {
			return model.Actor{}, err
		}
		if ok {
			return model.Actor{Kind: kind, ID: id}, nil
		}
	}

	return model.Actor{}, model.ErrInvalidToken
}

// Disconnect stops Telegram delivery for the actor while remembering the linked account.
func (l *Linker) Disconnect(ctx context.Context, actor model.Actor) error {
	if err := l.requireActor(ctx, actor); err != nil {
		return err
	}
	return l.store.DisableTelegramBinding(ctx, actor, l.now().UTC())
}

// Status returns the state of the actor's Telegram binding.
func (l *Linker) Status(ctx context.Context, actor model.Actor) (*BindingStatus, error) {
	if err := l.requireActor(ctx, actor); err != nil {
		return nil, err
	}

	binding, err := l.store.GetTelegramBinding(ctx, actor)
	if err != nil {
		return nil, err
	}

	status := &BindingStatus{}
	if binding == nil {
		return status, nil
	}
	status.Connected = binding.ExternalUserID != nil
	status.Enabled = binding.Deliverable()
	status.TokenPending = binding.ConnectionToken != nil
	if binding.ExternalHandle != nil {
		status.Handle = *binding.ExternalHandle
	}
	return status, nil
}

// parseCommand splits a bot command into its name and argument. A "@botname" suffix on the command is dropped.
func parseCommand(text string) (string, string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", ""
	}
	command := strings.ToLower(fields[0])
	if i := strings.Index(command, "@"); i >= 0 {
		command = command[:i]
	}
	if len(fields) > 1 {
		return command, fields[1]
	}
	return command, ""
}

// HandleInbound handles a text message sent to the bot and returns the reply. "/start <token>" redeems the
// token; anything else gets the help reply.
func (l *Linker) HandleInbound(ctx context.Context, externalUserID int64, externalHandle, text string) string {
	command, arg := parseCommand(text)
	if command != "/start" || arg == "" {
		return HelpReply
	}

	actor, err := l.RedeemToken(ctx, arg, externalUserID, externalHandle)
	switch {
	case errors.Is(err, model.ErrInvalidToken):
		return InvalidReply
	case err != nil:
		log.WithError(err).WithField("external_user_id", externalUserID).Error("unable to redeem a connection token")
		return FailureReply
	}

	log.WithFields(logrus.Fields{
		"actor":            actor.String(),
		"external_user_id": externalUserID,
	}).Info("linked a telegram account")
	return LinkedReply
}
