// Package verification implements the email verification state machine for clients. A client's
// notification email moves from none to pending when a code is requested, and from pending to verified
// when the code is confirmed. Unbinding returns it to none.
package verification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/cyverse-de/helpdesk-notifier/common"
	"github.com/cyverse-de/helpdesk-notifier/logging"
	"github.com/cyverse-de/helpdesk-notifier/model"
	"github.com/cyverse-de/helpdesk-notifier/templates"
)

var log = logging.Log.WithField("package", "verification")

// Store persists email bindings.
type Store interface {
	ActorExists(ctx context.Context, actor model.Actor) (bool, error)
	GetEmailBinding(ctx context.Context, clientID int64) (*model.EmailBinding, error)
	StorePendingEmail(ctx context.Context, clientID int64, email, code string, sentAt time.Time) error
	ConfirmEmailCode(ctx context.Context, clientID int64, code string) (bool, error)
	ClearEmailBinding(ctx context.Context, clientID int64) error
	SaveEmailPreferences(ctx context.Context, clientID int64, prefs model.Preferences, enabled bool) error
}

// Mailer delivers a rendered email.
type Mailer interface {
	Send(ctx context.Context, to string, content templates.EmailContent, attachment *model.Attachment) error
}

// EmailState is a client's notification email settings as shown to the client.
type EmailState struct {
	Email       string            `json:"email,omitempty"`
	Verified    bool              `json:"verified"`
	Enabled     bool              `json:"enabled"`
	Pending     bool              `json:"pending"`
	Preferences model.Preferences `json:"preferences"`
}

// Verifier manages client email bindings.
type Verifier struct {
	store    Store
	renderer *templates.Renderer
	mailer   Mailer
	codeTTL  time.Duration
	now      func() time.Time
	newCode  func() (string, error)
}

// New returns a new verifier. A nil mailer means email is not configured. A zero code TTL means codes
// never expire.
func New(store Store, renderer *templates.Renderer, mailer Mailer, codeTTL time.Duration) *Verifier {
	return &Verifier{
		store:    store,
		renderer: renderer,
		mailer:   mailer,
		codeTTL:  codeTTL,
		now:      time.Now,
		newCode:  common.NewVerificationCode,
	}
}

func (v *Verifier) requireClient(ctx context.Context, clientID int64) error {
	client := model.Client(clientID)
	if clientID <= 0 {
		return errors.Wrapf(model.ErrNotFound, "%s", client)
	}
	exists, err := v.store.ActorExists(ctx, client)
	if err != nil {
		return err
	}
	if !exists {
		return errors.Wrapf(model.ErrNotFound, "%s", client)
	}
	return nil
}

// State returns the client's email settings.
func (v *Verifier) State(ctx context.Context, clientID int64) (*EmailState, error) {
	if err := v.requireClient(ctx, clientID); err != nil {
		return nil, err
	}

	binding, err := v.store.GetEmailBinding(ctx, clientID)
	if err != nil {
		return nil, err
	}

	state := &EmailState{Preferences: model.Preferences{}}
	if binding == nil {
		return state, nil
	}
	if binding.Email != nil {
		state.Email = *binding.Email
	}
	state.Verified = binding.Verified
	state.Enabled = binding.Enabled
	state.Pending = binding.VerificationCode != nil
	if binding.Preferences != nil {
		state.Preferences = binding.Preferences
	}
	return state, nil
}

// RequestVerification stores the candidate address with a fresh code and emails the code to it. Any code
// issued earlier stops working.
func (v *Verifier) RequestVerification(ctx context.Context, clientID int64, email string) error {
	wrapMsg := fmt.Sprintf("unable to request verification of the email address for client %d", clientID)

	email = strings.TrimSpace(email)
	if err := common.ValidateEmailAddress(email); err != nil {
		return errors.Wrapf(model.ErrInvalidEmail, "%s", email)
	}
	if err := v.requireClient(ctx, clientID); err != nil {
		return err
	}
	if v.mailer == nil {
		return errors.Wrap(model.ErrChannelDisabled, wrapMsg)
	}

	code, err := v.newCode()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	if err = v.store.StorePendingEmail(ctx, clientID, email, code, v.now().UTC()); err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	content, err := v.renderer.VerificationEmail(code)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	if err = v.mailer.Send(ctx, email, content, nil); err != nil {
		return errors.Wrap(err, "unable to send the verification code")
	}

	log.WithField("client_id", clientID).Info("sent an email verification code")
	return nil
}

// Verify confirms the pending code. A code that doesn't match leaves the binding as it was.
func (v *Verifier) Verify(ctx context.Context, clientID int64, code string) error {
	if err := v.requireClient(ctx, clientID); err != nil {
		return err
	}

	binding, err := v.store.GetEmailBinding(ctx, clientID)
	if err != nil {
		return err
	}
	if binding == nil || binding.VerificationCode == nil {
		return model.ErrVerificationMismatch
	}
	if v.codeTTL > 0 && binding.CodeSentAt != nil && v.now().Sub(*binding.CodeSentAt) > v.codeTTL {
		return model.ErrCodeExpired
	}

	ok, err := v.store.ConfirmEmailCode(ctx, clientID, strings.TrimSpace(code))
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrVerificationMismatch
	}

	log.WithField("client_id", clientID).Info("verified a client email address")
	return nil
}

// Unbind removes the client's email address. Unbinding a client with no address is not an error.
func (v *Verifier) Unbind(ctx context.Context, clientID int64) error {
	if err := v.requireClient(ctx, clientID); err != nil {
		return err
	}
	return v.store.ClearEmailBinding(ctx, clientID)
}

// SetPreferences stores the client's per-kind channel preferences and whether email is enabled at all.
func (v *Verifier) SetPreferences(ctx context.Context, clientID int64, prefs model.Preferences, enabled bool) error {
	if err := prefs.Validate(); err != nil {
		return err
	}
	if err := v.requireClient(ctx, clientID); err != nil {
		return err
	}
	return v.store.SaveEmailPreferences(ctx, clientID, prefs, enabled)
}
