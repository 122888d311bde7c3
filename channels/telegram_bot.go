package channels

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	tele "gopkg.in/telebot.v4"

	"github.com/cyverse-de/helpdesk-notifier/model"
)

// TelegramBot is a BotTransport backed by the Telegram Bot API.
type TelegramBot struct {
	bot *tele.Bot

	runMu   sync.Mutex
	running bool
	done    chan struct{}
}

// TelegramSettings configures the connection to the Bot API.
type TelegramSettings struct {
	Token string

	// PollTimeout applies to inbound long polling.
	PollTimeout time.Duration

	// RequestTimeout bounds a single outbound Bot API call. The HTTP client allows PollTimeout on top of it so
	// that long poll requests aren't cut short.
	RequestTimeout time.Duration

	// APIURL overrides the Bot API endpoint. Empty means the public Telegram endpoint.
	APIURL string
}

// NewTelegramBot connects to the Bot API.
func NewTelegramBot(settings TelegramSettings) (*TelegramBot, error) {
	if strings.TrimSpace(settings.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	pollTimeout := settings.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 10 * time.Second
	}
	requestTimeout := settings.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 15 * time.Second
	}

	b, err := tele.NewBot(tele.Settings{
		URL:    settings.APIURL,
		Token:  settings.Token,
		Poller: &tele.LongPoller{Timeout: pollTimeout},
		Client: &http.Client{Timeout: pollTimeout + requestTimeout},
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to create the telegram bot")
	}

	return &TelegramBot{bot: b}, nil
}

// call runs a Bot API request and returns early if the context is done first. telebot has no context support, so
// an abandoned request keeps running until the HTTP client times out.
func (t *TelegramBot) call(ctx context.Context, request func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- request()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Username returns the bot's username as reported by the Bot API.
func (t *TelegramBot) Username() string {
	if t.bot.Me == nil {
		return ""
	}
	return t.bot.Me.Username
}

// SendText sends an HTML formatted message to a Telegram user.
func (t *TelegramBot) SendText(ctx context.Context, externalUserID int64, markup string) error {
	err := t.call(ctx, func() error {
		_, err := t.bot.Send(&tele.Chat{ID: externalUserID}, markup, &tele.SendOptions{
			ParseMode:             tele.ModeHTML,
			DisableWebPagePreview: true,
		})
		return err
	})
	return errors.Wrap(err, "unable to send telegram message")
}

// SendDocument sends a file to a Telegram user.
func (t *TelegramBot) SendDocument(ctx context.Context, externalUserID int64, doc model.Attachment, caption string) error {
	document := &tele.Document{
		File:     tele.FromReader(bytes.NewReader(doc.Data)),
		FileName: doc.Name,
		MIME:     doc.ContentType,
		Caption:  caption,
	}
	err := t.call(ctx, func() error {
		_, err := t.bot.Send(&tele.Chat{ID: externalUserID}, document, &tele.SendOptions{ParseMode: tele.ModeHTML})
		return err
	})
	return errors.Wrap(err, "unable to send telegram document")
}

// Listen starts long polling in the background and forwards every text message to the handler. The
// handler's reply, if not empty, is sent back to the same chat.
func (t *TelegramBot) Listen(ctx context.Context, handler InboundHandler) {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.done = make(chan struct{})

	t.bot.Handle(tele.OnText, func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}
		reply := handler(ctx, sender.ID, sender.Username, c.Text())
		if reply == "" {
			return nil
		}
		return c.Send(reply, &tele.SendOptions{ParseMode: tele.ModeHTML})
	})

	go func() {
		defer close(t.done)
		log.Info("telegram polling started")
		t.bot.Start()
		log.Info("telegram polling stopped")
	}()
}

// Stop stops long polling and waits up to the context deadline for the poller to exit.
func (t *TelegramBot) Stop(ctx context.Context) {
	t.runMu.Lock()
	if !t.running {
		t.runMu.Unlock()
		return
	}
	t.running = false
	done := t.done
	t.runMu.Unlock()

	go t.bot.Stop()

	select {
	case <-done:
	case <-ctx.Done():
		log.Warn("telegram poller did not stop before the shutdown deadline")
	}
}
