// Package bot is the Telegram share surface: messages sent to the bot are
// captured into the library of the bot's signed-in account.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"laterai/internal/capture"
	"laterai/internal/config"
	"laterai/internal/domain"
	"laterai/internal/pipeline"
	"laterai/internal/session"
)

const (
	notifyTimeout = 10 * time.Second
	// Follow-ups for items whose classification never lands are dropped after this.
	pendingTTL = 10 * time.Minute
)

// Capturer runs a capture for the given session source.
type Capturer interface {
	CaptureWith(ctx context.Context, src session.Source, req domain.CaptureRequest) (domain.SavedItem, error)
}

// Sender delivers messages to a chat. *tgbot.Bot implements it.
type Sender interface {
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*models.Message, error)
}

type pending struct {
	chatID int64
	at     time.Time
}

// Handler holds dependencies for the Telegram bot handlers.
type Handler struct {
	bot       *tgbot.Bot
	sender    Sender
	session   session.Source
	capturer  Capturer
	allowedID int64
	loginURL  string
	log       logrus.FieldLogger
	now       func() time.Time

	mu       sync.Mutex
	chats    map[string]pending        // item id -> chat awaiting its classification
	early    map[string]pipeline.Event // classified before the capture returned
	inflight int
}

// NewHandler creates the Telegram bot and registers its handlers.
func NewHandler(cfg config.Config, src session.Source, capturer Capturer, logger logrus.FieldLogger) (*Handler, error) {
	h := newHandler(nil, cfg, src, capturer, logger)

	b, err := tgbot.New(cfg.TelegramBotToken, tgbot.WithDefaultHandler(h.defaultHandler))
	if err != nil {
		h.log.WithError(err).Error("Failed to create Telegram bot instance")
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	h.bot = b
	h.sender = b

	h.registerHandlers()
	h.log.Info("Telegram bot handler initialized")
	return h, nil
}

func newHandler(sender Sender, cfg config.Config, src session.Source, capturer Capturer, logger logrus.FieldLogger) *Handler {
	return &Handler{
		sender:    sender,
		session:   src,
		capturer:  capturer,
		allowedID: cfg.TelegramAllowedUserID,
		loginURL:  strings.TrimRight(cfg.DashboardURL, "/") + "/login",
		log:       logger.WithField("component", "bot_handler"),
		now:       time.Now,
		chats:     make(map[string]pending),
		early:     make(map[string]pipeline.Event),
	}
}

func (h *Handler) registerHandlers() {
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/start", tgbot.MatchTypeExact, h.startHandler)
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/status", tgbot.MatchTypeExact, h.statusHandler)
	h.log.Debug("Registered command handlers")
}

// Start polls Telegram for updates until ctx is cancelled.
func (h *Handler) Start(ctx context.Context) {
	h.log.Info("Starting Telegram bot polling")
	h.bot.Start(ctx)
	h.log.Info("Telegram bot polling stopped")
}

// allowed filters updates down to messages from the configured user.
func (h *Handler) allowed(update *models.Update) bool {
	if update.Message == nil || update.Message.From == nil {
		return false
	}
	return h.allowedID == 0 || update.Message.From.ID == h.allowedID
}

func (h *Handler) startHandler(ctx context.Context, _ *tgbot.Bot, update *models.Update) {
	if !h.allowed(update) {
		return
	}
	h.reply(ctx, update.Message.Chat.ID, "Welcome to Later AI! Send me a link or any text and I'll save it for later.")
}

func (h *Handler) statusHandler(ctx context.Context, _ *tgbot.Bot, update *models.Update) {
	if !h.allowed(update) {
		return
	}
	text := "Not signed in. Log in at " + h.loginURL
	if h.session.IsAuthenticated(ctx) {
		text = "Signed in. Anything you send me is saved to your library."
	}
	h.reply(ctx, update.Message.Chat.ID, text)
}

func (h *Handler) defaultHandler(ctx context.Context, _ *tgbot.Bot, update *models.Update) {
	if !h.allowed(update) {
		if update.Message != nil && update.Message.From != nil {
			h.log.WithField("user_id", update.Message.From.ID).Debug("Ignoring message from unknown user")
		}
		return
	}
	chatID := update.Message.Chat.ID
	log := h.log.WithFields(logrus.Fields{"user_id": update.Message.From.ID, "chat_id": chatID})

	req := capture.Normalize(capture.FromText(capture.SurfaceTelegram, update.Message.Text))

	h.mu.Lock()
	h.inflight++
	h.mu.Unlock()

	item, err := h.capturer.CaptureWith(ctx, h.session, req)

	early, classified := h.track(item.ID, chatID, err == nil)
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		h.reply(ctx, chatID, "Please log in first: "+h.loginURL)
		return
	case errors.Is(err, domain.ErrInvalidCapture):
		h.reply(ctx, chatID, "There is nothing to save in that message.")
		return
	case err != nil:
		log.WithError(err).Error("Capture failed")
		h.reply(ctx, chatID, "Failed to save that, please try again.")
		return
	}

	log.WithField("item_id", item.ID).Info("Saved item from Telegram")
	h.reply(ctx, chatID, "Saved: "+item.Title)
	if classified {
		h.reply(ctx, chatID, classifiedText(early.Item))
	}
}

// track records which chat is waiting for item id. It returns the
// classification event when it arrived before the capture returned.
func (h *Handler) track(id string, chatID int64, ok bool) (pipeline.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inflight--

	var ev pipeline.Event
	var found bool
	if ok {
		if ev, found = h.early[id]; found {
			delete(h.early, id)
		} else {
			h.prune()
			h.chats[id] = pending{chatID: chatID, at: h.now()}
		}
	}
	if h.inflight == 0 {
		clear(h.early)
	}
	return ev, found
}

func (h *Handler) prune() {
	cutoff := h.now().Add(-pendingTTL)
	for id, p := range h.chats {
		if p.at.Before(cutoff) {
			delete(h.chats, id)
		}
	}
}

// HandleEvent sends the classification follow-up to the chat that saved the item.
func (h *Handler) HandleEvent(ev pipeline.Event) {
	if ev.Type != pipeline.EventItemClassified {
		return
	}

	h.mu.Lock()
	p, ok := h.chats[ev.Item.ID]
	if ok {
		delete(h.chats, ev.Item.ID)
	} else if h.inflight > 0 {
		h.early[ev.Item.ID] = ev
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	h.reply(ctx, p.chatID, classifiedText(ev.Item))
}

func classifiedText(item domain.SavedItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%q is filed under %s", item.Title, item.Category)
	if len(item.Tags) > 0 {
		b.WriteString("\nTags:")
		for _, tag := range item.Tags {
			b.WriteString(" #" + strings.ReplaceAll(tag, " ", "_"))
		}
	}
	if item.AISummary != "" {
		b.WriteString("\n" + item.AISummary)
	}
	return b.String()
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	_, err := h.sender.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		h.log.WithError(err).WithField("chat_id", chatID).Error("Failed to send message")
	}
}
