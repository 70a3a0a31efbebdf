package telegram

import (
	"context"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/alecgard/vestibule/internal/groupdoc"
	"github.com/alecgard/vestibule/internal/metrics"
)

// DialogueEngine is the session-engine surface the poller routes messages to.
type DialogueEngine interface {
	Active(userID int64) bool
	Submit(ctx context.Context, userID int64, text string, isBot bool) bool
	SubmitNonText(ctx context.Context, userID int64) bool
	Cancel(ctx context.Context, userID int64) bool
}

// Gatekeeper is the membership surface the poller routes events to.
type Gatekeeper interface {
	HandleJoinRequest(ctx context.Context, groupID, userID int64)
	HandlePrivateStart(ctx context.Context, userID int64)
	HandlePrivateFallback(ctx context.Context, userID int64)
	HandleSetGreeting(ctx context.Context, chatID int64, isPrivate bool, userID int64)
	HandleGreetingText(ctx context.Context, userID int64, text string, entities []groupdoc.MessageEntity) bool
	CancelGreeting(ctx context.Context, userID int64) bool
}

// Outbound is the small sending surface the poller itself uses.
type Outbound interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	LeaveChat(ctx context.Context, chatID int64) error
}

// Poller receives updates over long polling and dispatches them. Updates are
// handled one at a time, in arrival order.
type Poller struct {
	client  *Client
	out     Outbound
	engine  DialogueEngine
	gk      Gatekeeper
	groupID int64
	timeout time.Duration
	metrics *metrics.Metrics
}

// NewPoller creates a Poller over an authenticated client.
func NewPoller(client *Client, engine DialogueEngine, gk Gatekeeper, groupID int64, timeout time.Duration, m *metrics.Metrics) *Poller {
	return &Poller{
		client:  client,
		out:     client,
		engine:  engine,
		gk:      gk,
		groupID: groupID,
		timeout: timeout,
		metrics: m,
	}
}

// Run blocks, polling for updates until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = int(p.timeout.Seconds())
	updates := p.client.api.GetUpdatesChan(cfg)

	slog.Info("polling for updates", "bot", p.client.Self())

	for {
		select {
		case <-ctx.Done():
			p.client.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			p.dispatch(ctx, update)
		}
	}
}

// dispatch routes one update. A panic in a handler is logged with the update
// id and must never take down the poll loop.
func (p *Poller) dispatch(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while handling update", "update_id", update.UpdateID, "panic", r)
		}
	}()

	switch {
	case update.ChatJoinRequest != nil:
		p.metrics.IncUpdate("chat_join_request")
		req := update.ChatJoinRequest
		p.gk.HandleJoinRequest(ctx, req.Chat.ID, req.From.ID)

	case update.MyChatMember != nil:
		p.metrics.IncUpdate("my_chat_member")
		p.handleMyChatMember(ctx, update.MyChatMember)

	case update.Message != nil:
		p.metrics.IncUpdate("message")
		p.handleMessage(ctx, update.Message)
	}
}

func (p *Poller) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	userID := msg.From.ID

	if msg.Chat.IsPrivate() {
		p.handlePrivateMessage(ctx, msg, userID)
		return
	}

	// Group side: only the greeting-update flow lives here.
	if msg.IsCommand() {
		switch msg.Command() {
		case "sethello":
			p.gk.HandleSetGreeting(ctx, msg.Chat.ID, false, userID)
		case "cancel":
			if msg.Chat.ID == p.groupID {
				p.gk.CancelGreeting(ctx, userID)
			}
		}
		return
	}
	if msg.Chat.ID == p.groupID && msg.Text != "" {
		p.gk.HandleGreetingText(ctx, userID, msg.Text, fromAPIEntities(msg.Entities))
	}
}

func (p *Poller) handlePrivateMessage(ctx context.Context, msg *tgbotapi.Message, userID int64) {
	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			if msg.From.IsBot {
				return
			}
			// /start mid-dialogue is swallowed rather than resetting progress.
			if p.engine.Active(userID) {
				return
			}
			p.gk.HandlePrivateStart(ctx, userID)
		case "cancel":
			if !p.engine.Cancel(ctx, userID) && !p.gk.CancelGreeting(ctx, userID) {
				p.reply(ctx, userID, "Nothing to cancel.")
			}
		case "sethello":
			p.gk.HandleSetGreeting(ctx, msg.Chat.ID, true, userID)
		}
		return
	}

	if msg.Text != "" {
		if !p.engine.Submit(ctx, userID, msg.Text, msg.From.IsBot) && !msg.From.IsBot {
			p.gk.HandlePrivateFallback(ctx, userID)
		}
		return
	}

	// Stickers, photos and the like during a dialogue get a reprompt; outside
	// a dialogue they take the same fallback as unrecognized text.
	if !p.engine.SubmitNonText(ctx, userID) && !msg.From.IsBot {
		p.gk.HandlePrivateFallback(ctx, userID)
	}
}

// handleMyChatMember reacts to the bot's own membership changes: it leaves
// chats it is not meant for and complains when it loses the administrator
// rights it needs to approve join requests.
func (p *Poller) handleMyChatMember(ctx context.Context, upd *tgbotapi.ChatMemberUpdated) {
	chat := upd.Chat
	if chat.IsPrivate() {
		return
	}
	if chat.IsChannel() || chat.ID != p.groupID {
		slog.Warn("added to unmanaged chat, leaving", "chat_id", chat.ID, "title", chat.Title)
		if err := p.out.LeaveChat(ctx, chat.ID); err != nil {
			slog.Error("failed to leave chat", "chat_id", chat.ID, "error", err)
		}
		return
	}

	isAdmin := upd.NewChatMember.Status == "administrator"
	slog.Info("own membership changed", "chat_id", chat.ID,
		"old_status", upd.OldChatMember.Status, "new_status", upd.NewChatMember.Status)

	if !isAdmin {
		p.reply(ctx, chat.ID, "I lost my administrator rights and cannot handle join requests like this. Please grant them back through the member list.")
		return
	}
	if upd.OldChatMember.Status != "administrator" {
		p.reply(ctx, chat.ID, "Ready to work.")
	}
}

func (p *Poller) reply(ctx context.Context, chatID int64, text string) {
	if err := p.out.SendMessage(ctx, chatID, text); err != nil {
		slog.Error("failed to send reply", "chat_id", chatID, "error", err)
	}
}
