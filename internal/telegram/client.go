// Package telegram adapts the Telegram Bot API to the interfaces the
// dialogue engine and the gatekeeper consume, and runs the update poll loop.
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/alecgard/vestibule/internal/groupdoc"
	"github.com/alecgard/vestibule/internal/metrics"
)

// Client wraps the Bot API with the outbound operations the core needs.
// The underlying library does not take contexts; the ctx parameters exist to
// keep the consumer interfaces honest about suspension points.
type Client struct {
	api     *tgbotapi.BotAPI
	metrics *metrics.Metrics
}

// NewClient authenticates against the Bot API with the given token.
func NewClient(token string, m *metrics.Metrics) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", err)
	}
	return &Client{api: api, metrics: m}, nil
}

// Self returns the bot's own username.
func (c *Client) Self() string {
	return c.api.Self.UserName
}

// SendMessage sends plain text to a chat.
func (c *Client) SendMessage(_ context.Context, chatID int64, text string) error {
	_, err := c.api.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		c.metrics.IncTransportError("send_message")
		return fmt.Errorf("sending message to chat %d: %w", chatID, err)
	}
	return nil
}

// SendGreeting sends the stored greeting with its rich-text annotations.
func (c *Client) SendGreeting(_ context.Context, chatID int64, text string, entities []groupdoc.MessageEntity) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.Entities = toAPIEntities(entities)
	if _, err := c.api.Send(msg); err != nil {
		c.metrics.IncTransportError("send_greeting")
		return fmt.Errorf("sending greeting to chat %d: %w", chatID, err)
	}
	return nil
}

// AnnounceToGroup posts text to the group and returns the posted message id.
func (c *Client) AnnounceToGroup(_ context.Context, groupID int64, text string) (int, error) {
	sent, err := c.api.Send(tgbotapi.NewMessage(groupID, text))
	if err != nil {
		c.metrics.IncTransportError("announce")
		return 0, fmt.Errorf("announcing to group %d: %w", groupID, err)
	}
	return sent.MessageID, nil
}

// ApproveJoinRequest approves a pending join request.
func (c *Client) ApproveJoinRequest(_ context.Context, groupID, userID int64) error {
	_, err := c.api.Request(tgbotapi.ApproveChatJoinRequestConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: groupID},
		UserID:     userID,
	})
	if err != nil {
		c.metrics.IncTransportError("approve_join_request")
		return fmt.Errorf("approving join request for user %d: %w", userID, err)
	}
	return nil
}

// MemberStatus looks up a user's membership status in a group.
func (c *Client) MemberStatus(_ context.Context, groupID, userID int64) (string, error) {
	member, err := c.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: groupID, UserID: userID},
	})
	if err != nil {
		c.metrics.IncTransportError("get_chat_member")
		return "", fmt.Errorf("looking up member %d in group %d: %w", userID, groupID, err)
	}
	return member.Status, nil
}

// UserHandle returns a user's public @username, or "" when they have none.
func (c *Client) UserHandle(_ context.Context, userID int64) (string, error) {
	chat, err := c.api.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: userID},
	})
	if err != nil {
		c.metrics.IncTransportError("get_chat")
		return "", fmt.Errorf("looking up user %d: %w", userID, err)
	}
	return chat.UserName, nil
}

// LeaveChat makes the bot leave a chat it should not be in.
func (c *Client) LeaveChat(_ context.Context, chatID int64) error {
	if _, err := c.api.Request(tgbotapi.LeaveChatConfig{ChatID: chatID}); err != nil {
		c.metrics.IncTransportError("leave_chat")
		return fmt.Errorf("leaving chat %d: %w", chatID, err)
	}
	return nil
}

// RegisterCommands publishes the command menus: /sethello for administrators
// of the managed group, /start for all private chats.
func (c *Client) RegisterCommands(groupID int64) error {
	adminCmds := tgbotapi.NewSetMyCommandsWithScope(
		tgbotapi.NewBotCommandScopeChatAdministrators(groupID),
		tgbotapi.BotCommand{Command: "sethello", Description: "Set the greeting message"},
	)
	if _, err := c.api.Request(adminCmds); err != nil {
		return fmt.Errorf("registering admin commands: %w", err)
	}

	privateCmds := tgbotapi.NewSetMyCommandsWithScope(
		tgbotapi.NewBotCommandScopeAllPrivateChats(),
		tgbotapi.BotCommand{Command: "start", Description: "Start the registration"},
	)
	if _, err := c.api.Request(privateCmds); err != nil {
		return fmt.Errorf("registering private commands: %w", err)
	}
	return nil
}
