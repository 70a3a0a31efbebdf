package gatekeeper

import (
	"context"
	"log/slog"

	"github.com/alecgard/vestibule/internal/groupdoc"
)

// HandleSetGreeting starts the greeting-update flow for the /sethello
// command. It refuses private chats and any group other than the managed one,
// and requires the caller to be a group administrator.
func (g *Gatekeeper) HandleSetGreeting(ctx context.Context, chatID int64, isPrivate bool, userID int64) {
	if isPrivate || chatID != g.groupID {
		g.send(ctx, chatID, "You can only use this command in the group I manage.")
		return
	}

	status, err := g.chat.MemberStatus(ctx, g.groupID, userID)
	if err != nil {
		// A failed capability check never grants the capability.
		slog.Warn("administrator check failed", "user_id", userID, "error", err)
		g.send(ctx, chatID, "You cannot do that: you are not an administrator.")
		return
	}
	if status != statusAdministrator && status != statusCreator {
		g.send(ctx, chatID, "You cannot do that: you are not an administrator.")
		return
	}

	g.mu.Lock()
	g.awaitingGreeting[userID] = true
	g.mu.Unlock()

	g.send(ctx, chatID, "Send me the new greeting message. Use /cancel to keep the current one.")
}

// HandleGreetingText consumes the next group message from an administrator
// who started the greeting-update flow. The new greeting is persisted before
// the success reply is sent. Returns false when the sender was not mid-flow.
func (g *Gatekeeper) HandleGreetingText(ctx context.Context, userID int64, text string, entities []groupdoc.MessageEntity) bool {
	g.mu.Lock()
	if !g.awaitingGreeting[userID] {
		g.mu.Unlock()
		return false
	}
	delete(g.awaitingGreeting, userID)
	g.mu.Unlock()

	doc, err := g.store.Read(ctx)
	if err != nil {
		slog.Error("failed to read group document", "error", err)
		g.send(ctx, g.groupID, "Could not save the greeting, try again.")
		return true
	}

	doc.GreetingText = text
	doc.GreetingEntities = entities

	if err := g.store.Write(ctx, doc); err != nil {
		slog.Error("failed to persist greeting", "error", err)
		g.send(ctx, g.groupID, "Could not save the greeting, try again.")
		return true
	}

	g.send(ctx, g.groupID, "Done! The new greeting is saved.")
	return true
}

// CancelGreeting aborts an in-progress greeting update. Returns whether one
// was in progress for the user.
func (g *Gatekeeper) CancelGreeting(ctx context.Context, userID int64) bool {
	g.mu.Lock()
	ok := g.awaitingGreeting[userID]
	delete(g.awaitingGreeting, userID)
	g.mu.Unlock()

	if ok {
		g.send(ctx, g.groupID, "Cancelled: the old greeting stays.")
	}
	return ok
}
