// Package gatekeeper decides when identification is required and when a join
// request may be approved. It is the only place an approval is ever issued.
package gatekeeper

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/alecgard/vestibule/internal/groupdoc"
	"github.com/alecgard/vestibule/internal/identify"
	"github.com/alecgard/vestibule/internal/metrics"
)

// Chat member statuses that mean the user is already inside the group.
const (
	statusCreator       = "creator"
	statusAdministrator = "administrator"
	statusMember        = "member"
)

// DocumentStore reads and overwrites the durable group document.
type DocumentStore interface {
	Read(ctx context.Context) (groupdoc.Document, error)
	Write(ctx context.Context, doc groupdoc.Document) error
}

// ChatAPI is the outbound platform surface the gatekeeper needs.
type ChatAPI interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendGreeting(ctx context.Context, chatID int64, text string, entities []groupdoc.MessageEntity) error
	AnnounceToGroup(ctx context.Context, groupID int64, text string) (messageID int, err error)
	ApproveJoinRequest(ctx context.Context, groupID, userID int64) error
	MemberStatus(ctx context.Context, groupID, userID int64) (string, error)
	UserHandle(ctx context.Context, userID int64) (string, error)
}

// Dialogue starts an identification dialogue for a user.
type Dialogue interface {
	Enter(ctx context.Context, userID int64) error
}

// Gatekeeper reconciles join requests, the identification dialogue and the
// durable pending set, and issues the approval call on completion.
type Gatekeeper struct {
	groupID  int64
	chat     ChatAPI
	store    DocumentStore
	dialogue Dialogue
	metrics  *metrics.Metrics

	mu               sync.Mutex
	awaitingGreeting map[int64]bool // admin user ids mid /sethello
}

// New creates a Gatekeeper for the managed group.
func New(groupID int64, chat ChatAPI, store DocumentStore, dialogue Dialogue, m *metrics.Metrics) *Gatekeeper {
	return &Gatekeeper{
		groupID:          groupID,
		chat:             chat,
		store:            store,
		dialogue:         dialogue,
		metrics:          m,
		awaitingGreeting: make(map[int64]bool),
	}
}

// HandleJoinRequest reacts to a join request. Requests for groups other than
// the managed one are logged and ignored. For the managed group the user is
// durably recorded as pending, then identification begins.
func (g *Gatekeeper) HandleJoinRequest(ctx context.Context, groupID, userID int64) {
	slog.Info("join request", "group_id", groupID, "user_id", userID)
	if groupID != g.groupID {
		return
	}
	g.metrics.JoinRequestsTotal.Inc()

	// Record the durable intent first: if the process dies mid-dialogue, the
	// user's next private message re-starts identification.
	doc, err := g.store.Read(ctx)
	if err != nil {
		slog.Error("failed to read group document", "error", err)
	} else if doc.AddPending(userID) {
		if err := g.store.Write(ctx, doc); err != nil {
			slog.Error("failed to persist pending user", "user_id", userID, "error", err)
		}
	}

	g.BeginIdentification(ctx, userID)
}

// HandlePrivateStart runs when a user sends /start in a private chat.
func (g *Gatekeeper) HandlePrivateStart(ctx context.Context, userID int64) {
	g.BeginIdentification(ctx, userID)
}

// HandlePrivateFallback runs when a private message was consumed by nothing
// else. If the user is in the durable pending set the entry is consumed and
// identification begins; otherwise the user is pointed at /start.
func (g *Gatekeeper) HandlePrivateFallback(ctx context.Context, userID int64) {
	doc, err := g.store.Read(ctx)
	if err != nil {
		slog.Error("failed to read group document", "error", err)
		g.send(ctx, userID, "Use /start to begin.")
		return
	}

	if doc.RemovePending(userID) {
		if err := g.store.Write(ctx, doc); err != nil {
			slog.Error("failed to persist pending-set removal", "user_id", userID, "error", err)
		}
		g.BeginIdentification(ctx, userID)
		return
	}

	g.send(ctx, userID, "Use /start to begin.")
}

// BeginIdentification checks the user's current membership and, unless they
// are already inside the group, sends the greeting and starts the dialogue.
// A failed membership lookup is treated as "not a member": identification is
// never skipped on an error.
func (g *Gatekeeper) BeginIdentification(ctx context.Context, userID int64) {
	status, err := g.chat.MemberStatus(ctx, g.groupID, userID)
	if err != nil {
		slog.Warn("membership lookup failed, requiring identification", "user_id", userID, "error", err)
	} else if isInsider(status) {
		slog.Info("user already in the group", "user_id", userID, "status", status)
		g.send(ctx, userID, "You are already a member of the group.")
		return
	}

	greetingText := groupdoc.DefaultGreeting
	var greetingEntities []groupdoc.MessageEntity

	doc, err := g.store.Read(ctx)
	if err != nil {
		slog.Error("failed to read group document, using default greeting", "error", err)
	} else {
		greetingText = doc.GreetingText
		greetingEntities = doc.GreetingEntities
		// The pending entry is consumed exactly once, at dialogue entry.
		if doc.RemovePending(userID) {
			if err := g.store.Write(ctx, doc); err != nil {
				slog.Error("failed to persist pending-set removal", "user_id", userID, "error", err)
			}
		}
	}

	if err := g.chat.SendGreeting(ctx, userID, greetingText, greetingEntities); err != nil {
		slog.Error("failed to send greeting", "user_id", userID, "error", err)
	}
	if err := g.dialogue.Enter(ctx, userID); err != nil {
		slog.Error("failed to start dialogue", "user_id", userID, "error", err)
	}
}

// HandleDialogueComplete announces the new member to the group, confirms to
// the requester, and approves the join request. Approval happens nowhere
// else.
func (g *Gatekeeper) HandleDialogueComplete(ctx context.Context, userID int64, fields map[string]string) {
	name := fmt.Sprintf("%s %s from %s",
		fields[identify.FieldFirstName],
		fields[identify.FieldSurname],
		fields[identify.FieldClass],
	)
	slog.Info("identification complete", "user_id", userID, "name", name)

	handle, err := g.chat.UserHandle(ctx, userID)
	if err != nil {
		slog.Warn("failed to look up user handle", "user_id", userID, "error", err)
		handle = ""
	}

	announcement := fmt.Sprintf("Please welcome our new member, %s!", name)
	if handle != "" {
		announcement += "\n@" + handle
	}

	messageID, announceErr := g.chat.AnnounceToGroup(ctx, g.groupID, announcement)
	if announceErr != nil {
		slog.Error("failed to announce new member", "user_id", userID, "error", announceErr)
	}

	confirmation := fmt.Sprintf("Welcome, %s!\nYou have been accepted into the group.", name)
	if announceErr == nil {
		confirmation = fmt.Sprintf("Welcome, %s!\nYou have been accepted into the group: %s",
			name, announcementLink(g.groupID, messageID))
	}
	g.send(ctx, userID, confirmation)

	if err := g.chat.ApproveJoinRequest(ctx, g.groupID, userID); err != nil {
		slog.Error("failed to approve join request, user is identified but unapproved",
			"group_id", g.groupID, "user_id", userID, "name", name, "error", err)
		return
	}
	g.metrics.ApprovalsTotal.Inc()
	slog.Info("join request approved", "group_id", g.groupID, "user_id", userID)
}

// isInsider reports whether the status already grants group membership.
func isInsider(status string) bool {
	return status == statusMember || status == statusAdministrator || status == statusCreator
}

// announcementLink builds a t.me deep link to a message in the managed
// supergroup.
func announcementLink(groupID int64, messageID int) string {
	internal := strconv.FormatInt(groupID, 10)
	internal = strings.TrimPrefix(internal, "-100")
	internal = strings.TrimPrefix(internal, "-")
	return fmt.Sprintf("https://t.me/c/%s/%d", internal, messageID)
}

// send delivers a message and logs failures; outbound errors never change
// gatekeeper state.
func (g *Gatekeeper) send(ctx context.Context, chatID int64, text string) {
	if err := g.chat.SendMessage(ctx, chatID, text); err != nil {
		slog.Error("failed to send message", "chat_id", chatID, "error", err)
	}
}
