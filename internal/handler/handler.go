// Package handler maps pull-request lifecycle events onto Discord state.
// There is no stored state machine: every handler re-derives the current
// state from the linkage record and the live text of the primary message,
// computes a full-region patch, and writes it back. Overlapping deliveries
// of the same event therefore converge instead of racing.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/threadkeeper/threadkeeper/internal/event"
	"github.com/threadkeeper/threadkeeper/internal/linkage"
	"github.com/threadkeeper/threadkeeper/internal/ticket"
)

// Reactions on the primary message. Approve and changes-requested are
// mutually exclusive; handlers always remove the opposite one first.
const (
	reactionApprove = "✅"
	reactionChanges = "❌"
	reactionMerged  = "🎉"
)

// closingCommentWindow bounds the "recent closing comment" heuristic: a
// comment is only quoted as close context when it is the newest one, written
// by the closer, no longer ago than this.
const closingCommentWindow = 60 * time.Second

// Notifier is the chat-platform surface the handlers drive.
type Notifier interface {
	Send(ctx context.Context, channelID, content string) (string, error)
	CreateThread(ctx context.Context, channelID, messageID, name string) (string, error)
	SendInThread(ctx context.Context, threadID, content string) error
	GetMessage(ctx context.Context, channelID, messageID string) (string, error)
	EditMessage(ctx context.Context, channelID, messageID, content string) error
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	RemoveReaction(ctx context.Context, channelID, messageID, emoji string) error
	SetLocked(ctx context.Context, threadID string, locked bool) error
	Archive(ctx context.Context, threadID string) error
	RemoveThreadMember(ctx context.Context, threadID, userID string) error
}

// Tickets is the code-hosting surface the handlers drive.
type Tickets interface {
	ListComments(ctx context.Context, owner, repo string, number int) ([]ticket.Comment, error)
	CreateComment(ctx context.Context, owner, repo string, number int, body string) (ticket.Comment, error)
	GetReviewBody(ctx context.Context, owner, repo string, number int, reviewID int64) (string, error)
	RequestReviewers(ctx context.Context, owner, repo string, number int, logins []string) error
	GetCommitMessage(ctx context.Context, owner, repo, sha string) (string, error)
}

// Links reads and writes the linkage record on the pull request.
type Links interface {
	Create(ctx context.Context, owner, repo string, number int, r linkage.Record) error
	Find(ctx context.Context, owner, repo string, number int) (*linkage.Record, error)
}

// Config holds the dependencies for a Handler.
type Config struct {
	Notifier  Notifier
	Tickets   Tickets
	Links     Links
	ChannelID string
	UserIDs   map[string]string
	Now       func() time.Time // optional; defaults to time.Now
}

// Handler processes one lifecycle event per call, run to completion, with no
// state shared between invocations.
type Handler struct {
	notify  Notifier
	tickets Tickets
	links   Links

	channelID string
	userIDs   map[string]string
	now       func() time.Time
}

// New creates a Handler.
func New(cfg Config) *Handler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{
		notify:    cfg.Notifier,
		tickets:   cfg.Tickets,
		links:     cfg.Links,
		channelID: cfg.ChannelID,
		userIDs:   cfg.UserIDs,
		now:       now,
	}
}

// Dispatch routes a parsed event to its handler.
func (h *Handler) Dispatch(ctx context.Context, ev event.Event) error {
	switch e := ev.(type) {
	case event.Opened:
		return h.Opened(ctx, e)
	case event.ReadyForReview:
		return h.ReadyForReview(ctx, e)
	case event.ReviewRequested:
		return h.ReviewRequested(ctx, e)
	case event.ReviewRequestRemoved:
		return h.ReviewRequestRemoved(ctx, e)
	case event.ReviewSubmitted:
		return h.ReviewSubmitted(ctx, e)
	case event.ReviewDismissed:
		return h.ReviewDismissed(ctx, e)
	case event.Synchronized:
		return h.Synchronized(ctx, e)
	case event.Closed:
		return h.Closed(ctx, e)
	default:
		return fmt.Errorf("no handler for event kind %q", ev.Kind())
	}
}

// bestEffort runs a non-essential side effect and downgrades failure to a
// warning so it cannot abort the remaining steps of the handler.
func bestEffort(what string, pr event.PullRequest, fn func() error) {
	if err := fn(); err != nil {
		slog.Warn(what, "repo", pr.Owner+"/"+pr.Repo, "pr", pr.Number, "error", err)
	}
}

const missingLinkageNotice = "The Discord bot could not find the tracking data " +
	"linking this pull request to its thread, so Discord was not updated. " +
	"The tracking comment may have been deleted."

// loadLinkage fetches the linkage record. When none exists it logs a
// warning, best-effort posts a human-visible comment on the pull request,
// and returns (nil, nil) so the handler exits without error — the missing
// record is permanent and a redelivery would not help.
func (h *Handler) loadLinkage(ctx context.Context, pr event.PullRequest) (*linkage.Record, error) {
	rec, err := h.links.Find(ctx, pr.Owner, pr.Repo, pr.Number)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		slog.Warn("no linkage record for pull request", "repo", pr.Owner+"/"+pr.Repo, "pr", pr.Number)
		bestEffort("posting missing-linkage notice", pr, func() error {
			_, err := h.tickets.CreateComment(ctx, pr.Owner, pr.Repo, pr.Number, missingLinkageNotice)
			return err
		})
		return nil, nil
	}
	return rec, nil
}

// loadThreadLinkage is loadLinkage plus the thread-exists precondition used
// by handlers that post thread notes.
func (h *Handler) loadThreadLinkage(ctx context.Context, pr event.PullRequest) (*linkage.Record, error) {
	rec, err := h.loadLinkage(ctx, pr)
	if err != nil || rec == nil {
		return rec, err
	}
	if rec.ThreadID == "" {
		slog.Warn("linkage record has no thread", "repo", pr.Owner+"/"+pr.Repo, "pr", pr.Number)
		return nil, nil
	}
	return rec, nil
}

// patchMessage fetches the primary message, applies fn, and writes the
// result back. The edit is skipped when the patch is a no-op.
func (h *Handler) patchMessage(ctx context.Context, rec *linkage.Record, fn func(string) string) error {
	text, err := h.notify.GetMessage(ctx, rec.ChannelID, rec.MessageID)
	if err != nil {
		return fmt.Errorf("reading primary message: %w", err)
	}
	patched := fn(text)
	if patched == text {
		return nil
	}
	if err := h.notify.EditMessage(ctx, rec.ChannelID, rec.MessageID, patched); err != nil {
		return fmt.Errorf("updating primary message: %w", err)
	}
	return nil
}
