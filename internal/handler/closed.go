package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/threadkeeper/threadkeeper/internal/event"
	"github.com/threadkeeper/threadkeeper/internal/message"
)

// Closed finalizes the Discord state when a pull request is closed or
// merged. A merge celebrates and archives; a plain close locks and records
// who closed it, quoting the closer's parting comment when there is a very
// recent one.
func (h *Handler) Closed(ctx context.Context, ev event.Closed) error {
	if ev.Merged {
		return h.merged(ctx, ev)
	}
	return h.closedWithoutMerge(ctx, ev)
}

func (h *Handler) closedWithoutMerge(ctx context.Context, ev event.Closed) error {
	pr := ev.PR
	rec, err := h.loadThreadLinkage(ctx, pr)
	if err != nil || rec == nil {
		return err
	}

	note := closeNote(message.Mention(ev.Actor, h.userIDs), h.recentClosingComment(ctx, pr, ev.Actor))
	if err := h.notify.SendInThread(ctx, rec.ThreadID, note); err != nil {
		return fmt.Errorf("posting close note: %w", err)
	}

	bestEffort("locking thread after close", pr, func() error {
		return h.notify.SetLocked(ctx, rec.ThreadID, true)
	})

	return h.patchMessage(ctx, rec, func(t string) string {
		return message.PatchStatus(t, message.StatusClosed(ev.Actor))
	})
}

func (h *Handler) merged(ctx context.Context, ev event.Closed) error {
	pr := ev.PR
	rec, err := h.loadLinkage(ctx, pr)
	if err != nil || rec == nil {
		return err
	}

	bestEffort("adding celebration reaction", pr, func() error {
		return h.notify.AddReaction(ctx, rec.ChannelID, rec.MessageID, reactionMerged)
	})

	if rec.ThreadID != "" {
		note := mergeNote(message.Mention(ev.Actor, h.userIDs), h.mergeCommitSubject(ctx, ev))
		if err := h.notify.SendInThread(ctx, rec.ThreadID, note); err != nil {
			return fmt.Errorf("posting merge note: %w", err)
		}
		// Lock before archiving: editing an archived thread un-archives it.
		bestEffort("locking merged thread", pr, func() error {
			return h.notify.SetLocked(ctx, rec.ThreadID, true)
		})
		bestEffort("archiving merged thread", pr, func() error {
			return h.notify.Archive(ctx, rec.ThreadID)
		})
	}

	return h.patchMessage(ctx, rec, func(t string) string {
		return message.PatchStatus(t, message.StatusMerged(ev.Actor))
	})
}

// mergeCommitSubject resolves the merge commit's subject line, as optional
// context for the merge note.
func (h *Handler) mergeCommitSubject(ctx context.Context, ev event.Closed) string {
	if ev.MergeCommitSHA == "" {
		return ""
	}
	pr := ev.PR
	msg, err := h.tickets.GetCommitMessage(ctx, pr.Owner, pr.Repo, ev.MergeCommitSHA)
	if err != nil {
		slog.Warn("fetching merge commit message", "repo", pr.Owner+"/"+pr.Repo, "pr", pr.Number, "sha", ev.MergeCommitSHA, "error", err)
		return ""
	}
	subject, _, _ := strings.Cut(msg, "\n")
	return strings.TrimSpace(subject)
}

// recentClosingComment returns the closer's parting comment as quote
// context. It only trusts the newest comment, authored by the closer,
// created within the last minute; anything older is never guessed at.
func (h *Handler) recentClosingComment(ctx context.Context, pr event.PullRequest, closer string) string {
	comments, err := h.tickets.ListComments(ctx, pr.Owner, pr.Repo, pr.Number)
	if err != nil {
		slog.Warn("listing comments for close context", "repo", pr.Owner+"/"+pr.Repo, "pr", pr.Number, "error", err)
		return ""
	}
	if len(comments) == 0 {
		return ""
	}

	newest := comments[0]
	for _, c := range comments[1:] {
		if c.CreatedAt.After(newest.CreatedAt) {
			newest = c
		}
	}
	if newest.User != closer {
		return ""
	}
	if h.now().Sub(newest.CreatedAt) > closingCommentWindow {
		return ""
	}
	return newest.Body
}
