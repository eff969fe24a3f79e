package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/threadkeeper/threadkeeper/internal/event"
	"github.com/threadkeeper/threadkeeper/internal/linkage"
	"github.com/threadkeeper/threadkeeper/internal/message"
)

// ReviewSubmitted handles approvals and change requests. Comment-only
// reviews are deliberately ignored: they carry no state transition.
func (h *Handler) ReviewSubmitted(ctx context.Context, ev event.ReviewSubmitted) error {
	switch ev.State {
	case event.ReviewApproved:
		return h.reviewApproved(ctx, ev)
	case event.ReviewChangesRequested:
		return h.reviewChangesRequested(ctx, ev)
	default:
		return nil
	}
}

func (h *Handler) reviewApproved(ctx context.Context, ev event.ReviewSubmitted) error {
	pr := ev.PR
	rec, err := h.loadLinkage(ctx, pr)
	if err != nil || rec == nil {
		return err
	}

	h.swapReaction(ctx, pr, rec, reactionChanges, reactionApprove)

	note := approvalNote(message.Mention(ev.Reviewer, h.userIDs), h.reviewBody(ctx, ev))
	if rec.ThreadID != "" {
		if err := h.notify.SendInThread(ctx, rec.ThreadID, note); err != nil {
			return fmt.Errorf("posting approval note: %w", err)
		}
	}

	if err := h.patchMessage(ctx, rec, func(t string) string {
		return message.PatchStatus(t, message.StatusApproved(ev.Reviewer))
	}); err != nil {
		return err
	}

	if rec.ThreadID != "" {
		bestEffort("locking thread after approval", pr, func() error {
			return h.notify.SetLocked(ctx, rec.ThreadID, true)
		})
	}
	return nil
}

func (h *Handler) reviewChangesRequested(ctx context.Context, ev event.ReviewSubmitted) error {
	pr := ev.PR
	rec, err := h.loadLinkage(ctx, pr)
	if err != nil || rec == nil {
		return err
	}

	h.swapReaction(ctx, pr, rec, reactionApprove, reactionChanges)

	note := changesRequestedNote(message.Mention(ev.Reviewer, h.userIDs), h.reviewBody(ctx, ev))
	if rec.ThreadID != "" {
		if err := h.notify.SendInThread(ctx, rec.ThreadID, note); err != nil {
			return fmt.Errorf("posting changes-requested note: %w", err)
		}
	}

	return h.patchMessage(ctx, rec, func(t string) string {
		return message.PatchStatus(t, message.StatusChangesRequested(ev.Reviewer))
	})
}

// ReviewDismissed resets a changes-requested pull request back to Ready. The
// payload does not say which outcome was dismissed, so the prior state is
// recovered from the status line; dismissed approvals are left alone (the
// synchronize handler owns that transition).
func (h *Handler) ReviewDismissed(ctx context.Context, ev event.ReviewDismissed) error {
	pr := ev.PR
	rec, err := h.loadThreadLinkage(ctx, pr)
	if err != nil || rec == nil {
		return err
	}

	text, err := h.notify.GetMessage(ctx, rec.ChannelID, rec.MessageID)
	if err != nil {
		return fmt.Errorf("reading primary message: %w", err)
	}
	if !message.IsChangesRequested(text) {
		return nil
	}

	if err := h.notify.SendInThread(ctx, rec.ThreadID, dismissedNote()); err != nil {
		return fmt.Errorf("posting dismissal note: %w", err)
	}

	patched := message.PatchStatus(text, message.StatusReady)
	if patched == text {
		return nil
	}
	if err := h.notify.EditMessage(ctx, rec.ChannelID, rec.MessageID, patched); err != nil {
		return fmt.Errorf("updating primary message: %w", err)
	}
	return nil
}

// swapReaction enforces reaction mutual exclusivity: the opposite outcome's
// emoji is removed before the new one is added, with both steps best-effort
// (an absent reaction is already tolerated by the client).
func (h *Handler) swapReaction(ctx context.Context, pr event.PullRequest, rec *linkage.Record, remove, add string) {
	bestEffort("removing "+remove+" reaction", pr, func() error {
		return h.notify.RemoveReaction(ctx, rec.ChannelID, rec.MessageID, remove)
	})
	bestEffort("adding "+add+" reaction", pr, func() error {
		return h.notify.AddReaction(ctx, rec.ChannelID, rec.MessageID, add)
	})
}

// reviewBody returns the review text, fetching it from the API when the
// payload omits it. The fetch is optional context: on failure the note is
// simply posted without a quote.
func (h *Handler) reviewBody(ctx context.Context, ev event.ReviewSubmitted) string {
	if ev.Body != "" || ev.ReviewID == 0 {
		return ev.Body
	}
	pr := ev.PR
	body, err := h.tickets.GetReviewBody(ctx, pr.Owner, pr.Repo, pr.Number, ev.ReviewID)
	if err != nil {
		slog.Warn("fetching review body", "repo", pr.Owner+"/"+pr.Repo, "pr", pr.Number, "review", ev.ReviewID, "error", err)
		return ""
	}
	return body
}
