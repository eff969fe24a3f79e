package handler

import (
	"context"
	"fmt"

	"github.com/threadkeeper/threadkeeper/internal/event"
	"github.com/threadkeeper/threadkeeper/internal/message"
)

// ReviewRequested notifies the new reviewer in the thread and rewrites the
// reviewer section from the full current set delivered with the event, never
// from a delta, so concurrent reviewer changes converge.
func (h *Handler) ReviewRequested(ctx context.Context, ev event.ReviewRequested) error {
	pr := ev.PR
	rec, err := h.loadThreadLinkage(ctx, pr)
	if err != nil || rec == nil {
		return err
	}

	note := reviewerAddedNote(message.Mention(ev.Reviewer, h.userIDs))
	if err := h.notify.SendInThread(ctx, rec.ThreadID, note); err != nil {
		return fmt.Errorf("posting reviewer-added note: %w", err)
	}

	return h.patchMessage(ctx, rec, func(t string) string {
		return message.PatchReviewers(t, message.Mentions(pr.Reviewers, h.userIDs))
	})
}

// ReviewRequestRemoved notes the removal, best-effort kicks the reviewer out
// of the thread, and rewrites the reviewer section with the post-removal set.
func (h *Handler) ReviewRequestRemoved(ctx context.Context, ev event.ReviewRequestRemoved) error {
	pr := ev.PR
	rec, err := h.loadThreadLinkage(ctx, pr)
	if err != nil || rec == nil {
		return err
	}

	note := reviewerRemovedNote(message.Mention(ev.Reviewer, h.userIDs))
	if err := h.notify.SendInThread(ctx, rec.ThreadID, note); err != nil {
		return fmt.Errorf("posting reviewer-removed note: %w", err)
	}

	// Unmapped logins have no Discord identity to remove.
	if userID, ok := h.userIDs[ev.Reviewer]; ok {
		bestEffort("removing reviewer from thread", pr, func() error {
			return h.notify.RemoveThreadMember(ctx, rec.ThreadID, userID)
		})
	}

	return h.patchMessage(ctx, rec, func(t string) string {
		return message.PatchReviewers(t, message.Mentions(pr.Reviewers, h.userIDs))
	})
}
