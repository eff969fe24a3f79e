package handler

import (
	"context"
	"fmt"

	"github.com/threadkeeper/threadkeeper/internal/event"
	"github.com/threadkeeper/threadkeeper/internal/message"
)

// Synchronized reacts to new commits. Only a previously approved pull
// request changes state: the approval is stale, so the status drops back to
// Ready, the thread is unlocked, and the current reviewers are pinged and
// re-requested. In every other state new commits are routine and ignored.
func (h *Handler) Synchronized(ctx context.Context, ev event.Synchronized) error {
	pr := ev.PR
	rec, err := h.loadThreadLinkage(ctx, pr)
	if err != nil || rec == nil {
		return err
	}

	text, err := h.notify.GetMessage(ctx, rec.ChannelID, rec.MessageID)
	if err != nil {
		return fmt.Errorf("reading primary message: %w", err)
	}
	if !message.IsApproved(text) {
		return nil
	}

	bestEffort("unlocking thread after new commits", pr, func() error {
		return h.notify.SetLocked(ctx, rec.ThreadID, false)
	})

	patched := message.PatchStatus(text, message.StatusReady)
	if patched != text {
		if err := h.notify.EditMessage(ctx, rec.ChannelID, rec.MessageID, patched); err != nil {
			return fmt.Errorf("updating primary message: %w", err)
		}
	}

	note := synchronizeNote(message.Mentions(pr.Reviewers, h.userIDs))
	if err := h.notify.SendInThread(ctx, rec.ThreadID, note); err != nil {
		return fmt.Errorf("posting new-commits note: %w", err)
	}

	bestEffort("re-requesting reviewers", pr, func() error {
		return h.tickets.RequestReviewers(ctx, pr.Owner, pr.Repo, pr.Number, pr.Reviewers)
	})
	return nil
}
