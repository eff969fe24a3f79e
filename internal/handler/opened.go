package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/threadkeeper/threadkeeper/internal/event"
	"github.com/threadkeeper/threadkeeper/internal/linkage"
	"github.com/threadkeeper/threadkeeper/internal/message"
)

// Opened posts the primary message, starts the thread with an orientation
// note, and persists the linkage record. This is the only handler that
// writes the record, and the only one that needs a configured channel.
func (h *Handler) Opened(ctx context.Context, ev event.Opened) error {
	if h.channelID == "" {
		return fmt.Errorf("no channel configured for new pull request messages")
	}
	pr := ev.PR

	status := message.StatusReady
	if pr.Draft {
		status = message.StatusDraft
	}
	state := message.State{
		Number:      pr.Number,
		Title:       pr.Title,
		URL:         pr.URL,
		HeadRef:     pr.HeadRef,
		BaseRef:     pr.BaseRef,
		Author:      message.Mention(pr.Author, h.userIDs),
		Description: pr.Body,
		Reviewers:   message.Mentions(pr.Reviewers, h.userIDs),
		Status:      status,
	}

	msgID, err := h.notify.Send(ctx, h.channelID, state.Render())
	if err != nil {
		return fmt.Errorf("sending primary message: %w", err)
	}

	// The thread is useful but not essential: the linkage record tolerates
	// an empty thread id, and thread-dependent handlers skip softly.
	threadID, err := h.notify.CreateThread(ctx, h.channelID, msgID, message.ThreadName(pr.Number, pr.Title))
	if err != nil {
		slog.Warn("creating thread", "repo", pr.Owner+"/"+pr.Repo, "pr", pr.Number, "error", err)
		threadID = ""
	}
	if threadID != "" {
		bestEffort("posting orientation note", pr, func() error {
			return h.notify.SendInThread(ctx, threadID, orientationNote(pr))
		})
	}

	return h.links.Create(ctx, pr.Owner, pr.Repo, pr.Number, linkage.Record{
		MessageID: msgID,
		ThreadID:  threadID,
		ChannelID: h.channelID,
	})
}

// ReadyForReview rewrites the status line after a draft is promoted and
// leaves a note in the thread.
func (h *Handler) ReadyForReview(ctx context.Context, ev event.ReadyForReview) error {
	pr := ev.PR
	rec, err := h.loadLinkage(ctx, pr)
	if err != nil || rec == nil {
		return err
	}

	if err := h.patchMessage(ctx, rec, func(t string) string {
		return message.PatchStatus(t, message.StatusReady)
	}); err != nil {
		return err
	}

	if rec.ThreadID != "" {
		note := readyNote(message.Mention(pr.Author, h.userIDs))
		if err := h.notify.SendInThread(ctx, rec.ThreadID, note); err != nil {
			return fmt.Errorf("posting ready-for-review note: %w", err)
		}
	}
	return nil
}
