// Package linkage persists the pointer between a pull request and its
// Discord representation. The record lives inside an HTML comment on the
// pull request itself; there is no other storage.
package linkage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/threadkeeper/threadkeeper/internal/ticket"
)

// Markers delimiting the machine-readable block inside the comment body.
// They are a wire contract shared with every past and future version that
// needs to recover the record.
const (
	startMarker = "<!-- threadkeeper:metadata"
	endMarker   = "-->"
)

// Record ties a pull request to its Discord message and thread. It is
// written exactly once, when the pull request is opened, and is immutable
// afterwards.
type Record struct {
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id,omitempty"`
	ChannelID string `json:"channel_id"`
}

// Encode serializes a record into a comment body. The visible sentence keeps
// humans from deleting the comment; the block between the markers is what
// Decode reads back.
func Encode(r Record) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encoding linkage record: %w", err)
	}
	return fmt.Sprintf(
		"This pull request is tracked in a Discord thread. Please keep this comment.\n\n%s\n%s\n%s",
		startMarker, data, endMarker,
	), nil
}

// Decode extracts a record from a comment body. It returns false for bodies
// without a marker block and for blocks whose JSON does not parse or lacks
// the required ids.
func Decode(body string) (Record, bool) {
	_, rest, found := strings.Cut(body, startMarker)
	if !found {
		return Record{}, false
	}
	blob, _, found := strings.Cut(rest, endMarker)
	if !found {
		return Record{}, false
	}

	var r Record
	if err := json.Unmarshal([]byte(strings.TrimSpace(blob)), &r); err != nil {
		return Record{}, false
	}
	if r.MessageID == "" || r.ChannelID == "" {
		return Record{}, false
	}
	return r, true
}

// TicketComments is the subset of the ticket client the store needs.
type TicketComments interface {
	ListComments(ctx context.Context, owner, repo string, number int) ([]ticket.Comment, error)
	CreateComment(ctx context.Context, owner, repo string, number int, body string) (ticket.Comment, error)
}

// Store reads and writes linkage records through pull-request comments.
type Store struct {
	comments TicketComments
}

// NewStore creates a Store backed by the given comment API.
func NewStore(comments TicketComments) *Store {
	return &Store{comments: comments}
}

// Create posts the linkage comment on the pull request. Must be called
// exactly once, right after the primary message (and thread, if any) exist.
func (s *Store) Create(ctx context.Context, owner, repo string, number int, r Record) error {
	body, err := Encode(r)
	if err != nil {
		return err
	}
	if _, err := s.comments.CreateComment(ctx, owner, repo, number, body); err != nil {
		return fmt.Errorf("persisting linkage record: %w", err)
	}
	return nil
}

// Find scans the pull request's comments and returns the first parseable
// record, or nil when none exists. Malformed blocks are skipped, not fatal;
// a failure to list the comments themselves propagates.
func (s *Store) Find(ctx context.Context, owner, repo string, number int) (*Record, error) {
	comments, err := s.comments.ListComments(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("scanning for linkage record: %w", err)
	}
	for _, c := range comments {
		if r, ok := Decode(c.Body); ok {
			return &r, nil
		}
	}
	return nil, nil
}
