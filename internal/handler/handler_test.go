package handler

import (
	"context"
	"time"

	"github.com/threadkeeper/threadkeeper/internal/event"
	"github.com/threadkeeper/threadkeeper/internal/linkage"
	"github.com/threadkeeper/threadkeeper/internal/message"
	"github.com/threadkeeper/threadkeeper/internal/ticket"
)

// --- Fakes ---

type fakeNotifier struct {
	// message is the live text of the primary message; EditMessage mutates
	// it so multi-event sequences observe each other's writes.
	message string

	channelSends []string
	threadPosts  []string
	threadNames  []string
	edits        []string
	reactions    map[string]bool
	lockCalls    []bool
	archived     bool
	kicked       []string

	sendErr   error
	threadErr error
	getErr    error
	editErr   error
	postErr   error
	lockErr   error
}

func newFakeNotifier(text string) *fakeNotifier {
	return &fakeNotifier{message: text, reactions: map[string]bool{}}
}

func (f *fakeNotifier) Send(_ context.Context, _, content string) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.channelSends = append(f.channelSends, content)
	f.message = content
	return "msg-1", nil
}

func (f *fakeNotifier) CreateThread(_ context.Context, _, _, name string) (string, error) {
	if f.threadErr != nil {
		return "", f.threadErr
	}
	f.threadNames = append(f.threadNames, name)
	return "thread-1", nil
}

func (f *fakeNotifier) SendInThread(_ context.Context, _, content string) error {
	if f.postErr != nil {
		return f.postErr
	}
	f.threadPosts = append(f.threadPosts, content)
	return nil
}

func (f *fakeNotifier) GetMessage(_ context.Context, _, _ string) (string, error) {
	return f.message, f.getErr
}

func (f *fakeNotifier) EditMessage(_ context.Context, _, _, content string) error {
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, content)
	f.message = content
	return nil
}

func (f *fakeNotifier) AddReaction(_ context.Context, _, _, emoji string) error {
	f.reactions[emoji] = true
	return nil
}

func (f *fakeNotifier) RemoveReaction(_ context.Context, _, _, emoji string) error {
	delete(f.reactions, emoji)
	return nil
}

func (f *fakeNotifier) SetLocked(_ context.Context, _ string, locked bool) error {
	if f.lockErr != nil {
		return f.lockErr
	}
	f.lockCalls = append(f.lockCalls, locked)
	return nil
}

func (f *fakeNotifier) Archive(_ context.Context, _ string) error {
	f.archived = true
	return nil
}

func (f *fakeNotifier) RemoveThreadMember(_ context.Context, _, userID string) error {
	f.kicked = append(f.kicked, userID)
	return nil
}

type fakeTickets struct {
	comments      []ticket.Comment
	listErr       error
	created       []string
	reviewBody    string
	reviewBodyErr error
	rerequested   [][]string
	commitMsg     string
	commitErr     error
}

func (f *fakeTickets) ListComments(_ context.Context, _, _ string, _ int) ([]ticket.Comment, error) {
	return f.comments, f.listErr
}

func (f *fakeTickets) CreateComment(_ context.Context, _, _ string, _ int, body string) (ticket.Comment, error) {
	f.created = append(f.created, body)
	return ticket.Comment{ID: 1, Body: body}, nil
}

func (f *fakeTickets) GetReviewBody(_ context.Context, _, _ string, _ int, _ int64) (string, error) {
	return f.reviewBody, f.reviewBodyErr
}

func (f *fakeTickets) RequestReviewers(_ context.Context, _, _ string, _ int, logins []string) error {
	f.rerequested = append(f.rerequested, logins)
	return nil
}

func (f *fakeTickets) GetCommitMessage(_ context.Context, _, _, _ string) (string, error) {
	return f.commitMsg, f.commitErr
}

type fakeLinks struct {
	rec       *linkage.Record
	findErr   error
	created   []linkage.Record
	createErr error
}

func (f *fakeLinks) Create(_ context.Context, _, _ string, _ int, r linkage.Record) error {
	f.created = append(f.created, r)
	return f.createErr
}

func (f *fakeLinks) Find(_ context.Context, _, _ string, _ int) (*linkage.Record, error) {
	return f.rec, f.findErr
}

// --- Fixtures ---

var testUserIDs = map[string]string{
	"octocat": "1000",
	"rev1":    "1001",
	"rev2":    "1002",
}

func testPR() event.PullRequest {
	return event.PullRequest{
		Owner:     "octocat",
		Repo:      "hello",
		Number:    42,
		Title:     "Add user avatars",
		Body:      "Upload profile pictures.",
		URL:       "https://github.com/octocat/hello/pull/42",
		HeadRef:   "feature/avatars",
		BaseRef:   "main",
		Author:    "octocat",
		Reviewers: []string{"rev1", "rev2"},
	}
}

func renderedPR(status string, reviewers []string) string {
	pr := testPR()
	return message.State{
		Number:      pr.Number,
		Title:       pr.Title,
		URL:         pr.URL,
		HeadRef:     pr.HeadRef,
		BaseRef:     pr.BaseRef,
		Author:      message.Mention(pr.Author, testUserIDs),
		Description: pr.Body,
		Reviewers:   message.Mentions(reviewers, testUserIDs),
		Status:      status,
	}.Render()
}

func linkedRecord() *linkage.Record {
	return &linkage.Record{MessageID: "msg-1", ThreadID: "thread-1", ChannelID: "chan-1"}
}

func newTestHandler(n *fakeNotifier, t *fakeTickets, l *fakeLinks) *Handler {
	return New(Config{
		Notifier:  n,
		Tickets:   t,
		Links:     l,
		ChannelID: "chan-1",
		UserIDs:   testUserIDs,
		Now:       func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
}
