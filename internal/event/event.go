// Package event turns raw GitHub webhook payloads into one explicit type per
// lifecycle event, with required fields validated up front so handlers never
// have to re-check them.
package event

import (
	"encoding/json"
	"errors"
	"fmt"

	gh "github.com/google/go-github/v68/github"
)

// ErrUnsupported marks payloads the system deliberately ignores (unknown
// event names and actions outside the lifecycle table).
var ErrUnsupported = errors.New("unsupported event")

// Review states as delivered by GitHub.
const (
	ReviewApproved         = "approved"
	ReviewChangesRequested = "changes_requested"
	ReviewCommented        = "commented"
)

// PullRequest is the event-independent identity of the pull request,
// constructed fresh per invocation and never mutated.
type PullRequest struct {
	Owner     string
	Repo      string
	Number    int
	Title     string
	Body      string
	URL       string
	HeadRef   string
	BaseRef   string
	Author    string
	Draft     bool
	Reviewers []string // the full current requested-reviewer set
}

// Event is implemented by every parsed lifecycle event.
type Event interface {
	Kind() string
	Pull() PullRequest
}

// Opened: a pull request was created (possibly as a draft).
type Opened struct {
	PR PullRequest
}

// ReadyForReview: a draft pull request was marked ready.
type ReadyForReview struct {
	PR PullRequest
}

// ReviewRequested: a reviewer was added.
type ReviewRequested struct {
	PR       PullRequest
	Reviewer string
}

// ReviewRequestRemoved: a reviewer was removed. PR.Reviewers already
// reflects the post-removal set.
type ReviewRequestRemoved struct {
	PR       PullRequest
	Reviewer string
}

// ReviewSubmitted: a review was submitted. Body may be empty even for
// approvals; ReviewID lets handlers fetch it when needed.
type ReviewSubmitted struct {
	PR       PullRequest
	Reviewer string
	State    string
	Body     string
	ReviewID int64
}

// ReviewDismissed: an earlier review was dismissed. The review's original
// outcome is not delivered in the payload; handlers derive it from the
// status line of the live message.
type ReviewDismissed struct {
	PR       PullRequest
	Reviewer string
}

// Synchronized: new commits were pushed to the head branch.
type Synchronized struct {
	PR      PullRequest
	HeadSHA string
}

// Closed: the pull request was closed, merged or not.
type Closed struct {
	PR             PullRequest
	Merged         bool
	Actor          string
	MergeCommitSHA string
}

func (e Opened) Kind() string               { return "opened" }
func (e ReadyForReview) Kind() string       { return "ready_for_review" }
func (e ReviewRequested) Kind() string      { return "review_requested" }
func (e ReviewRequestRemoved) Kind() string { return "review_request_removed" }
func (e ReviewSubmitted) Kind() string      { return "submitted" }
func (e ReviewDismissed) Kind() string      { return "dismissed" }
func (e Synchronized) Kind() string         { return "synchronize" }
func (e Closed) Kind() string               { return "closed" }

func (e Opened) Pull() PullRequest               { return e.PR }
func (e ReadyForReview) Pull() PullRequest       { return e.PR }
func (e ReviewRequested) Pull() PullRequest      { return e.PR }
func (e ReviewRequestRemoved) Pull() PullRequest { return e.PR }
func (e ReviewSubmitted) Pull() PullRequest      { return e.PR }
func (e ReviewDismissed) Pull() PullRequest      { return e.PR }
func (e Synchronized) Pull() PullRequest         { return e.PR }
func (e Closed) Pull() PullRequest               { return e.PR }

// Parse maps a webhook event name and JSON payload to a typed Event.
// Malformed payloads fail here, once; event kinds outside the lifecycle
// table return ErrUnsupported.
func Parse(name string, payload []byte) (Event, error) {
	switch name {
	case "pull_request":
		var ev gh.PullRequestEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("decoding pull_request payload: %w", err)
		}
		return parsePullRequest(&ev)
	case "pull_request_review":
		var ev gh.PullRequestReviewEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("decoding pull_request_review payload: %w", err)
		}
		return parseReview(&ev)
	default:
		return nil, fmt.Errorf("event %q: %w", name, ErrUnsupported)
	}
}

func parsePullRequest(ev *gh.PullRequestEvent) (Event, error) {
	pr, err := pullFromGH(ev.GetRepo(), ev.GetPullRequest())
	if err != nil {
		return nil, err
	}

	switch ev.GetAction() {
	case "opened":
		return Opened{PR: pr}, nil
	case "ready_for_review":
		return ReadyForReview{PR: pr}, nil
	case "review_requested":
		reviewer := ev.GetRequestedReviewer().GetLogin()
		if reviewer == "" {
			// Team review requests (CODEOWNERS) carry requested_team instead
			// of requested_reviewer; there is no user to mention or kick.
			return nil, fmt.Errorf("review_requested without a user reviewer: %w", ErrUnsupported)
		}
		return ReviewRequested{PR: pr, Reviewer: reviewer}, nil
	case "review_request_removed":
		reviewer := ev.GetRequestedReviewer().GetLogin()
		if reviewer == "" {
			return nil, fmt.Errorf("review_request_removed without a user reviewer: %w", ErrUnsupported)
		}
		return ReviewRequestRemoved{PR: pr, Reviewer: reviewer}, nil
	case "synchronize":
		return Synchronized{PR: pr, HeadSHA: ev.GetPullRequest().GetHead().GetSHA()}, nil
	case "closed":
		ghPR := ev.GetPullRequest()
		actor := ghPR.GetMergedBy().GetLogin()
		if actor == "" {
			actor = ev.GetSender().GetLogin()
		}
		if actor == "" {
			return nil, fmt.Errorf("closed event without an actor")
		}
		return Closed{
			PR:             pr,
			Merged:         ghPR.GetMerged(),
			Actor:          actor,
			MergeCommitSHA: ghPR.GetMergeCommitSHA(),
		}, nil
	default:
		return nil, fmt.Errorf("pull_request action %q: %w", ev.GetAction(), ErrUnsupported)
	}
}

func parseReview(ev *gh.PullRequestReviewEvent) (Event, error) {
	pr, err := pullFromGH(ev.GetRepo(), ev.GetPullRequest())
	if err != nil {
		return nil, err
	}

	review := ev.GetReview()
	reviewer := review.GetUser().GetLogin()
	if reviewer == "" {
		return nil, fmt.Errorf("review event without a reviewer")
	}

	switch ev.GetAction() {
	case "submitted":
		state := review.GetState()
		switch state {
		case ReviewApproved, ReviewChangesRequested, ReviewCommented:
		default:
			return nil, fmt.Errorf("review state %q: %w", state, ErrUnsupported)
		}
		return ReviewSubmitted{
			PR:       pr,
			Reviewer: reviewer,
			State:    state,
			Body:     review.GetBody(),
			ReviewID: review.GetID(),
		}, nil
	case "dismissed":
		return ReviewDismissed{PR: pr, Reviewer: reviewer}, nil
	default:
		return nil, fmt.Errorf("pull_request_review action %q: %w", ev.GetAction(), ErrUnsupported)
	}
}

func pullFromGH(repo *gh.Repository, pr *gh.PullRequest) (PullRequest, error) {
	p := PullRequest{
		Owner:   repo.GetOwner().GetLogin(),
		Repo:    repo.GetName(),
		Number:  pr.GetNumber(),
		Title:   pr.GetTitle(),
		Body:    pr.GetBody(),
		URL:     pr.GetHTMLURL(),
		HeadRef: pr.GetHead().GetRef(),
		BaseRef: pr.GetBase().GetRef(),
		Author:  pr.GetUser().GetLogin(),
		Draft:   pr.GetDraft(),
	}
	for _, u := range pr.RequestedReviewers {
		if login := u.GetLogin(); login != "" {
			p.Reviewers = append(p.Reviewers, login)
		}
	}

	switch {
	case p.Owner == "" || p.Repo == "":
		return p, fmt.Errorf("payload missing repository identity")
	case p.Number == 0:
		return p, fmt.Errorf("payload missing pull request number")
	case p.Author == "":
		return p, fmt.Errorf("payload missing pull request author")
	case p.URL == "":
		return p, fmt.Errorf("payload missing pull request url")
	}
	return p, nil
}
