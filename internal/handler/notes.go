package handler

import (
	"fmt"
	"strings"

	"github.com/threadkeeper/threadkeeper/internal/event"
)

// Thread note builders. These are chronological commentary, not state: the
// reconciled state lives only in the primary message.

func orientationNote(pr event.PullRequest) string {
	return fmt.Sprintf(
		"This thread tracks [#%d %s](%s). Review activity will be posted here as it happens.",
		pr.Number, pr.Title, pr.URL,
	)
}

func readyNote(author string) string {
	return fmt.Sprintf("%s marked this pull request as ready for review.", author)
}

func reviewerAddedNote(reviewer string) string {
	return fmt.Sprintf("%s you have been asked to review this pull request.", reviewer)
}

func reviewerRemovedNote(reviewer string) string {
	return fmt.Sprintf("%s is no longer a reviewer on this pull request.", reviewer)
}

func approvalNote(reviewer, body string) string {
	return fmt.Sprintf(":white_check_mark: %s approved this pull request.%s", reviewer, quote(body))
}

func changesRequestedNote(reviewer, body string) string {
	return fmt.Sprintf(":x: %s requested changes.%s", reviewer, quote(body))
}

func dismissedNote() string {
	return "The requested changes have been addressed. This pull request is ready for another review."
}

func synchronizeNote(reviewers []string) string {
	if len(reviewers) == 0 {
		return "New commits were pushed. Add reviewers to get this pull request moving."
	}
	return fmt.Sprintf("New commits were pushed. %s please take another look.", strings.Join(reviewers, " "))
}

func closeNote(actor, context string) string {
	return fmt.Sprintf("This pull request was closed by %s without merging.%s", actor, quote(context))
}

func mergeNote(actor, commitSubject string) string {
	note := fmt.Sprintf(":tada: This pull request was merged by %s.%s", actor, quote(commitSubject))
	return note + "\nThis thread is now archived."
}

// quote renders free text as a blockquote appended after the note line, or
// nothing when the text is blank.
func quote(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		b.WriteString("\n> ")
		b.WriteString(line)
	}
	return b.String()
}
