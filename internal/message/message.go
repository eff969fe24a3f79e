// Package message renders and parses the primary Discord message that
// summarizes a pull request, and provides targeted patch functions that
// rewrite one region of the text while leaving everything else untouched.
//
// The status values and region markers below are a wire contract: handlers
// recover the current state of a pull request by string-matching them in
// the live message, so they must not change between releases.
package message

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	authorPrefix   = "**Author**: "
	reviewerPrefix = "**Reviewers**: "
	statusPrefix   = "**Status**: "

	warningMarker = ":warning: **No reviewers assigned**"
	warningLine1  = "> " + warningMarker
	warningLine2  = "> Add reviewers to get this pull request moving."

	// maxThreadName is Discord's limit on channel/thread names.
	maxThreadName = 100
)

// Canonical status values.
const (
	StatusDraft = ":pencil: Draft - In Progress"
	StatusReady = ":eyes: Ready for Review"
)

const (
	approvedStatusPrefix = ":white_check_mark: Approved by "
	changesStatusPrefix  = ":x: Changes Requested by "
)

// StatusApproved returns the status value for an approved pull request.
func StatusApproved(by string) string {
	return approvedStatusPrefix + by
}

// StatusChangesRequested returns the status value after a changes-requested review.
func StatusChangesRequested(by string) string {
	return changesStatusPrefix + by
}

// StatusClosed returns the status value for a closed, unmerged pull request.
func StatusClosed(by string) string {
	return ":no_entry_sign: Closed by " + by
}

// StatusMerged returns the status value for a merged pull request.
func StatusMerged(by string) string {
	return ":tada: Merged by " + by
}

// State is the logical content of the primary message. Author and Reviewers
// hold already-rendered mention tokens (see Mention); the codec itself never
// consults the login mapping.
type State struct {
	Number      int
	Title       string
	URL         string
	HeadRef     string
	BaseRef     string
	Author      string
	Description string
	Reviewers   []string
	Status      string
}

// Render builds the canonical message text: title/link line, branch line,
// author line, optional description, reviewer-or-warning region, status line.
func (s State) Render() string {
	lines := []string{
		fmt.Sprintf("**[#%d %s](%s)**", s.Number, s.Title, s.URL),
		fmt.Sprintf("`%s` → `%s`", s.HeadRef, s.BaseRef),
		authorPrefix + s.Author,
	}
	if desc := strings.TrimSpace(s.Description); desc != "" {
		lines = append(lines, "", desc)
	}
	lines = append(lines, "")
	lines = append(lines, reviewerRegion(s.Reviewers)...)
	lines = append(lines, statusPrefix+s.Status)
	return strings.Join(lines, "\n")
}

var titleLineRe = regexp.MustCompile(`^\*\*\[#(\d+) (.+)\]\((\S+)\)\*\*$`)
var branchLineRe = regexp.MustCompile("^`(.+)` → `(.+)`$")

// Parse reconstructs a State from message text. It tolerates either
// reviewer-region representation and extra blank lines; Render of the result
// is canonical, so Render(Parse(Render(s))) == Render(s).
func Parse(text string) (State, error) {
	var s State
	lines := strings.Split(text, "\n")
	if len(lines) < 3 {
		return s, fmt.Errorf("message too short: %d lines", len(lines))
	}

	m := titleLineRe.FindStringSubmatch(lines[0])
	if m == nil {
		return s, fmt.Errorf("malformed title line: %q", lines[0])
	}
	number, err := strconv.Atoi(m[1])
	if err != nil {
		return s, fmt.Errorf("malformed title line: %q", lines[0])
	}
	s.Number = number
	s.Title = m[2]
	s.URL = m[3]

	if b := branchLineRe.FindStringSubmatch(lines[1]); b != nil {
		s.HeadRef = b[1]
		s.BaseRef = b[2]
	} else {
		return s, fmt.Errorf("malformed branch line: %q", lines[1])
	}

	if !strings.HasPrefix(lines[2], authorPrefix) {
		return s, fmt.Errorf("malformed author line: %q", lines[2])
	}
	s.Author = strings.TrimPrefix(lines[2], authorPrefix)

	// Everything between the author line and the reviewer region (or status
	// line) is the free-text description.
	var desc []string
	i := 3
	for ; i < len(lines); i++ {
		l := lines[i]
		if isReviewerLine(l) || isWarningStart(l) || strings.HasPrefix(l, statusPrefix) {
			break
		}
		desc = append(desc, l)
	}
	s.Description = strings.TrimSpace(strings.Join(desc, "\n"))

	for ; i < len(lines); i++ {
		l := lines[i]
		switch {
		case isReviewerLine(l):
			rest := l[strings.Index(l, reviewerPrefix)+len(reviewerPrefix):]
			s.Reviewers = strings.Fields(rest)
		case isWarningStart(l):
			// No reviewers; the second warning line is skipped below.
		case strings.HasPrefix(l, statusPrefix):
			if s.Status == "" {
				s.Status = strings.TrimPrefix(l, statusPrefix)
			}
		}
	}
	if s.Status == "" {
		return s, fmt.Errorf("no status line found")
	}
	return s, nil
}

// PatchReviewers rewrites the reviewer region with the given mention tokens
// (the full current set, never a delta). The first existing reviewer line or
// warning block is replaced in place and any duplicates are dropped; when no
// region exists one is inserted after the author line, or appended if no
// author line is found either. The output always contains exactly one of the
// two canonical forms.
func PatchReviewers(text string, mentions []string) string {
	region := reviewerRegion(mentions)
	lines := strings.Split(text, "\n")

	out := make([]string, 0, len(lines)+len(region))
	replaced := false
	for i := 0; i < len(lines); {
		l := lines[i]
		if isReviewerLine(l) || isWarningStart(l) {
			if !replaced {
				out = append(out, region...)
				replaced = true
			}
			i += regionLen(lines, i)
			continue
		}
		out = append(out, l)
		i++
	}
	if replaced {
		return strings.Join(out, "\n")
	}

	for i, l := range out {
		if strings.HasPrefix(l, authorPrefix) {
			rest := append([]string{}, out[i+1:]...)
			out = append(append(out[:i+1], region...), rest...)
			return strings.Join(out, "\n")
		}
	}
	return strings.Join(append(out, region...), "\n")
}

// PatchStatus replaces every status line with the new value. Duplicated
// status lines (which should not occur) are all rewritten rather than
// special-cased. When no status line exists one is inserted right after the
// reviewer region, or appended at the end.
func PatchStatus(text, status string) string {
	line := statusPrefix + status
	lines := strings.Split(text, "\n")

	replaced := false
	for i, l := range lines {
		if strings.HasPrefix(l, statusPrefix) {
			lines[i] = line
			replaced = true
		}
	}
	if replaced {
		return strings.Join(lines, "\n")
	}

	for i := 0; i < len(lines); i++ {
		if isReviewerLine(lines[i]) || isWarningStart(lines[i]) {
			at := i + regionLen(lines, i)
			rest := append([]string{}, lines[at:]...)
			lines = append(append(lines[:at], line), rest...)
			return strings.Join(lines, "\n")
		}
	}
	return strings.Join(append(lines, line), "\n")
}

// Status extracts the value of the first status line.
func Status(text string) (string, bool) {
	for _, l := range strings.Split(text, "\n") {
		if strings.HasPrefix(l, statusPrefix) {
			return strings.TrimPrefix(l, statusPrefix), true
		}
	}
	return "", false
}

// IsApproved reports whether the status line records an approval. The
// synchronize handler uses this to decide whether new commits invalidate a
// previous review.
func IsApproved(text string) bool {
	s, ok := Status(text)
	return ok && strings.HasPrefix(s, approvedStatusPrefix)
}

// IsChangesRequested reports whether the status line records a
// changes-requested review; the dismissed handler uses this to recover the
// dismissed review's outcome, which the event payload does not carry.
func IsChangesRequested(text string) bool {
	s, ok := Status(text)
	return ok && strings.HasPrefix(s, changesStatusPrefix)
}

// Mention renders a GitHub login as a Discord mention when the mapping table
// has an entry for it (case-sensitive exact match), and as a plain @login
// otherwise.
func Mention(login string, userIDs map[string]string) string {
	if id, ok := userIDs[login]; ok {
		return "<@" + id + ">"
	}
	return "@" + login
}

// Mentions maps a list of logins through Mention.
func Mentions(logins []string, userIDs map[string]string) []string {
	out := make([]string, 0, len(logins))
	for _, l := range logins {
		out = append(out, Mention(l, userIDs))
	}
	return out
}

// ThreadName derives the Discord thread name for a pull request, truncated
// to the platform's 100-character limit. The main-message title is never
// truncated.
func ThreadName(number int, title string) string {
	name := fmt.Sprintf("PR #%d: %s", number, title)
	runes := []rune(name)
	if len(runes) > maxThreadName {
		return string(runes[:maxThreadName])
	}
	return name
}

// reviewerRegion returns the canonical reviewer lines: a single mention list
// when the set is non-empty, the fixed two-line warning block otherwise.
func reviewerRegion(mentions []string) []string {
	if len(mentions) == 0 {
		return []string{warningLine1, warningLine2}
	}
	return []string{reviewerPrefix + strings.Join(mentions, " ")}
}

func isReviewerLine(l string) bool {
	return strings.Contains(l, reviewerPrefix)
}

func isWarningStart(l string) bool {
	return strings.Contains(l, warningMarker)
}

// regionLen returns how many lines the reviewer region starting at index i
// spans: the warning block is two lines when its second line is present.
func regionLen(lines []string, i int) int {
	if isWarningStart(lines[i]) && i+1 < len(lines) && strings.HasPrefix(lines[i+1], "> ") {
		return 2
	}
	return 1
}
