package message

import (
	"strings"
	"testing"
)

func testState() State {
	return State{
		Number:      42,
		Title:       "Add user avatars",
		URL:         "https://github.com/octocat/hello/pull/42",
		HeadRef:     "feature/avatars",
		BaseRef:     "main",
		Author:      "<@1000>",
		Description: "Users should be able to upload profile pictures.",
		Reviewers:   []string{"<@1001>", "@sam"},
		Status:      StatusReady,
	}
}

func TestRender_DraftWithReviewers(t *testing.T) {
	s := testState()
	s.Status = StatusDraft
	text := s.Render()

	if !strings.Contains(text, "**Status**: :pencil: Draft - In Progress") {
		t.Errorf("missing draft status line:\n%s", text)
	}
	if !strings.Contains(text, "<@1001>") || !strings.Contains(text, "@sam") {
		t.Errorf("missing reviewer mentions:\n%s", text)
	}
	if strings.Contains(text, warningMarker) {
		t.Errorf("warning block present despite reviewers:\n%s", text)
	}
}

func TestRender_ReadyNoReviewers(t *testing.T) {
	s := testState()
	s.Reviewers = nil
	text := s.Render()

	if !strings.Contains(text, "**Status**: :eyes: Ready for Review") {
		t.Errorf("missing ready status line:\n%s", text)
	}
	if !strings.Contains(text, warningLine1) || !strings.Contains(text, warningLine2) {
		t.Errorf("missing warning block:\n%s", text)
	}
	if strings.Contains(text, reviewerPrefix) {
		t.Errorf("reviewer line present despite empty set:\n%s", text)
	}
}

func TestRender_OmitsBlankDescription(t *testing.T) {
	s := testState()
	s.Description = "   \n  "
	text := s.Render()

	for i, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) != l {
			t.Errorf("line %d has stray whitespace: %q", i, l)
		}
	}
	parsed, err := Parse(text)
	if err != nil {
		t.Fatalf("parsing rendered text: %v", err)
	}
	if parsed.Description != "" {
		t.Errorf("expected empty description, got %q", parsed.Description)
	}
}

func TestParse_RoundTrip(t *testing.T) {
	cases := map[string]State{
		"with reviewers": testState(),
		"no reviewers": func() State {
			s := testState()
			s.Reviewers = nil
			return s
		}(),
		"no description": func() State {
			s := testState()
			s.Description = ""
			return s
		}(),
		"multiline description": func() State {
			s := testState()
			s.Description = "First paragraph.\n\nSecond paragraph."
			return s
		}(),
		"approved": func() State {
			s := testState()
			s.Status = StatusApproved("sam")
			return s
		}(),
	}

	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			once := s.Render()
			parsed, err := Parse(once)
			if err != nil {
				t.Fatalf("parsing: %v", err)
			}
			if got := parsed.Render(); got != once {
				t.Errorf("round trip mismatch:\n--- first\n%s\n--- second\n%s", once, got)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	for name, text := range map[string]string{
		"empty":           "",
		"no title":        "hello\n`a` → `b`\n**Author**: @x\n**Status**: s",
		"no status line":  testStateNoStatus(),
		"number overflow": "**[#99999999999999999999 T](u)**\n`a` → `b`\n**Author**: @x\n**Status**: s",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(text); err == nil {
				t.Errorf("expected error for %s", name)
			}
		})
	}
}

func testStateNoStatus() string {
	s := testState()
	text := s.Render()
	var kept []string
	for _, l := range strings.Split(text, "\n") {
		if !strings.HasPrefix(l, statusPrefix) {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}

func TestPatchStatus_Idempotent(t *testing.T) {
	texts := []string{
		testState().Render(),
		func() State { s := testState(); s.Reviewers = nil; return s }().Render(),
		testStateNoStatus(),
	}
	for _, text := range texts {
		once := PatchStatus(text, StatusApproved("sam"))
		twice := PatchStatus(once, StatusApproved("sam"))
		if once != twice {
			t.Errorf("not idempotent:\n--- once\n%s\n--- twice\n%s", once, twice)
		}
	}
}

func TestPatchStatus_ReplacesAllDuplicates(t *testing.T) {
	text := testState().Render() + "\n" + statusPrefix + StatusDraft
	got := PatchStatus(text, StatusMerged("sam"))

	if strings.Count(got, statusPrefix+StatusMerged("sam")) != 2 {
		t.Errorf("expected both status lines rewritten:\n%s", got)
	}
	if strings.Contains(got, StatusDraft) || strings.Contains(got, StatusReady) {
		t.Errorf("stale status survived:\n%s", got)
	}
}

func TestPatchStatus_InsertsAfterReviewerRegion(t *testing.T) {
	text := testStateNoStatus()
	got := PatchStatus(text, StatusReady)

	lines := strings.Split(got, "\n")
	for i, l := range lines {
		if isReviewerLine(l) {
			if i+1 >= len(lines) || !strings.HasPrefix(lines[i+1], statusPrefix) {
				t.Errorf("status not inserted after reviewer line:\n%s", got)
			}
			return
		}
	}
	t.Fatalf("no reviewer line in fixture:\n%s", got)
}

func TestPatchStatus_AppendsWhenNothingFound(t *testing.T) {
	got := PatchStatus("just some text", StatusReady)
	if !strings.HasSuffix(got, statusPrefix+StatusReady) {
		t.Errorf("expected appended status line:\n%s", got)
	}
}

func TestPatchReviewers_Converges(t *testing.T) {
	final := []string{"<@1>", "<@2>"}

	withWarning := func() State { s := testState(); s.Reviewers = nil; return s }().Render()
	withStale := func() State { s := testState(); s.Reviewers = []string{"<@9>"}; return s }().Render()

	a := PatchReviewers(withWarning, final)
	b := PatchReviewers(withStale, final)
	if a != b {
		t.Errorf("divergent results:\n--- from warning\n%s\n--- from stale list\n%s", a, b)
	}
}

func TestPatchReviewers_MutualExclusivity(t *testing.T) {
	base := testState().Render()
	both := base + "\n" + warningLine1 + "\n" + warningLine2 // pathological input

	for name, tc := range map[string]struct {
		text     string
		mentions []string
	}{
		"add to warning":      {func() State { s := testState(); s.Reviewers = nil; return s }().Render(), []string{"<@1>"}},
		"clear list":          {base, nil},
		"both regions input":  {both, []string{"<@1>"}},
		"both regions, empty": {both, nil},
		"no region at all":    {"title\nbody", []string{"<@1>"}},
	} {
		t.Run(name, func(t *testing.T) {
			got := PatchReviewers(tc.text, tc.mentions)
			hasList := strings.Contains(got, reviewerPrefix)
			hasWarning := strings.Contains(got, warningMarker)
			if hasList == hasWarning {
				t.Errorf("want exactly one region form, got list=%v warning=%v:\n%s", hasList, hasWarning, got)
			}
			if strings.Count(got, warningMarker) > 1 || strings.Count(got, reviewerPrefix) > 1 {
				t.Errorf("duplicated region:\n%s", got)
			}
		})
	}
}

func TestPatchReviewers_InsertsAfterAuthorLine(t *testing.T) {
	text := "**[#1 t](u)**\n`a` → `b`\n**Author**: @me\n\n**Status**: " + StatusReady
	got := PatchReviewers(text, []string{"<@1>"})

	lines := strings.Split(got, "\n")
	if !strings.HasPrefix(lines[3], reviewerPrefix) {
		t.Errorf("expected reviewer line right after author line:\n%s", got)
	}
}

func TestMention(t *testing.T) {
	users := map[string]string{"octocat": "1000"}

	if got := Mention("octocat", users); got != "<@1000>" {
		t.Errorf("mapped mention: got %q", got)
	}
	if got := Mention("Octocat", users); got != "@Octocat" {
		t.Errorf("lookup must be case-sensitive: got %q", got)
	}
	if got := Mention("stranger", users); got != "@stranger" {
		t.Errorf("fallback mention: got %q", got)
	}
}

func TestThreadName_Truncates(t *testing.T) {
	long := strings.Repeat("x", 200)
	name := ThreadName(7, long)
	if got := len([]rune(name)); got != 100 {
		t.Errorf("expected 100 runes, got %d", got)
	}
	if !strings.HasPrefix(name, "PR #7: ") {
		t.Errorf("unexpected prefix: %q", name)
	}

	short := ThreadName(7, "small change")
	if short != "PR #7: small change" {
		t.Errorf("short names must not be altered: %q", short)
	}
}

func TestIsApproved(t *testing.T) {
	s := testState()
	s.Status = StatusApproved("sam")
	if !IsApproved(s.Render()) {
		t.Error("expected approved text to match")
	}

	s.Status = StatusReady
	if IsApproved(s.Render()) {
		t.Error("ready text must not match")
	}
	if IsApproved("no status here") {
		t.Error("text without status line must not match")
	}
}
