package diff

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/vellumhq/vellum-go/lib/exception"
	"github.com/vellumhq/vellum-go/lib/models/version"
)

func TestDiffApplyRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		from string
		to   string
	}{
		{"identical", "A\nB\nC", "A\nB\nC"},
		{"single modification", "A\nB\nC", "A\nB2\nC"},
		{"insert at top", "A\nB", "X\nA\nB"},
		{"insert in middle", "A\nB", "A\nX\nY\nB"},
		{"insert at end", "A\nB", "A\nB\nX"},
		{"delete first line", "A\nB\nC", "B\nC"},
		{"delete last line", "A\nB\nC", "A\nB"},
		{"delete middle block", "A\nB\nC\nD\nE", "A\nE"},
		{"growing replacement", "A\nB\nC", "A\nX\nY\nZ\nC"},
		{"shrinking replacement", "A\nX\nY\nZ\nC", "A\nB\nC"},
		{"replace everything", "A\nB\nC", "X\nY"},
		{"single line to many", "A", "X\nY\nZ"},
		{"many to single line", "X\nY\nZ", "A"},
		{"empty to text", "", "A\nB"},
		{"text to empty", "A\nB", ""},
		{"add trailing newline", "a\nb", "a\nb\n"},
		{"drop trailing newline", "a\nb\n", "a\nb"},
		{"blank lines", "A\n\nB\n\nC", "A\n\nX\n\nC"},
		{"two separated hunks", "A\nB\nC\nD\nE\nF", "A\nB2\nC\nD\nE2\nF"},
		{"shifted block", "A\nB\nC\nA\nB\nB\nA", "C\nB\nA\nB\nA\nC"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			changes := Diff(tc.from, tc.to)

			got, err := Apply(tc.from, changes)
			if err != nil {
				t.Fatalf("Apply failed: %v", err)
			}
			if got != tc.to {
				t.Errorf("round trip broken:\nfrom: %q\nto:   %q\ngot:  %q\nchanges: %+v", tc.from, tc.to, got, changes)
			}

			again := Diff(tc.from, tc.to)
			if diff := cmp.Diff(changes, again); diff != "" {
				t.Errorf("diff is not deterministic (-first +second):\n%s", diff)
			}
		})
	}
}

func TestDiffSingleModification(t *testing.T) {
	changes := Diff("A\nB\nC", "A\nB2\nC")

	want := []version.VersionChange{
		version.Modification{
			Lines:  version.LineRange{Start: 2, End: 2},
			Old:    "B",
			New:    "B2",
			Impact: version.ImpactMinor,
		},
	}
	if diff := cmp.Diff(want, changes); diff != "" {
		t.Errorf("unexpected changes (-want +got):\n%s", diff)
	}

	stats := version.ComputeStats(changes)
	if stats.Added != 0 || stats.Removed != 0 || stats.Modified != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestDiffIsMinimal(t *testing.T) {
	from := strings.Join([]string{"A", "B", "C", "A", "B", "B", "A"}, "\n")
	to := strings.Join([]string{"C", "B", "A", "B", "A", "C"}, "\n")

	stats := version.ComputeStats(Diff(from, to))
	editedLines := stats.Added + stats.Removed + 2*stats.Modified
	if editedLines != 5 {
		t.Errorf("expected a minimal script touching 5 lines, got %d (%+v)", editedLines, stats)
	}
}

func TestDiffSectionNames(t *testing.T) {
	from := "# Intro\nhello\n# Usage\nrun it"
	to := "# Intro\nhello\n# Usage\nrun it twice"

	changes := Diff(from, to)
	if len(changes) != 1 {
		t.Fatalf("expected one change, got %d", len(changes))
	}
	mod, ok := changes[0].(version.Modification)
	if !ok {
		t.Fatalf("expected a modification, got %T", changes[0])
	}
	if mod.Section != "Usage" {
		t.Errorf("section should be Usage, got %q", mod.Section)
	}
}

func TestDiffGrowingReplacementSplits(t *testing.T) {
	changes := Diff("A\nB\nC", "A\nX\nY\nZ\nC")

	if len(changes) != 2 {
		t.Fatalf("expected modification plus addition, got %+v", changes)
	}
	mod, ok := changes[0].(version.Modification)
	if !ok {
		t.Fatalf("first change should be a modification, got %T", changes[0])
	}
	if mod.Lines != (version.LineRange{Start: 2, End: 2}) || mod.Old != "B" || mod.New != "X" {
		t.Errorf("unexpected modification: %+v", mod)
	}
	add, ok := changes[1].(version.Addition)
	if !ok {
		t.Fatalf("second change should be an addition, got %T", changes[1])
	}
	if add.After != 2 || add.Content != "Y\nZ" {
		t.Errorf("unexpected addition: %+v", add)
	}
	if add.Lines != (version.LineRange{Start: 3, End: 4}) {
		t.Errorf("addition lines should be in target coordinates: %+v", add.Lines)
	}
}

func TestApplyOrdersChangesBeforeReplaying(t *testing.T) {
	// Deliberately shuffled: deletion of line 3 listed before the addition
	// anchored at line 1.
	changes := []version.VersionChange{
		version.Deletion{
			Lines:   version.LineRange{Start: 3, End: 3},
			Content: "C",
			Impact:  version.ImpactMinor,
		},
		version.Addition{
			After:   1,
			Lines:   version.LineRange{Start: 2, End: 2},
			Content: "A2",
			Impact:  version.ImpactMinor,
		},
	}

	got, err := Apply("A\nB\nC", changes)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got != "A\nA2\nB" {
		t.Errorf("unexpected result %q", got)
	}
}

func TestApplyAdditionBeforeDeletionAtSamePoint(t *testing.T) {
	changes := []version.VersionChange{
		version.Deletion{
			Lines:   version.LineRange{Start: 2, End: 2},
			Content: "B",
			Impact:  version.ImpactMinor,
		},
		version.Addition{
			After:   1,
			Lines:   version.LineRange{Start: 2, End: 2},
			Content: "X",
			Impact:  version.ImpactMinor,
		},
	}

	got, err := Apply("A\nB\nC", changes)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got != "A\nX\nC" {
		t.Errorf("unexpected result %q", got)
	}
}

func TestApplyRejectsMismatchedContent(t *testing.T) {
	changes := []version.VersionChange{
		version.Modification{
			Lines:  version.LineRange{Start: 2, End: 2},
			Old:    "not what is there",
			New:    "B2",
			Impact: version.ImpactMinor,
		},
	}

	_, err := Apply("A\nB\nC", changes)
	var validation *exception.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestApplyRejectsOverlappingChanges(t *testing.T) {
	changes := []version.VersionChange{
		version.Deletion{
			Lines:   version.LineRange{Start: 1, End: 2},
			Content: "A\nB",
			Impact:  version.ImpactMinor,
		},
		version.Modification{
			Lines:  version.LineRange{Start: 2, End: 2},
			Old:    "B",
			New:    "B2",
			Impact: version.ImpactMinor,
		},
	}

	_, err := Apply("A\nB\nC", changes)
	var validation *exception.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestApplyRejectsChangePastEnd(t *testing.T) {
	changes := []version.VersionChange{
		version.Addition{
			After:   9,
			Lines:   version.LineRange{Start: 10, End: 10},
			Content: "X",
			Impact:  version.ImpactMinor,
		},
	}

	_, err := Apply("A\nB", changes)
	var validation *exception.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
