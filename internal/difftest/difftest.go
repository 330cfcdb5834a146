// Package difftest renders two buses to a human-readable per-sample table
// and diffs them, for tests that want to assert near-equality and see
// exactly which frames/channels diverge rather than a single bool.
package difftest

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/dudk/audiograph"
)

// Dump renders a bus as one "channel frame value" line per sample, rounded
// to 6 decimal places so float noise below that doesn't show up as a diff.
func Dump(b *audiograph.Bus) string {
	if b == nil {
		return ""
	}
	var sb strings.Builder
	for c, row := range b.Data {
		for i, v := range row {
			fmt.Fprintf(&sb, "%d %d %.6f\n", c, i, v)
		}
	}
	return sb.String()
}

// Diff returns a unified diff between the rendered forms of want and got, or
// the empty string if they match exactly at 6 decimal places.
func Diff(want, got *audiograph.Bus) (string, error) {
	wantText := Dump(want)
	gotText := Dump(got)
	if wantText == gotText {
		return "", nil
	}
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(wantText),
		B:        difflib.SplitLines(gotText),
		FromFile: "want",
		ToFile:   "got",
		Context:  2,
	}
	return difflib.GetUnifiedDiffString(ud)
}
