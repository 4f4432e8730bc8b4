// Package diffsplit partitions a pull request's unified diff into a code
// patch and a test patch, and derives test directives from the test patch.
package diffsplit

import (
	"regexp"
	"strings"
)

// blockKind routes the lines of one file block of a diff.
type blockKind int

const (
	blockNone blockKind = iota
	blockCode
	blockTest
)

var headerWordSplit = regexp.MustCompile(`[ _/.]`)

// Split separates a unified diff into the code-change patch and the
// test-change patch. Every retained line lands in exactly one of the two
// outputs; file blocks that touch neither source nor test files are dropped,
// as are commit-object "index" lines. Non-empty outputs end with exactly one
// trailing newline.
func Split(diff string) (codePatch, testPatch string) {
	diff = strings.TrimSuffix(diff, "\n")

	var code, test []string
	flag := blockNone

	for _, line := range strings.Split(diff, "\n") {
		// Commit-object metadata carries no diagnostic content.
		if strings.HasPrefix(line, "index ") {
			continue
		}
		if strings.HasPrefix(line, "diff --git a/") {
			flag = classifyHeader(line)
		}
		switch flag {
		case blockTest:
			test = append(test, line)
		case blockCode:
			code = append(code, line)
		}
	}

	return joinPatch(code), joinPatch(test)
}

// classifyHeader decides the routing for the file block introduced by a
// "diff --git" header line. A header whose tokenized path mentions testing
// routes to the test patch; a non-Python path routes nowhere; everything
// else is a code change.
func classifyHeader(line string) blockKind {
	words := headerWordSplit.Split(strings.ToLower(line), -1)
	for _, w := range words {
		switch w {
		case "test", "tests", "testing":
			return blockTest
		}
	}
	if !strings.HasSuffix(strings.TrimSpace(line), ".py") {
		return blockNone
	}
	return blockCode
}

func joinPatch(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
