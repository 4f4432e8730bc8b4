// Package refs resolves the issue numbers a pull request claims to close.
package refs

import (
	"regexp"
	"strings"
)

var (
	issuePat   = regexp.MustCompile(`(\w+)\s#(\d+)`)
	commentPat = regexp.MustCompile(`(?s)<!--.*?-->`)
)

// closingKeywords are the words the hosting service recognizes as linking a
// pull request to the issue it resolves.
var closingKeywords = map[string]bool{
	"close":    true,
	"closes":   true,
	"closed":   true,
	"fix":      true,
	"fixes":    true,
	"fixed":    true,
	"resolve":  true,
	"resolves": true,
	"resolved": true,
}

// ResolvedIssues scans a pull request's title, body and commit messages for
// "<keyword> #<number>" references and returns the referenced issue numbers.
// HTML comment blocks are stripped first: PR templates hide boilerplate
// closing-keyword text inside them, and that must never produce a reference.
//
// References are keyed by their preceding word before the keyword filter is
// applied, so a keyword reused for several issues retains its last match;
// result order follows first occurrence of each keyword in the text.
func ResolvedIssues(title, body string, commitMessages []string) []string {
	text := title + "\n" + body + "\n" + strings.Join(commitMessages, "\n")
	text = commentPat.ReplaceAllString(text, "")

	byWord := make(map[string]string)
	var order []string
	for _, m := range issuePat.FindAllStringSubmatch(text, -1) {
		word, num := m[1], m[2]
		if _, seen := byWord[word]; !seen {
			order = append(order, word)
		}
		byWord[word] = num
	}

	var resolved []string
	for _, word := range order {
		if closingKeywords[strings.ToLower(word)] {
			resolved = append(resolved, byWord[word])
		}
	}
	return resolved
}
