package diffsplit

import (
	"regexp"
	"strings"
)

var diffHeaderPat = regexp.MustCompile(`diff --git a/.* b/(.*)`)

// nonTestExts are file extensions that never name runnable tests.
var nonTestExts = []string{
	".json", ".png", ".csv", ".txt", ".md",
	".jpg", ".jpeg", ".pkl", ".yml", ".yaml", ".toml",
}

// fixedDirectives maps repositories whose execution harness ignores the test
// patch to their fixed directive list.
var fixedDirectives = map[string][]string{
	"humaneval":           {"test.py"},
	"humanevalfix-python": {"test.py"},
}

// dottedModuleRepos use nested dotted test-module naming: directives are
// importable module references rather than file paths.
var dottedModuleRepos = map[string]bool{
	"django/django": true,
}

// TestDirectives extracts the test directives for a task instance from its
// test patch: the b/-side path of every file header, minus non-test files,
// transformed to dotted module references for repositories that run tests
// by module name.
func TestDirectives(repo, testPatch string) []string {
	if fixed, ok := fixedDirectives[repo]; ok {
		out := make([]string, len(fixed))
		copy(out, fixed)
		return out
	}

	var directives []string
	for _, m := range diffHeaderPat.FindAllStringSubmatch(testPatch, -1) {
		path := m[1]
		if hasNonTestExt(path) {
			continue
		}
		directives = append(directives, path)
	}

	if dottedModuleRepos[repo] {
		for i, d := range directives {
			d = strings.TrimSuffix(d, ".py")
			d = strings.TrimPrefix(d, "tests/")
			directives[i] = strings.ReplaceAll(d, "/", ".")
		}
	}

	return directives
}

func hasNonTestExt(path string) bool {
	for _, ext := range nonTestExts {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
