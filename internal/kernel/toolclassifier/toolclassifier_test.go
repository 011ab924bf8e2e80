package toolclassifier_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wardenai/warden/internal/kernel/toolclassifier"
)

func TestClassifyOrderedRules(t *testing.T) {
	cases := map[string]toolclassifier.Kind{
		"operation timed out after 30s":        toolclassifier.KindTimeout,
		"Error: file not found at /tmp/x":      toolclassifier.KindNotFound,
		"permission denied writing to /etc":    toolclassifier.KindPermission,
		"SyntaxError: unexpected token '}'":    toolclassifier.KindSyntax,
		"dial tcp: connection refused":         toolclassifier.KindNetwork,
		"resource exhausted: too many open files": toolclassifier.KindResource,
		"cannot find package \"foo/bar\"":      toolclassifier.KindDependency,
		"exit status 1\npanic: runtime error":  toolclassifier.KindExecution,
		"build succeeded, 0 errors":             toolclassifier.KindSuccess,
	}
	for input, want := range cases {
		assert.Equal(t, want, toolclassifier.Classify(input), "input: %s", input)
	}
}

func TestTrackerConsecutiveCounterResetsOnSuccess(t *testing.T) {
	tr := toolclassifier.NewTracker()
	tr.Record("grep", "connection refused")
	tr.Record("grep", "connection refused")
	assert.Equal(t, 2, tr.MaxConsecutive())

	tr.Record("grep", "0 matches found")
	assert.Equal(t, 0, tr.MaxConsecutive())
}

func TestTrackerAdviceAfterThreshold(t *testing.T) {
	tr := toolclassifier.NewTracker()
	tr.Record("curl", "connection refused")
	advice, reflect := tr.Advice("curl")
	assert.Empty(t, advice)
	assert.False(t, reflect)

	tr.Record("curl", "connection refused")
	advice, _ = tr.Advice("curl")
	assert.NotEmpty(t, advice)
}

func TestTrackerReflectionOnFormatErrorStreak(t *testing.T) {
	tr := toolclassifier.NewTracker()
	tr.Record("jsonpatch", "SyntaxError: bad token")
	tr.Record("jsonpatch", "SyntaxError: bad token")
	_, reflect := tr.Advice("jsonpatch")
	assert.True(t, reflect)

	tr.Record("jsonpatch", "applied cleanly")
	_, reflect = tr.Advice("jsonpatch")
	assert.False(t, reflect)
}

func TestTrackerOverallFailureAdvice(t *testing.T) {
	tr := toolclassifier.NewTracker()
	for i := 0; i < 5; i++ {
		tr.Record("toolA", "exit status 1")
	}
	advice, _ := tr.Advice("toolA")
	found := false
	for _, a := range advice {
		if a == "Multiple recent tool calls have failed. Step back and reassess the approach before continuing." {
			found = true
		}
	}
	assert.True(t, found)
}
