package store_test

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenai/warden/internal/ontology/resolver"
	"github.com/wardenai/warden/internal/ontology/store"
)

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if len(scanner.Bytes()) > 0 {
			n++
		}
	}
	require.NoError(t, scanner.Err())
	return n
}

func TestResolutionAuditLog_AppendWritesOneLinePerEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resolution_audit.jsonl")
	l := store.OpenResolutionAuditLog(path)

	entries := []resolver.AuditEntry{
		{A: 0, B: 1, Score: 0.9, Decision: resolver.DecisionMerge, Timestamp: time.Now().UTC()},
		{A: 2, B: 3, Score: 0.7, Decision: resolver.DecisionFlag, Timestamp: time.Now().UTC()},
	}
	require.NoError(t, l.Append(entries))
	assert.Equal(t, 2, countLines(t, path))

	require.NoError(t, l.Append([]resolver.AuditEntry{{A: 4, B: 5, Score: 0.1, Decision: resolver.DecisionDistinct}}))
	assert.Equal(t, 3, countLines(t, path))
}

func TestResolutionAuditLog_NilOrEmptyPathIsNoop(t *testing.T) {
	var l *store.ResolutionAuditLog
	require.NoError(t, l.Append([]resolver.AuditEntry{{A: 0, B: 1}}))

	l2 := store.OpenResolutionAuditLog("")
	require.NoError(t, l2.Append([]resolver.AuditEntry{{A: 0, B: 1}}))
}

func TestReviewQueue_AppendWritesOneLinePerPair(t *testing.T) {
	path := filepath.Join(t.TempDir(), "review_queue.jsonl")
	q := store.OpenReviewQueue(path)

	pairs := []resolver.ScoredPair{
		{A: 0, B: 1, Score: resolver.Score{Composite: 0.7}, Decision: resolver.DecisionFlag},
		{A: 2, B: 3, Score: resolver.Score{Composite: 0.65}, Decision: resolver.DecisionFlag},
	}
	require.NoError(t, q.Append(pairs))
	assert.Equal(t, 2, countLines(t, path))
}
