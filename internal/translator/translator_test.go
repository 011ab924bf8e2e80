package translator_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenai/warden/internal/registry"
	"github.com/wardenai/warden/internal/salute"
	"github.com/wardenai/warden/internal/translator"
)

func TestPACEToState(t *testing.T) {
	assert.Equal(t, registry.StateWorking, translator.PACEToState("primary", "active"))
	assert.Equal(t, registry.StateWorking, translator.PACEToState("alternate", "error_recovery"))
	assert.Equal(t, registry.StateInputRequired, translator.PACEToState("contingent", "escalating"))
	assert.Equal(t, registry.StateFailed, translator.PACEToState("emergency", "aborted"))
	assert.Equal(t, registry.StateFailed, translator.PACEToState("primary", "aborted"))
	assert.Equal(t, registry.StateInputRequired, translator.PACEToState("primary", "escalating"))
}

func TestFailureReportBeginsWithHeader(t *testing.T) {
	r := salute.Report{}
	r.Activity.Plan = "investigate-outage"
	r.Status.Progress = 0.4
	report := translator.FailureReport(r, "partial work done")
	assert.Regexp(t, `^=== Task Failure Report ===`, report)
	assert.Contains(t, report, "investigate-outage")
}

func TestFailureReportTruncatesPartialOutput(t *testing.T) {
	long := make([]byte, 3000)
	for i := range long {
		long[i] = 'x'
	}
	report := translator.FailureReport(salute.Report{}, string(long))
	// 2000 x's plus the surrounding report text.
	assert.LessOrEqual(t, len(report), 2200)
}

func TestCollectArtifactsTextInline(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# hello"), 0o644))

	artifacts := translator.CollectArtifacts([]string{path})
	require.Len(t, artifacts, 1)
	assert.Equal(t, "notes.md", artifacts[0].Name)
	require.Len(t, artifacts[0].Parts, 1)
	assert.Equal(t, "text", artifacts[0].Parts[0].Type)
	assert.Equal(t, "# hello", artifacts[0].Parts[0].Text)
}

func TestCollectArtifactsBinaryBase64(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.png")
	require.NoError(t, os.WriteFile(path, []byte{0x89, 0x50, 0x4e, 0x47}, 0o644))

	artifacts := translator.CollectArtifacts([]string{path})
	require.Len(t, artifacts, 1)
	assert.Equal(t, "base64", artifacts[0].Encoding)
	assert.Equal(t, "data", artifacts[0].Parts[0].Type)
}
