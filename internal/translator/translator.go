// Package translator is a pure function library (T) that converts SALUTE
// telemetry into A2A state, status messages, and synthesized failure
// reports, and collects artifacts from the files an inner-agent turn
// touched. Nothing here performs I/O except CollectArtifacts, which reads
// the files location.files_modified names.
package translator

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wardenai/warden/internal/registry"
	"github.com/wardenai/warden/internal/salute"
)

// maxTextArtifactBytes is the size ceiling above which an artifact's
// content is not embedded at all (only a placeholder part reporting its
// size), per spec.md §4.4.
const maxTextArtifactBytes = 1 << 20 // 1 MiB

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".go": true, ".py": true, ".js": true,
	".ts": true, ".json": true, ".yaml": true, ".yml": true, ".toml": true,
	".csv": true, ".html": true, ".css": true, ".sh": true, ".sql": true,
}

// PACEToState maps a PACE escalation level, combined with the reported
// telemetry state, to an A2A task state per spec.md §4.4.
func PACEToState(paceLevel, telemetryState string) registry.State {
	switch telemetryState {
	case "aborted":
		return registry.StateFailed
	case "escalating":
		return registry.StateInputRequired
	}
	switch paceLevel {
	case "primary", "alternate":
		return registry.StateWorking
	case "contingent":
		return registry.StateInputRequired
	case "emergency":
		return registry.StateFailed
	default:
		return registry.StateWorking
	}
}

// StatusMessage assembles a human-readable one-line summary of a SALUTE
// report for A2A status_update events.
func StatusMessage(r salute.Report) string {
	var b strings.Builder
	if r.Activity.Plan != "" {
		fmt.Fprintf(&b, "Running %s", r.Activity.Plan)
		if r.Activity.TotalSteps > 0 {
			fmt.Fprintf(&b, " (step %d/%d)", r.Activity.Step, r.Activity.TotalSteps)
		}
	} else {
		fmt.Fprintf(&b, "Working on %s", valueOr(r.Activity.CurrentTask, r.Activity.BSTDomain))
	}
	fmt.Fprintf(&b, " — %.0f%% — role %s", r.Status.Progress*100, valueOr(r.Unit.RoleName, r.Unit.RoleID))
	if r.Activity.CurrentTool != "" {
		fmt.Fprintf(&b, " — tool %s", r.Activity.CurrentTool)
	}
	if r.Status.PACELevel != "" && r.Status.PACELevel != "primary" {
		fmt.Fprintf(&b, " [PACE: %s]", r.Status.PACELevel)
	}
	return b.String()
}

// ContingentMessage builds the multi-line message attached to an
// input-required transition, summarizing what was attempted, which steps
// failed, and tool-failure counts, per spec.md §4.4.
func ContingentMessage(r salute.Report, failedSteps []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task escalated to contingent status.\n")
	fmt.Fprintf(&b, "Attempted: %s", valueOr(r.Activity.Plan, r.Activity.CurrentTask))
	if r.Activity.TotalSteps > 0 {
		fmt.Fprintf(&b, " (step %d of %d)", r.Activity.Step, r.Activity.TotalSteps)
	}
	b.WriteString("\n")
	if len(failedSteps) > 0 {
		fmt.Fprintf(&b, "Failed steps:\n")
		for _, s := range failedSteps {
			fmt.Fprintf(&b, "  - %s\n", s)
		}
	}
	fmt.Fprintf(&b, "Tool failures: %d consecutive, %d total\n",
		r.Environment.ToolFailuresConsecutive, r.Environment.ToolFailuresTotal)
	fmt.Fprintf(&b, "Human guidance requested before continuing.")
	return b.String()
}

// FailureReport synthesizes the emergency-termination error detail
// attached to a task that PACE escalated to emergency, per spec.md §4.4.
// partialOutput is truncated to its first 2000 characters.
func FailureReport(r salute.Report, partialOutput string) string {
	if len(partialOutput) > 2000 {
		partialOutput = partialOutput[:2000]
	}
	var b strings.Builder
	b.WriteString("=== Task Failure Report ===\n")
	fmt.Fprintf(&b, "Workflow: %s\n", valueOr(r.Activity.Plan, r.Activity.CurrentTask))
	fmt.Fprintf(&b, "Progress: %.0f%% (step %d/%d)\n", r.Status.Progress*100, r.Activity.Step, r.Activity.TotalSteps)
	fmt.Fprintf(&b, "Tool failures: %d consecutive, %d total\n",
		r.Environment.ToolFailuresConsecutive, r.Environment.ToolFailuresTotal)
	fmt.Fprintf(&b, "Turns elapsed: %d, turns since progress: %d\n", r.Time.TurnsElapsed, r.Time.TurnsSinceProgress)
	if partialOutput != "" {
		fmt.Fprintf(&b, "--- partial output ---\n%s\n", partialOutput)
	}
	return b.String()
}

// CollectArtifacts builds Artifact values for each path in filesModified,
// embedding text content inline when small enough and text-shaped, else
// base64-encoding it; files over 1 MiB get only a placeholder text part
// reporting their size, per spec.md §4.4.
func CollectArtifacts(filesModified []string) []registry.Artifact {
	artifacts := make([]registry.Artifact, 0, len(filesModified))
	for _, path := range filesModified {
		artifacts = append(artifacts, collectOne(path))
	}
	return artifacts
}

func collectOne(path string) registry.Artifact {
	info, statErr := os.Stat(path)
	name := filepath.Base(path)
	mimeType := mimeForExt(filepath.Ext(path))

	if statErr != nil {
		return registry.Artifact{
			Name:     name,
			Path:     path,
			MIMEType: mimeType,
			Parts:    []registry.ArtifactPart{{Type: "text", Text: fmt.Sprintf("(unreadable: %v)", statErr)}},
		}
	}

	if info.Size() > maxTextArtifactBytes {
		return registry.Artifact{
			Name:     name,
			Path:     path,
			MIMEType: mimeType,
			Size:     info.Size(),
			Parts:    []registry.ArtifactPart{{Type: "text", Text: fmt.Sprintf("(%d bytes, too large to inline)", info.Size())}},
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return registry.Artifact{
			Name:     name,
			Path:     path,
			MIMEType: mimeType,
			Parts:    []registry.ArtifactPart{{Type: "text", Text: fmt.Sprintf("(unreadable: %v)", err)}},
		}
	}

	if isTextual(mimeType, filepath.Ext(path)) {
		return registry.Artifact{
			Name:     name,
			Path:     path,
			MIMEType: mimeType,
			Size:     info.Size(),
			Parts:    []registry.ArtifactPart{{Type: "text", Text: string(data)}},
		}
	}

	return registry.Artifact{
		Name:     name,
		Path:     path,
		MIMEType: mimeType,
		Size:     info.Size(),
		Encoding: "base64",
		Parts:    []registry.ArtifactPart{{Type: "data", Data: base64.StdEncoding.EncodeToString(data)}},
	}
}

func isTextual(mimeType, ext string) bool {
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	return textExtensions[strings.ToLower(ext)]
}

func mimeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/yaml"
	case ".html":
		return "text/html"
	case ".csv":
		return "text/csv"
	case ".md":
		return "text/markdown"
	case "":
		return "application/octet-stream"
	default:
		if textExtensions[strings.ToLower(ext)] {
			return "text/plain"
		}
		return "application/octet-stream"
	}
}

func valueOr(primary, fallback string) string {
	if primary != "" {
		return primary
	}
	return fallback
}
