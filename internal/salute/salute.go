// Package salute defines the SALUTE telemetry report (Status, Activity,
// Location, Unit, Time, Environment) and the filesystem conventions for
// writing and archiving it, per spec.md §3 and §6. The Org Kernel is the
// sole writer per role; the Bridge is a reader.
package salute

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

type (
	// Report is one SALUTE telemetry snapshot.
	Report struct {
		Schema      string      `json:"_schema"`
		Version     string      `json:"_version"`
		Status      Status      `json:"status"`
		Activity    Activity    `json:"activity"`
		Location    Location    `json:"location"`
		Unit        Unit        `json:"unit"`
		Time        Time        `json:"time"`
		Environment Environment `json:"environment"`
	}

	// Status carries the task state, progress, PACE level, and health.
	Status struct {
		State     string  `json:"state"`
		Progress  float64 `json:"progress"`
		PACELevel string  `json:"pace_level"`
		Health    string  `json:"health"`
	}

	// Activity describes what the inner agent is currently doing.
	Activity struct {
		CurrentTask      string `json:"current_task"`
		BSTDomain        string `json:"bst_domain"`
		Plan             string `json:"plan"`
		Step             int    `json:"step"`
		TotalSteps       int    `json:"total_steps"`
		IterationsOnStep int    `json:"iterations_on_step"`
		CurrentTool      string `json:"current_tool"`
	}

	// Location records where the inner agent has been reading and writing.
	Location struct {
		WorkingDir    string   `json:"working_dir"`
		FilesModified []string `json:"files_modified"`
		FilesRead     []string `json:"files_read"`
	}

	// Unit identifies the role emitting the report and its place in the
	// organization.
	Unit struct {
		RoleID       string `json:"role_id"`
		RoleName     string `json:"role_name"`
		ReportsTo    string `json:"reports_to"`
		Organization string `json:"organization"`
	}

	// Time records cadence bookkeeping.
	Time struct {
		Timestamp        time.Time `json:"timestamp"`
		TurnsElapsed     int       `json:"turns_elapsed"`
		TurnsSinceProgress int     `json:"turns_since_progress"`
	}

	// Environment records resource and failure counters used by PACE.
	Environment struct {
		Model                    string  `json:"model"`
		ContextFillPct           float64 `json:"context_fill_pct"`
		ToolFailuresConsecutive  int     `json:"tool_failures_consecutive"`
		ToolFailuresTotal        int     `json:"tool_failures_total"`
		MemoryHealth             string  `json:"memory_health,omitempty"`
	}
)

// reportSuffix is the filename suffix for the latest-per-role snapshot.
const reportSuffix = "_latest.json"

// WriteLatest writes report as the latest snapshot for roleID under dir,
// atomically (write-then-rename) so concurrent readers never observe a
// partial file.
func WriteLatest(dir, roleID string, report Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating reports dir: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	final := filepath.Join(dir, roleID+reportSuffix)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, final)
}

// Archive writes an immutable timestamped copy under dir/archive, and
// applies archive retention (§ Supplemented Features, Part D.2): only the
// most recent keep archives for roleID are retained; keep <= 0 retains all.
func Archive(dir, roleID string, report Report, keep int) error {
	archiveDir := filepath.Join(dir, "archive")
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return fmt.Errorf("creating archive dir: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	name := fmt.Sprintf("%s_%s.json", roleID, report.Time.Timestamp.Format("20060102_150405"))
	if err := os.WriteFile(filepath.Join(archiveDir, name), data, 0o644); err != nil {
		return err
	}
	return pruneArchive(archiveDir, roleID, keep)
}

// pruneArchive keeps only the keep most recent archive files for roleID,
// matching the original implementation's retention behavior (§ Part D.2
// of SPEC_FULL.md).
func pruneArchive(archiveDir, roleID string, keep int) error {
	if keep <= 0 {
		return nil
	}
	entries, err := os.ReadDir(archiveDir)
	if err != nil {
		return err
	}
	prefix := roleID + "_"
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if len(e.Name()) > len(prefix) && e.Name()[:len(prefix)] == prefix {
			names = append(names, e.Name())
		}
	}
	if len(names) <= keep {
		return nil
	}
	sort.Strings(names) // timestamp-suffixed names sort chronologically
	toRemove := names[:len(names)-keep]
	for _, n := range toRemove {
		_ = os.Remove(filepath.Join(archiveDir, n))
	}
	return nil
}

// ReadLatest reads the latest snapshot for roleID, returning nil on any
// I/O or parse failure — the spec's "silent skip" contract.
func ReadLatest(dir, roleID string) *Report {
	data, err := os.ReadFile(filepath.Join(dir, roleID+reportSuffix))
	if err != nil {
		return nil
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil
	}
	return &r
}
