// Package bridge implements the Agent Bridge (B): it submits tasks to the
// inner agent over HTTP and reads the SALUTE telemetry the Org Kernel
// writes to disk. Artifact collection lives in internal/translator. It is
// grounded on the teacher's runtime/a2a/httpclient.Client (JSON
// request/response over a plain *http.Client) and runtime/a2a/retry for
// the timeout-vs-agent error classification; calls are not retried.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	wardenerrors "github.com/wardenai/warden/internal/errors"
	"github.com/wardenai/warden/internal/salute"
	"golang.org/x/time/rate"
)

type (
	// Config configures a Bridge instance.
	Config struct {
		BaseURL       string
		APIKey        string
		Timeout       time.Duration
		CancelTimeout time.Duration
		ReportsDir    string
		// RequestsPerSecond bounds outbound calls to the inner agent; zero
		// disables limiting.
		RequestsPerSecond float64
		// Telemetry, when set, is consulted before the filesystem for
		// ReadLatestTelemetry — the in-process/colocated channel spec.md
		// §9 invites as an alternative to file polling. The file contract
		// remains canonical and is always the fallback.
		Telemetry *salute.PulseChannel
	}

	// Bridge is stateless except for its reusable HTTP client and limiter.
	Bridge struct {
		cfg     Config
		http    *http.Client
		limiter *rate.Limiter
	}

	submitRequest struct {
		Text    string `json:"text"`
		Context string `json:"context"`
	}

	submitResponse struct {
		Context string `json:"context"`
		Message string `json:"message"`
	}
)

// New constructs a Bridge for cfg.
func New(cfg Config) *Bridge {
	b := &Bridge{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.RequestsPerSecond > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return b
}

// Submit posts a new-context message to the inner agent and returns the
// reply text along with the agent-assigned context ID to reuse on
// follow-ups.
func (b *Bridge) Submit(ctx context.Context, text string) (reply, agentContextID string, err error) {
	return b.submit(ctx, text, "")
}

// SubmitFollowup posts text on an existing inner-agent context.
func (b *Bridge) SubmitFollowup(ctx context.Context, agentContextID, text string) (reply string, err error) {
	reply, _, err = b.submit(ctx, text, agentContextID)
	return reply, err
}

func (b *Bridge) submit(ctx context.Context, text, agentContextID string) (reply, returnedContext string, err error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return "", "", err
		}
	}
	body, err := json.Marshal(submitRequest{Text: text, Context: agentContextID})
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+"/api_message", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.cfg.APIKey != "" {
		req.Header.Set("X-API-KEY", b.cfg.APIKey)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		kind := wardenerrors.BridgeErrorTimeout
		if ctx.Err() == nil {
			kind = wardenerrors.BridgeErrorAgent
		}
		return "", "", &wardenerrors.BridgeError{Kind: kind, Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", "", &wardenerrors.BridgeError{Kind: wardenerrors.BridgeErrorAuth, Cause: fmt.Errorf("inner agent returned 401")}
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", &wardenerrors.BridgeError{Kind: wardenerrors.BridgeErrorAgent, Cause: fmt.Errorf("inner agent returned status %d", resp.StatusCode)}
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", &wardenerrors.BridgeError{Kind: wardenerrors.BridgeErrorAgent, Cause: err}
	}
	return out.Message, out.Context, nil
}

// Cancel sends the cancel sentinel on an existing context with a short
// timeout. It is best-effort: failures are swallowed, since Cancel is
// advisory to the inner agent and authoritative only at the Registry.
func (b *Bridge) Cancel(ctx context.Context, agentContextID string) {
	cctx, cancel := context.WithTimeout(ctx, b.cfg.CancelTimeout)
	defer cancel()
	_, _, _ = b.submit(cctx, "CANCEL: stop the current task immediately", agentContextID)
}

// latestReportSuffix ends every per-role SALUTE snapshot file name.
const latestReportSuffix = "_latest.json"

// ReadLatestTelemetry reads the SALUTE report for roleID, or — when roleID
// is empty — the most-recently-modified *_latest.json file in the reports
// directory. When cfg.Telemetry is configured and roleID is non-empty, the
// Pulse channel is tried first (subscribing lazily on first use); the
// file contract is always the fallback, including on any channel miss. It
// returns (nil, nil) on any read failure per spec.md §7's "SALUTE read
// failure: silent skip on that poll tick".
func (b *Bridge) ReadLatestTelemetry(roleID string) (*salute.Report, error) {
	if b.cfg.Telemetry != nil && roleID != "" {
		_ = b.cfg.Telemetry.EnsureSubscribed(context.Background(), roleID)
		if report, ok := b.cfg.Telemetry.Latest(roleID); ok {
			return &report, nil
		}
	}
	path, err := b.resolveReportPath(roleID)
	if err != nil || path == "" {
		return nil, nil //nolint:nilerr // silent skip per spec
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil //nolint:nilerr // silent skip per spec
	}
	var report salute.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, nil //nolint:nilerr // silent skip per spec
	}
	return &report, nil
}

func (b *Bridge) resolveReportPath(roleID string) (string, error) {
	if roleID != "" {
		return filepath.Join(b.cfg.ReportsDir, roleID+latestReportSuffix), nil
	}
	entries, err := os.ReadDir(b.cfg.ReportsDir)
	if err != nil {
		return "", err
	}
	var newestPath string
	var newestMod time.Time
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		if len(e.Name()) < len(latestReportSuffix) || e.Name()[len(e.Name())-len(latestReportSuffix):] != latestReportSuffix {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(newestMod) {
			newestMod = info.ModTime()
			newestPath = filepath.Join(b.cfg.ReportsDir, e.Name())
		}
	}
	return newestPath, nil
}
