// Package toolclassifier implements the tool-result classifier and
// reflection tracker coupled to the PACE FSM (spec.md §4.5.2): it turns raw
// tool output into a failure kind, maintains a bounded history and
// per-tool consecutive-failure counters, and surfaces fallback advice and
// reflection prompts. Per-tool counters are modeled on the teacher pack's
// gobreaker.Settings{ReadyToTrip: ConsecutiveFailures >= N} idiom (see
// jordigilh-kubernaut's CircuitBreakerManager): each tool gets a
// gobreaker.CircuitBreaker that observes its failures, but advice and
// MaxConsecutive come from plain consecutive counts and the breaker's
// open/closed state is never consulted, since PACE — not the classifier —
// owns the escalation decision.
package toolclassifier

import (
	"regexp"
	"sync"

	"github.com/sony/gobreaker"
)

// Kind is the outcome classification of a single tool invocation.
type Kind string

const (
	KindSuccess    Kind = "success"
	KindTimeout    Kind = "timeout"
	KindNotFound   Kind = "not_found"
	KindPermission Kind = "permission"
	KindSyntax     Kind = "syntax"
	KindNetwork    Kind = "network"
	KindResource   Kind = "resource"
	KindDependency Kind = "dependency"
	KindExecution  Kind = "execution"
)

// classificationRule is one ordered entry of the regex table; first match
// wins.
type classificationRule struct {
	kind Kind
	re   *regexp.Regexp
}

// defaultRules is the ordered regex table mapping tool output text to a
// failure kind. Order matters: more specific patterns are listed first.
var defaultRules = []classificationRule{
	{KindTimeout, regexp.MustCompile(`(?i)\b(timed? ?out|deadline exceeded|context deadline)\b`)},
	{KindNotFound, regexp.MustCompile(`(?i)\b(not found|no such file|404|does not exist)\b`)},
	{KindPermission, regexp.MustCompile(`(?i)\b(permission denied|access denied|forbidden|401|403|unauthorized)\b`)},
	{KindSyntax, regexp.MustCompile(`(?i)\b(syntax error|parse error|unexpected token|invalid syntax)\b`)},
	{KindNetwork, regexp.MustCompile(`(?i)\b(connection refused|connection reset|dns|network (is )?unreachable|no route to host)\b`)},
	{KindResource, regexp.MustCompile(`(?i)\b(out of memory|oom|disk (space|full)|resource exhausted|too many open files)\b`)},
	{KindDependency, regexp.MustCompile(`(?i)\b(module not found|package .* not found|unresolved (import|dependency)|cannot find package)\b`)},
	{KindExecution, regexp.MustCompile(`(?i)\b(exit status [1-9]|panic:|traceback|exception|error:)\b`)},
}

// Classify maps tool output text to a failure Kind using defaultRules; text
// matching nothing is KindSuccess.
func Classify(output string) Kind {
	for _, rule := range defaultRules {
		if rule.re.MatchString(output) {
			return rule.kind
		}
	}
	return KindSuccess
}

// historyEntry is one record in the bounded per-classifier history.
type historyEntry struct {
	Tool string
	Kind Kind
}

const historyLimit = 20

// fallbackAdvice maps (tool, kind) to static guidance text injected into the
// prompt once a tool's consecutive-failure counter reaches the threshold.
// "any" is a wildcard tool name.
var fallbackAdvice = map[string]string{
	"any:timeout":     "The previous call timed out. Consider a narrower request or a longer-running alternative.",
	"any:not_found":   "The referenced resource was not found. Double-check the path or identifier before retrying.",
	"any:permission":  "The call was denied for lack of permission. Do not retry with the same credentials; ask for elevated access or an alternate approach.",
	"any:syntax":      "The previous call failed to parse. Re-check the argument syntax before retrying.",
	"any:network":     "A network error occurred. Retry once, then fall back to an offline approach if it recurs.",
	"any:resource":    "The system is resource constrained. Free resources or reduce batch size before retrying.",
	"any:dependency":  "A required dependency is missing. Verify it is installed before retrying the same call.",
	"any:execution":   "The call failed during execution. Inspect the error output before retrying blindly.",
}

const (
	consecutiveAdviceThreshold  = 2
	overallFailureAdviceThreshold = 5
	reflectionThreshold         = 2
)

// Tracker maintains classification history and per-tool consecutive
// counters across a task's lifetime, and decides what advice to surface on
// the next tool call.
type Tracker struct {
	mu sync.Mutex

	history []historyEntry

	consecutive map[string]int // tool -> consecutive non-success count
	breakers    map[string]*gobreaker.CircuitBreaker

	// formatErrorStreak tracks consecutive syntax-kind failures per tool,
	// driving the reflection prompt independent of the general advice table.
	formatErrorStreak map[string]int
}

// NewTracker constructs an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		consecutive:       make(map[string]int),
		breakers:          make(map[string]*gobreaker.CircuitBreaker),
		formatErrorStreak: make(map[string]int),
	}
}

// Record classifies a tool's output, updates history and counters, and
// returns the classified kind.
func (t *Tracker) Record(tool, output string) Kind {
	kind := Classify(output)

	t.mu.Lock()
	defer t.mu.Unlock()

	if kind == KindSuccess {
		t.consecutive[tool] = 0
		t.formatErrorStreak[tool] = 0
		return kind
	}

	t.history = append(t.history, historyEntry{Tool: tool, Kind: kind})
	if len(t.history) > historyLimit {
		t.history = t.history[len(t.history)-historyLimit:]
	}
	t.consecutive[tool]++
	t.breaker(tool).Execute(func() (any, error) { return nil, errFailure })

	if kind == KindSyntax {
		t.formatErrorStreak[tool]++
	} else {
		t.formatErrorStreak[tool] = 0
	}
	return kind
}

var errFailure = &classifierFailure{}

type classifierFailure struct{}

func (*classifierFailure) Error() string { return "tool invocation classified as failure" }

// breaker returns (lazily creating) the gobreaker.CircuitBreaker tracking
// tool's consecutive-failure state. The breaker's open/closed state is not
// itself consulted by the Tracker — PACE owns escalation — but its
// ReadyToTrip hook gives us a ready-made consecutive-failure observation
// point in the teacher pack's idiom.
func (t *Tracker) breaker(tool string) *gobreaker.CircuitBreaker {
	if b, ok := t.breakers[tool]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        tool,
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveAdviceThreshold
		},
	})
	t.breakers[tool] = b
	return b
}

// MaxConsecutive returns the highest per-tool consecutive-failure count
// across all tools, feeding PACE's `max_consecutive` metric.
func (t *Tracker) MaxConsecutive() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	max := 0
	for _, c := range t.consecutive {
		if c > max {
			max = c
		}
	}
	return max
}

// Advice returns the fallback advice strings to inject before the next tool
// call, and whether a reflection prompt should also be appended.
func (t *Tracker) Advice(nextTool string) (advice []string, reflect bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for tool, count := range t.consecutive {
		if count < consecutiveAdviceThreshold {
			continue
		}
		kind := t.lastKindLocked(tool)
		if kind == "" {
			continue
		}
		if msg, ok := fallbackAdvice["any:"+string(kind)]; ok {
			advice = append(advice, msg)
		}
	}

	if len(t.history) >= overallFailureAdviceThreshold {
		recent := t.history[len(t.history)-overallFailureAdviceThreshold:]
		allFail := true
		for _, e := range recent {
			if e.Kind == KindSuccess {
				allFail = false
				break
			}
		}
		if allFail {
			advice = append(advice, "Multiple recent tool calls have failed. Step back and reassess the approach before continuing.")
		}
	}

	if t.formatErrorStreak[nextTool] >= reflectionThreshold {
		reflect = true
	}
	return advice, reflect
}

func (t *Tracker) lastKindLocked(tool string) Kind {
	for i := len(t.history) - 1; i >= 0; i-- {
		if t.history[i].Tool == tool {
			return t.history[i].Kind
		}
	}
	return ""
}

// ReflectionPrompt is the static text appended when a tool's format-error
// streak crosses reflectionThreshold, per spec.md §4.5.2.
const ReflectionPrompt = "The last calls to this tool failed to parse correctly. Diagnose the cause of the failure before retrying."
