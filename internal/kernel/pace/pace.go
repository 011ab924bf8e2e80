package pace

import "fmt"

// Level is a position on the escalation ladder, ordered Primary < Alternate
// < Contingent < Emergency.
type Level string

const (
	Primary    Level = "primary"
	Alternate  Level = "alternate"
	Contingent Level = "contingent"
	Emergency  Level = "emergency"
)

// rank orders levels for monotonicity-free comparisons; de-escalation is
// permitted (spec.md §8 scenario 3: "level monotonicity is NOT assumed").
var rank = map[Level]int{Primary: 0, Alternate: 1, Contingent: 2, Emergency: 3}

// Rank returns l's position on the escalation ladder, Primary=0.
func (l Level) Rank() int { return rank[l] }

// Plan holds the compiled per-level triggers a role profile declares, plus
// the emergency-specific hard thresholds spec.md §4.5.1 spells out
// separately from the generic DSL.
type Plan struct {
	Alternate  Trigger
	Contingent Trigger
	// EmergencyUnrecoverableErrorMaxConsecutive is the "max_consecutive >= 8"
	// unrecoverable-error threshold; 0 disables this leg of the emergency
	// check.
	EmergencyUnrecoverableErrorMaxConsecutive int
	// EmergencyTurnsWithoutProgressMultiplier is the "1.5" in
	// "turns_without_progress > 1.5 × max_turns".
	EmergencyTurnsWithoutProgressMultiplier float64
}

// DefaultEmergencyMultiplier is spec.md §4.5.1's 1.5× factor.
const DefaultEmergencyMultiplier = 1.5

// Transition records one PACE level change, used to drive the "always emit
// SALUTE on transition" rule and kernel logging.
type Transition struct {
	From, To Level
	Cause    string
}

// Escalated reports whether the transition moved to a higher-ranked level.
func (t Transition) Escalated() bool { return t.To.Rank() > t.From.Rank() }

// Evaluate implements the §4.5.1 evaluation order: emergency, then
// contingent, then alternate, else primary. unrecoverableError reports
// whether the most recent tool failure was classified unrecoverable (used
// for the emergency trigger's first leg).
func Evaluate(plan Plan, m Metrics, unrecoverableError bool) (Level, error) {
	if plan.EmergencyUnrecoverableErrorMaxConsecutive > 0 &&
		unrecoverableError && m.ConsecutiveToolFailures >= plan.EmergencyUnrecoverableErrorMaxConsecutive {
		return Emergency, nil
	}
	mult := plan.EmergencyTurnsWithoutProgressMultiplier
	if mult == 0 {
		mult = DefaultEmergencyMultiplier
	}
	if float64(m.TurnsWithoutProgress) > mult*float64(m.MaxTurnsWithoutProgress) {
		return Emergency, nil
	}

	if !plan.Contingent.IsZero() {
		ok, err := plan.Contingent.Eval(m)
		if err != nil {
			return "", fmt.Errorf("evaluating contingent trigger: %w", err)
		}
		if ok {
			return Contingent, nil
		}
	}

	if !plan.Alternate.IsZero() {
		ok, err := plan.Alternate.Eval(m)
		if err != nil {
			return "", fmt.Errorf("evaluating alternate trigger: %w", err)
		}
		if ok {
			return Alternate, nil
		}
	}

	return Primary, nil
}

// FSM tracks the current PACE level for a single task/conversation across
// ticks, emitting a Transition whenever the level changes.
type FSM struct {
	plan    Plan
	current Level
}

// NewFSM constructs an FSM starting at Primary.
func NewFSM(plan Plan) *FSM {
	return &FSM{plan: plan, current: Primary}
}

// Current returns the FSM's current level.
func (f *FSM) Current() Level { return f.current }

// Tick evaluates the plan against m and advances the FSM, returning the new
// level and, if it changed, a non-nil Transition.
func (f *FSM) Tick(m Metrics, unrecoverableError bool) (Level, *Transition, error) {
	next, err := Evaluate(f.plan, m, unrecoverableError)
	if err != nil {
		return f.current, nil, err
	}
	if next == f.current {
		return f.current, nil, nil
	}
	cause := "trigger evaluated"
	transition := &Transition{From: f.current, To: next, Cause: cause}
	if transition.Escalated() {
		transition.Cause = "escalated: " + string(next)
	} else {
		transition.Cause = "restored: " + string(next)
	}
	f.current = next
	return next, transition, nil
}
