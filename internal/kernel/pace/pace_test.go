package pace_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenai/warden/internal/kernel/pace"
)

func compile(t *testing.T, src string) pace.Trigger {
	t.Helper()
	trig, err := pace.Compile(src)
	require.NoError(t, err)
	return trig
}

func TestTriggerSingleComparison(t *testing.T) {
	trig := compile(t, "consecutive_tool_failures >= 5")
	ok, err := trig.Eval(pace.Metrics{ConsecutiveToolFailures: 5})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = trig.Eval(pace.Metrics{ConsecutiveToolFailures: 4})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTriggerOrCombination(t *testing.T) {
	trig := compile(t, "consecutive_tool_failures >= 5 OR turns_without_progress > max * 1.5")
	m := pace.Metrics{TurnsWithoutProgress: 7, MaxTurnsWithoutProgress: 4}
	ok, err := trig.Eval(m)
	require.NoError(t, err)
	assert.True(t, ok, "7 > 4*1.5=6 should trigger")

	m2 := pace.Metrics{TurnsWithoutProgress: 5, MaxTurnsWithoutProgress: 4}
	ok, err = trig.Eval(m2)
	require.NoError(t, err)
	assert.False(t, ok, "5 > 6 is false and no other term holds")
}

func TestTriggerContextFill(t *testing.T) {
	trig := compile(t, "context_fill > 0.9")
	ok, err := trig.Eval(pace.Metrics{ContextFillPct: 0.95})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTriggerEmptyNeverFires(t *testing.T) {
	trig := compile(t, "")
	assert.True(t, trig.IsZero())
	ok, err := trig.Eval(pace.Metrics{ConsecutiveToolFailures: 99})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompileRejectsMalformed(t *testing.T) {
	_, err := pace.Compile("consecutive_tool_failures >=")
	assert.Error(t, err)

	_, err = pace.Compile("not_a_known_op ~~ 3")
	assert.Error(t, err)
}

func TestEvaluateOrderEmergencyFirst(t *testing.T) {
	plan := pace.Plan{
		Contingent: compile(t, "consecutive_tool_failures >= 1"),
		EmergencyUnrecoverableErrorMaxConsecutive: 8,
	}
	level, err := pace.Evaluate(plan, pace.Metrics{ConsecutiveToolFailures: 8}, true)
	require.NoError(t, err)
	assert.Equal(t, pace.Emergency, level)
}

func TestEvaluateTurnsWithoutProgressEmergency(t *testing.T) {
	plan := pace.Plan{}
	m := pace.Metrics{TurnsWithoutProgress: 7, MaxTurnsWithoutProgress: 4}
	level, err := pace.Evaluate(plan, m, false)
	require.NoError(t, err)
	assert.Equal(t, pace.Emergency, level, "7 > 1.5*4=6")
}

func TestFSMTicksAndReportsTransitions(t *testing.T) {
	plan := pace.Plan{
		Contingent: compile(t, "consecutive_tool_failures >= 3"),
	}
	fsm := pace.NewFSM(plan)
	assert.Equal(t, pace.Primary, fsm.Current())

	level, transition, err := fsm.Tick(pace.Metrics{ConsecutiveToolFailures: 1}, false)
	require.NoError(t, err)
	assert.Equal(t, pace.Primary, level)
	assert.Nil(t, transition)

	level, transition, err = fsm.Tick(pace.Metrics{ConsecutiveToolFailures: 3}, false)
	require.NoError(t, err)
	assert.Equal(t, pace.Contingent, level)
	require.NotNil(t, transition)
	assert.True(t, transition.Escalated())

	level, transition, err = fsm.Tick(pace.Metrics{ConsecutiveToolFailures: 0}, false)
	require.NoError(t, err)
	assert.Equal(t, pace.Primary, level)
	require.NotNil(t, transition)
	assert.False(t, transition.Escalated())
}
