package tui

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/schmitthub/envrepair/internal/iostreams"
)

func newTestRepairRenderer() *repairDashRenderer {
	return newRepairDashRenderer(RepairDashboardConfig{RunID: "run-abc123", Repo: "myrepo"})
}

func TestRepairDash_ProcessEvent_Start(t *testing.T) {
	r := newTestRepairRenderer()
	r.ProcessEvent(RepairDashEvent{
		Kind:    RepairDashEventStart,
		RunID:   "run-new",
		Repo:    "otherrepo",
		MaxTick: 200,
	})

	assert.Equal(t, "run-new", r.runID)
	assert.Equal(t, "otherrepo", r.repo)
	assert.Equal(t, 200, r.maxTick)
}

func TestRepairDash_ProcessEvent_TickEnd(t *testing.T) {
	r := newTestRepairRenderer()
	r.ProcessEvent(RepairDashEvent{
		Kind:              RepairDashEventTickEnd,
		Tick:              1,
		Phase:             "execute_test",
		InstallerOK:       true,
		TestOK:            true,
		GlobalTicksLeft:   199,
		RewriteRoundsLeft: 10,
		TestRoundsLeft:    19,
		TickDuration:      5 * time.Second,
	})

	assert.Equal(t, 1, r.currentTick)
	assert.True(t, r.installerOK)
	assert.True(t, r.testOK)
	assert.Equal(t, 199, r.globalTicksLeft)
	assert.Equal(t, 10, r.rewriteRoundsLeft)
	assert.Equal(t, 19, r.testRoundsLeft)

	if assert.Len(t, r.activity, 1) {
		assert.Equal(t, "OK", r.activity[0].status)
		assert.Equal(t, 5*time.Second, r.activity[0].duration)
	}
}

func TestRepairDash_ProcessEvent_TickEndRetrying(t *testing.T) {
	r := newTestRepairRenderer()
	r.ProcessEvent(RepairDashEvent{Kind: RepairDashEventTickEnd, Tick: 1, Phase: "generate_rewrite", InstallerOK: false, TestOK: false})

	assert.Equal(t, "RETRYING", r.activity[0].status)
}

func TestRepairDash_ProcessEvent_Complete(t *testing.T) {
	r := newTestRepairRenderer()
	r.ProcessEvent(RepairDashEvent{Kind: RepairDashEventComplete, ExitReason: "success"})

	assert.Equal(t, "success", r.exitReason)
	assert.Nil(t, r.exitError)
}

func TestRepairDash_ProcessEvent_CompleteWithError(t *testing.T) {
	r := newTestRepairRenderer()
	testErr := errors.New("budget exhausted")
	r.ProcessEvent(RepairDashEvent{Kind: RepairDashEventComplete, ExitReason: "budget exhausted", Error: testErr})

	assert.Equal(t, "budget exhausted", r.exitReason)
	assert.Equal(t, testErr, r.exitError)
}

func TestRepairDash_ProcessEvent_IgnoresForeignEventType(t *testing.T) {
	r := newTestRepairRenderer()
	r.ProcessEvent("not a RepairDashEvent")
	assert.Equal(t, 0, r.currentTick)
}

func TestRepairDash_ActivityRingBuffer(t *testing.T) {
	r := newTestRepairRenderer()
	for i := 1; i <= maxRepairActivityEntries+2; i++ {
		r.ProcessEvent(RepairDashEvent{Kind: RepairDashEventTickEnd, Tick: i, Phase: "execute_test", InstallerOK: true, TestOK: true})
	}

	assert.Len(t, r.activity, maxRepairActivityEntries)
	assert.Equal(t, 3, r.activity[0].tick)
	assert.Equal(t, maxRepairActivityEntries+2, r.activity[maxRepairActivityEntries-1].tick)
}

func TestRepairDash_View_InitialState(t *testing.T) {
	r := newTestRepairRenderer()
	cs := iostreams.NewTestIOStreams().IOStreams.ColorScheme()
	view := r.View(cs, 80)

	assert.Contains(t, view, "Repair Run")
	assert.Contains(t, view, "run-abc123")
	assert.Contains(t, view, "myrepo")
	assert.Contains(t, view, "Tick: 0/0")
	assert.Contains(t, view, "Status")
	assert.Contains(t, view, "Activity")
	assert.Contains(t, view, "Waiting for first tick")
}

func TestRepairDash_View_WithActivity(t *testing.T) {
	r := newTestRepairRenderer()
	cs := iostreams.NewTestIOStreams().IOStreams.ColorScheme()

	r.ProcessEvent(RepairDashEvent{Kind: RepairDashEventStart, RunID: "run-abc123", Repo: "myrepo", MaxTick: 200})
	r.ProcessEvent(RepairDashEvent{Kind: RepairDashEventTickEnd, Tick: 1, Phase: "execute_script", InstallerOK: true, TickDuration: 2 * time.Second})
	r.ProcessEvent(RepairDashEvent{Kind: RepairDashEventTickEnd, Tick: 2, Phase: "select_test", InstallerOK: true, TestOK: true})

	view := r.View(cs, 80)

	assert.Contains(t, view, "Tick: 2/200")
	assert.Contains(t, view, "[Tick 2] select_test: OK")
	assert.Contains(t, view, "[Tick 1] execute_script: RETRYING (2s)")
}

func TestRepairDash_View_Complete(t *testing.T) {
	r := newTestRepairRenderer()
	cs := iostreams.NewTestIOStreams().IOStreams.ColorScheme()
	r.ProcessEvent(RepairDashEvent{Kind: RepairDashEventComplete, ExitReason: "success"})

	view := r.View(cs, 80)
	assert.Contains(t, view, "Finished: success")
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m 30s"},
		{5*time.Minute + 32*time.Second, "5m 32s"},
		{1*time.Hour + 5*time.Minute, "1h 5m"},
		{-1 * time.Second, "0s"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatElapsed(tt.d))
		})
	}
}
