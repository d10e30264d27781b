package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/schmitthub/envrepair/internal/iostreams"
	"github.com/schmitthub/envrepair/internal/text"
)

// ---------------------------------------------------------------------------
// Public types
// ---------------------------------------------------------------------------

// RepairDashEventKind discriminates dashboard events sent by a run's
// internal/orchestrator.Entry as it drives repair.Machine.
type RepairDashEventKind int

const (
	// RepairDashEventStart is sent once when the run begins.
	RepairDashEventStart RepairDashEventKind = iota

	// RepairDashEventTickEnd is sent when a tick's Recheck has run.
	RepairDashEventTickEnd

	// RepairDashEventComplete is sent when the run terminates.
	RepairDashEventComplete
)

// String returns a human-readable name for the event kind.
func (k RepairDashEventKind) String() string {
	switch k {
	case RepairDashEventStart:
		return "Start"
	case RepairDashEventTickEnd:
		return "TickEnd"
	case RepairDashEventComplete:
		return "Complete"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// RepairDashEvent is sent on the channel to update the dashboard.
type RepairDashEvent struct {
	Kind    RepairDashEventKind
	Tick    int
	MaxTick int
	RunID   string
	Repo    string

	// Phase names the decision RepairStateMachine.Router made this tick:
	// "execute_script", "generate_rewrite", "select_test", "execute_test".
	Phase string

	// Status (populated on TickEnd, from State.Check)
	InstallerOK bool
	TestOK      bool

	// Budget (populated on TickEnd, from State.Budget)
	GlobalTicksLeft   int
	RewriteRoundsLeft int
	TestRoundsLeft    int

	// TickDuration is how long the tick took, stamped by the sender on
	// TickEnd.
	TickDuration time.Duration

	// Completion
	ExitReason string
	Error      error
}

// RepairDashboardConfig configures the dashboard.
type RepairDashboardConfig struct {
	RunID string
	Repo  string
}

// ---------------------------------------------------------------------------
// Activity log entry
// ---------------------------------------------------------------------------

type repairActivityEntry struct {
	tick     int
	phase    string
	status   string // "OK" or "RETRYING"
	duration time.Duration
	isError  bool
}

const maxRepairActivityEntries = 10

// ---------------------------------------------------------------------------
// DashboardRenderer implementation
// ---------------------------------------------------------------------------

// repairDashRenderer implements DashboardRenderer for a repair run,
// rendered through the generic channel-driven dashboard in dashboard.go.
type repairDashRenderer struct {
	cfg RepairDashboardConfig

	currentTick int
	maxTick     int
	runID       string
	repo        string
	startTime   time.Time

	phase       string
	installerOK bool
	testOK      bool

	globalTicksLeft   int
	rewriteRoundsLeft int
	testRoundsLeft    int

	activity []repairActivityEntry

	exitReason string
	exitError  error
}

func newRepairDashRenderer(cfg RepairDashboardConfig) *repairDashRenderer {
	return &repairDashRenderer{
		cfg:       cfg,
		runID:     cfg.RunID,
		repo:      cfg.Repo,
		startTime: time.Now(),
	}
}

// ProcessEvent implements DashboardRenderer.
func (r *repairDashRenderer) ProcessEvent(ev any) {
	e, ok := ev.(RepairDashEvent)
	if !ok {
		return
	}

	switch e.Kind {
	case RepairDashEventStart:
		r.runID = e.RunID
		r.repo = e.Repo
		r.maxTick = e.MaxTick

	case RepairDashEventTickEnd:
		r.currentTick = e.Tick
		r.phase = e.Phase
		r.installerOK = e.InstallerOK
		r.testOK = e.TestOK
		r.globalTicksLeft = e.GlobalTicksLeft
		r.rewriteRoundsLeft = e.RewriteRoundsLeft
		r.testRoundsLeft = e.TestRoundsLeft

		status := "OK"
		if !e.InstallerOK || !e.TestOK {
			status = "RETRYING"
		}
		r.addActivity(repairActivityEntry{
			tick:     e.Tick,
			phase:    e.Phase,
			status:   status,
			duration: e.TickDuration,
			isError:  e.Error != nil,
		})

	case RepairDashEventComplete:
		r.exitReason = e.ExitReason
		r.exitError = e.Error
	}
}

func (r *repairDashRenderer) addActivity(entry repairActivityEntry) {
	if len(r.activity) >= maxRepairActivityEntries {
		r.activity = r.activity[1:]
	}
	r.activity = append(r.activity, entry)
}

// View implements DashboardRenderer.
func (r *repairDashRenderer) View(cs *iostreams.ColorScheme, width int) string {
	var buf strings.Builder

	renderRepairDashHeader(&buf, cs, r.runID, width)

	elapsed := time.Since(r.startTime)
	fmt.Fprintf(&buf, "  Repo: %s    Elapsed: %s\n", r.repo, formatElapsed(elapsed))

	tickStr := fmt.Sprintf("%d/%d", r.currentTick, r.maxTick)
	budgetStr := fmt.Sprintf("rewrite %d  test %d", r.rewriteRoundsLeft, r.testRoundsLeft)
	fmt.Fprintf(&buf, "  Tick: %s             Budget left: %s\n", tickStr, budgetStr)
	buf.WriteByte('\n')

	renderRepairDashStatusSection(&buf, cs, r.phase, r.installerOK, r.testOK, width)
	buf.WriteByte('\n')

	renderRepairDashActivitySection(&buf, cs, r.activity, width)
	buf.WriteByte('\n')

	if r.exitReason != "" {
		line := "  Finished: " + r.exitReason
		if r.exitError != nil {
			line = cs.Red(line)
		} else {
			line = cs.Green(line)
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	return buf.String()
}

// ---------------------------------------------------------------------------
// Render helpers
// ---------------------------------------------------------------------------

func renderRepairDashHeader(buf *strings.Builder, cs *iostreams.ColorScheme, runID string, width int) {
	title := "  ━━ Repair Run "
	subtitle := fmt.Sprintf(" %s ━━", runID)

	titleRendered := cs.Bold(cs.Cyan(title))
	subtitleRendered := cs.Muted(subtitle)

	titleWidth := text.CountVisibleWidth(titleRendered)
	subtitleWidth := text.CountVisibleWidth(subtitleRendered)
	fillWidth := width - titleWidth - subtitleWidth
	if fillWidth < 3 {
		fillWidth = 3
	}
	fill := cs.Muted(strings.Repeat("━", fillWidth))

	buf.WriteString(titleRendered)
	buf.WriteString(fill)
	buf.WriteString(subtitleRendered)
	buf.WriteByte('\n')
}

func renderRepairDashStatusSection(buf *strings.Builder, cs *iostreams.ColorScheme, phase string, installerOK, testOK bool, width int) {
	divLabel := " Status "
	divFill := width - text.CountVisibleWidth(divLabel) - 4
	if divFill < 3 {
		divFill = 3
	}
	buf.WriteString("  ")
	buf.WriteString(cs.Muted("───" + divLabel + strings.Repeat("─", divFill)))
	buf.WriteByte('\n')

	parts := []string{"  " + formatPhaseText(cs, phase)}
	parts = append(parts, fmt.Sprintf("Installer: %s", formatOKText(cs, installerOK)))
	parts = append(parts, fmt.Sprintf("Tests: %s", formatOKText(cs, testOK)))
	buf.WriteString(strings.Join(parts, "  "))
	buf.WriteByte('\n')
}

func renderRepairDashActivitySection(buf *strings.Builder, cs *iostreams.ColorScheme, activity []repairActivityEntry, width int) {
	divLabel := " Activity "
	divFill := width - text.CountVisibleWidth(divLabel) - 4
	if divFill < 3 {
		divFill = 3
	}
	buf.WriteString("  ")
	buf.WriteString(cs.Muted("───" + divLabel + strings.Repeat("─", divFill)))
	buf.WriteByte('\n')

	if len(activity) == 0 {
		buf.WriteString(cs.Muted("  Waiting for first tick..."))
		buf.WriteByte('\n')
		return
	}

	for i := len(activity) - 1; i >= 0; i-- {
		renderRepairActivityEntry(buf, cs, activity[i])
	}
}

func renderRepairActivityEntry(buf *strings.Builder, cs *iostreams.ColorScheme, entry repairActivityEntry) {
	icon := cs.Green("✓")
	if entry.isError {
		icon = cs.Red("✗")
	}

	durStr := ""
	if entry.duration > 0 {
		durStr = fmt.Sprintf(" (%s)", formatElapsed(entry.duration))
	}

	fmt.Fprintf(buf, "  %s [Tick %d] %s: %s%s\n", icon, entry.tick, entry.phase, entry.status, durStr)
}

func formatPhaseText(cs *iostreams.ColorScheme, phase string) string {
	if phase == "" {
		return cs.Muted("PENDING")
	}
	return phase
}

func formatOKText(cs *iostreams.ColorScheme, ok bool) string {
	if ok {
		return cs.Green("OK")
	}
	return cs.Yellow("pending")
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d.Seconds())
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		m := secs / 60
		s := secs % 60
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		h := secs / 3600
		m := (secs % 3600) / 60
		return fmt.Sprintf("%dh %dm", h, m)
	}
}

// ---------------------------------------------------------------------------
// Entry point
// ---------------------------------------------------------------------------

// RunRepairDashboard runs the repair-run dashboard, consuming events from ch
// until the channel is closed. Returns when the BubbleTea program exits.
func RunRepairDashboard(ios *iostreams.IOStreams, cfg RepairDashboardConfig, ch <-chan RepairDashEvent) DashboardResult {
	renderer := newRepairDashRenderer(cfg)
	bridged := make(chan any)
	go func() {
		defer close(bridged)
		for ev := range ch {
			bridged <- ev
		}
	}()

	return RunDashboard(ios, renderer, DashboardConfig{HelpText: "q detach  ctrl+c stop"}, bridged)
}
