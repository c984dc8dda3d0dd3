package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/lowaak/smart-trainer/training-app/internal/workout"
)

// renderTimer formats the timer panel using tview color tags
func renderTimer(state TimerState) string {
	var b strings.Builder
	b.WriteString("\n")

	switch state.Status {
	case TimerStatusIdle:
		b.WriteString("  [gray]No training loaded[white]\n\n")
		b.WriteString("  Start one with [yellow]training-timer run <workout-id>[white]\n")
		return b.String()

	case TimerStatusLogged:
		b.WriteString("  [green]Training logged[white]\n\n")
		fmt.Fprintf(&b, "  [gray]Duration:[white] %s\n", formatClock(state.TotalElapsed))
		if state.Logged != nil {
			fmt.Fprintf(&b, "  [gray]Steps:[white]    %d\n", len(state.Logged.Steps))
		}
		b.WriteString("\n  [yellow]Q[white] Quit\n")
		return b.String()
	}

	fmt.Fprintf(&b, "  [yellow]%s[white]", state.WorkoutName)
	switch state.Status {
	case TimerStatusReady:
		b.WriteString(" [gray](READY)[white]")
	case TimerStatusPaused:
		b.WriteString(" [gray](PAUSED)[white]")
	case TimerStatusFinishing:
		b.WriteString(" [gray](SAVING)[white]")
	case TimerStatusUnlogged:
		b.WriteString(" [red](NOT SAVED)[white]")
	}
	if state.Restored {
		b.WriteString(" [gray]restored[white]")
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "  [gray]Total:[white] %s\n\n", formatClock(state.TotalElapsed))

	if state.HasStep {
		st := state.Step
		fmt.Fprintf(&b, "  [cyan]Step[white] %d/%d  [yellow]%s[white]\n", state.StepIndex+1, state.StepCount, stepLabel(&st))
		if st.Kind == workout.StepKindSet && st.Reps > 0 {
			fmt.Fprintf(&b, "  [gray]Reps:[white] %d\n", st.Reps)
		}
		if st.TargetMillis() > 0 {
			fmt.Fprintf(&b, "  [gray]Time:[white] %s / %s", formatClock(state.StepElapsed), formatClock(time.Duration(st.TargetMillis())*time.Millisecond))
			fmt.Fprintf(&b, "  [gray]left[white] [yellow]%s[white]\n", formatClock(state.StepRemaining))
		} else {
			fmt.Fprintf(&b, "  [gray]Time:[white] %s [gray](open)[white]\n", formatClock(state.StepElapsed))
		}
		if st.AutoAdvanceEligible() {
			b.WriteString("  [gray]advances automatically[white]\n")
		}

		if state.NextName != "" {
			fmt.Fprintf(&b, "\n  [gray]Next:[white] %s\n", state.NextName)
		} else {
			b.WriteString("\n  [gray]Next:[white] [green]Finish![white]\n")
		}
	}

	b.WriteString("\n  [gray]" + strings.Repeat("-", 28) + "[white]\n")
	b.WriteString("  " + renderKeys(state.Status) + "\n")
	return b.String()
}

func renderKeys(status TimerStatus) string {
	switch status {
	case TimerStatusRunning:
		return "[yellow]Space[white] Pause  [yellow]N[white] Next  [yellow]F[white] Finish  [yellow]Q[white] Quit"
	case TimerStatusReady:
		return "[yellow]Space[white] Start  [yellow]X[white] Discard  [yellow]Q[white] Quit"
	case TimerStatusUnlogged:
		return "[yellow]F[white] Retry save  [yellow]X[white] Discard  [yellow]Q[white] Quit"
	case TimerStatusFinishing:
		return "[yellow]Q[white] Quit"
	default:
		return "[yellow]Space[white] Resume  [yellow]N[white] Next  [yellow]F[white] Finish  [yellow]X[white] Discard  [yellow]Q[white] Quit"
	}
}

// formatClock formats a duration as MM:SS, or H:MM:SS past an hour
func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	totalSeconds := int(d / time.Second)
	hours := totalSeconds / 3600
	minutes := totalSeconds % 3600 / 60
	seconds := totalSeconds % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
