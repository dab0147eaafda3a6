package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/lowaak/vitruvian-monitor/internal/autostop"
	"github.com/lowaak/vitruvian-monitor/internal/calibration"
	"github.com/lowaak/vitruvian-monitor/internal/handles"
	"github.com/lowaak/vitruvian-monitor/internal/repcounter"
	"github.com/lowaak/vitruvian-monitor/internal/session"
)

const barWidth = 20

// progressBar renders fraction (0..1) as a fixed-width bar
func progressBar(fraction float64) string {
	fraction = min(max(fraction, 0), 1)
	filled := int(fraction*barWidth + 0.5)
	return "[green]" + strings.Repeat("█", filled) + "[gray]" + strings.Repeat("░", barWidth-filled) + "[white]"
}

func formatMetric(m session.Metric, ok bool) string {
	if !ok {
		return "\n\n  [gray]Waiting for data...[white]"
	}
	var b strings.Builder
	b.WriteString("\n")
	fmt.Fprintf(&b, "  [gray]Position:[white]  A [yellow]%5d[white]   B [yellow]%5d[white]\n", m.PositionA, m.PositionB)
	fmt.Fprintf(&b, "  [gray]Load:[white]      A [yellow]%5.1f[white]   B [yellow]%5.1f[white] kg\n", m.LoadA, m.LoadB)
	fmt.Fprintf(&b, "  [gray]Velocity:[white]  A [yellow]%5.1f[white]   B [yellow]%5.1f[white]\n", m.VelocityA, m.VelocityB)
	if m.HasStatus && m.Status != 0 {
		fmt.Fprintf(&b, "\n  [red]Status:[white] %s\n", m.Status)
	}
	if m.Rejected.Any() {
		b.WriteString("\n  [red]Spike rejected[white]\n")
	}
	return b.String()
}

func formatRepCount(c repcounter.RepCount, cfg repcounter.Config) string {
	var b strings.Builder
	b.WriteString("\n")
	if cfg.JustLift {
		b.WriteString("  [cyan]Just Lift[white]\n\n")
	}
	fmt.Fprintf(&b, "  [gray]Warmup:[white]  [yellow]%d[white] / %d", c.WarmupReps, cfg.WarmupTarget)
	if c.IsWarmupComplete {
		b.WriteString("  [green]done[white]")
	}
	b.WriteString("\n")

	target := "-"
	if cfg.WorkingTarget > 0 && !cfg.AMRAP && !cfg.JustLift {
		target = fmt.Sprintf("%d", cfg.WorkingTarget)
	}
	fmt.Fprintf(&b, "  [gray]Working:[white] [yellow]%d[white] / %s\n\n", c.WorkingReps, target)

	if c.HasPendingRep {
		fmt.Fprintf(&b, "  Rep %d  %s\n", c.WorkingReps+1, progressBar(c.PendingRepProgress))
	}
	return b.String()
}

func formatBound(b calibration.Bound) string {
	if !b.Valid {
		return "  -  "
	}
	return fmt.Sprintf("%5d", b.Value)
}

func formatRanges(r calibration.RepRanges) string {
	var b strings.Builder
	b.WriteString("\n")
	fmt.Fprintf(&b, "  [gray]Cable A:[white] %s .. %s  (%d)\n", formatBound(r.MinPosA), formatBound(r.MaxPosA), r.RangeA)
	fmt.Fprintf(&b, "  [gray]Cable B:[white] %s .. %s  (%d)\n", formatBound(r.MinPosB), formatBound(r.MaxPosB), r.RangeB)
	return b.String()
}

func formatHandles(h handles.HandleState) string {
	dot := func(held bool) string {
		if held {
			return "[green]●[white]"
		}
		return "[gray]○[white]"
	}
	return fmt.Sprintf("  [gray]Handles:[white] L %s  R %s\n", dot(h.LeftDetected), dot(h.RightDetected))
}

func formatAutoStop(s autostop.State) string {
	if !s.Active {
		return ""
	}
	return fmt.Sprintf("  [red]Auto-stop in %ds[white]  %s\n", s.SecondsRemaining, progressBar(s.Progress))
}

func formatStatus(st session.Status, h handles.HandleState, a autostop.State) string {
	var b strings.Builder
	b.WriteString("\n")
	switch st.State {
	case session.StateIdle:
		b.WriteString("  [gray]Idle[white]\n\n")
		if st.AutoStartIn > 0 {
			fmt.Fprintf(&b, "  [yellow]Starting in %d...[white]\n\n", st.AutoStartIn)
		} else {
			b.WriteString("  [yellow]Space[white] Start\n\n")
		}
	case session.StateCountdown:
		fmt.Fprintf(&b, "  [yellow]Get ready: %d[white]\n\n", st.Countdown)
	case session.StateActive:
		b.WriteString("  [green]● Active[white]\n\n")
		b.WriteString(formatAutoStop(a))
	case session.StateSetSummary:
		b.WriteString("  [cyan]Set complete[white]\n\n")
		if st.Summary != nil {
			b.WriteString(formatSummary(*st.Summary))
		}
		if st.AutoStartIn > 0 {
			fmt.Fprintf(&b, "\n  [yellow]Starting in %d...[white]\n", st.AutoStartIn)
		}
	}
	b.WriteString("\n")
	b.WriteString(formatHandles(h))
	b.WriteString("\n  [gray]─────────────────────────[white]\n")
	b.WriteString("  [yellow]Space[white] Start  |  [yellow]X[white] Stop  |  [yellow]N[white] Next set  |  [yellow]Esc[white] Quit\n")
	return b.String()
}

func formatSummary(s session.SetSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  [gray]Reps:[white]     %d warmup, %d working\n", s.WarmupReps, s.WorkingReps)
	fmt.Fprintf(&b, "  [gray]Duration:[white] %s\n", formatDurationMMSS(s.Duration))
	fmt.Fprintf(&b, "  [gray]Peak:[white]     %.1f kg/cable\n", s.PeakLoadKg)
	fmt.Fprintf(&b, "  [gray]Average:[white]  %.1f kg/cable\n", s.AverageLoadKg)
	fmt.Fprintf(&b, "  [gray]Ended:[white]    %s\n", s.Reason)
	return b.String()
}

// formatDurationMMSS formats a duration as MM:SS
func formatDurationMMSS(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", totalSeconds/60, totalSeconds%60)
}
