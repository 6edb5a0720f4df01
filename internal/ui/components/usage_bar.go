// Package components provides reusable UI components.
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/claude-usage-monitor/internal/logger"
	"github.com/j-veylop/claude-usage-monitor/internal/ui/styles"
)

// Gradient for the reset bar, from just reset to about to reset.
const (
	resetBarFrom = "#6c5ce7"
	resetBarTo   = "#ffd93d"
)

// UsageBar renders how much of a quota window is used. The fill colour
// follows styles.UsageColor.
type UsageBar struct {
	progress progress.Model
}

// NewUsageBar creates a usage bar of the given bar width.
func NewUsageBar(width int) UsageBar {
	p := progress.New(
		progress.WithSolidFill(string(styles.Success)),
		progress.WithWidth(max(width, 10)),
		progress.WithoutPercentage(),
	)
	p.Full = '█'
	p.Empty = '░'
	p.EmptyColor = string(styles.Subtle)

	return UsageBar{progress: p}
}

// SetWidth sets the bar width, excluding label and percentage.
func (u *UsageBar) SetWidth(width int) {
	u.progress.Width = max(width, 10)
}

// Width returns the bar width.
func (u UsageBar) Width() int {
	return u.progress.Width
}

// View renders label, bar and percentage on one line. shown is the
// animated fill in percent; percent is the value printed and used for
// the colour.
func (u UsageBar) View(label string, shown float64, percent int) string {
	u.progress.FullColor = string(styles.UsageColor(percent))
	bar := u.progress.ViewAs(clampUnit(shown / 100))

	labelStr := styles.ProgressLabelStyle.Render(label)
	percentStr := styles.GetUsageStyle(percent).
		Width(6).
		Align(lipgloss.Right).
		Render(fmt.Sprintf("%d%%", percent))

	return lipgloss.JoinHorizontal(lipgloss.Center, labelStr, bar, " ", percentStr)
}

// RenderUsageBar renders only the bar characters, coloured by percent.
func RenderUsageBar(percent float64, width int) string {
	if width < 1 {
		return ""
	}

	filled := int(float64(width) * clampUnit(percent/100))
	fill := lipgloss.NewStyle().Foreground(styles.UsageColor(int(percent)))
	empty := lipgloss.NewStyle().Foreground(styles.Subtle)

	return fill.Render(strings.Repeat("█", filled)) + empty.Render(strings.Repeat("░", width-filled))
}

// RenderResetBar renders the elapsed part of a window as a gradient that
// warms up as the reset approaches. elapsed is a fraction in [0, 1].
func RenderResetBar(elapsed float64, width int) string {
	if width < 1 {
		return ""
	}

	filled := int(float64(width) * clampUnit(elapsed))

	var b strings.Builder
	for i := 0; i < width; i++ {
		if i < filled {
			t := float64(i) / float64(max(1, width-1))
			color := interpolateColor(resetBarFrom, resetBarTo, t)
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render("▬"))
		} else {
			b.WriteString(lipgloss.NewStyle().Foreground(styles.BgLight).Render("▬"))
		}
	}
	return b.String()
}

// UsageBarLoading renders a shimmering placeholder bar for frame.
func UsageBarLoading(label string, width int, frame int) string {
	const cycle = 120

	barWidth := max(width-lipgloss.Width(styles.ProgressLabelStyle.Render(""))-8, 10)

	t := float64(frame%cycle) / float64(cycle)
	p := t * 2
	if t >= 0.5 {
		p = (1 - t) * 2
	}
	eased := p * p * (3 - 2*p)
	shimmerPos := int(eased * float64(barWidth))

	var b strings.Builder
	for i := 0; i < barWidth; i++ {
		dist := shimmerPos - i
		if dist < 0 {
			dist = -dist
		}

		switch {
		case dist < 3:
			b.WriteString(lipgloss.NewStyle().Foreground(styles.Primary).Render("▓"))
		case dist < 5:
			b.WriteString(lipgloss.NewStyle().Foreground(styles.TextSecondary).Render("▒"))
		default:
			b.WriteString(lipgloss.NewStyle().Foreground(styles.BgLight).Render("░"))
		}
	}

	dots := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	dot := lipgloss.NewStyle().
		Width(6).
		Align(lipgloss.Right).
		Foreground(styles.Primary).
		Render(dots[(frame/2)%len(dots)])

	return lipgloss.JoinHorizontal(lipgloss.Center, styles.ProgressLabelStyle.Render(label), b.String(), " ", dot)
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func interpolateColor(fromHex, toHex string, t float64) string {
	from := hexToRGB(fromHex)
	to := hexToRGB(toHex)

	r := int(float64(from[0]) + t*(float64(to[0])-float64(from[0])))
	g := int(float64(from[1]) + t*(float64(to[1])-float64(from[1])))
	b := int(float64(from[2]) + t*(float64(to[2])-float64(from[2])))

	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

func hexToRGB(hex string) [3]int {
	hex = strings.TrimPrefix(hex, "#")
	var r, g, b int
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		logger.Error("failed to parse hex color", "hex", hex, "error", err)
		return [3]int{0, 0, 0}
	}
	return [3]int{r, g, b}
}
