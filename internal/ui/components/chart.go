package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/j-veylop/claude-usage-monitor/internal/ui/styles"
)

// sparkChars are the sparkline glyphs from low to high.
var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// RenderTrendChart plots usage percentages on a fixed 0-100 axis.
func RenderTrendChart(data []float64, width, height int, caption string) string {
	if len(data) < 2 {
		return styles.HelpStyle.Render("Not enough samples for a trend yet")
	}

	width = max(width, 20)
	height = max(height, 3)

	return asciigraph.Plot(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.LowerBound(0),
		asciigraph.UpperBound(100),
		asciigraph.Precision(0),
		asciigraph.Caption(caption),
		asciigraph.SeriesColors(asciigraph.Coral),
	)
}

// RenderSparkline renders values in [0, 100] as a coloured sparkline of at
// most width glyphs, keeping the newest values.
func RenderSparkline(values []float64, width int) string {
	if len(values) == 0 || width < 1 {
		return ""
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}

	var b strings.Builder
	for _, v := range values {
		idx := int(clampUnit(v/100) * float64(len(sparkChars)-1))
		style := lipgloss.NewStyle().Foreground(styles.UsageColor(int(v)))
		b.WriteString(style.Render(string(sparkChars[idx])))
	}
	return b.String()
}

// LegendItem represents a single legend entry.
type LegendItem struct {
	Label string
	Color lipgloss.Color
}

// RenderLegend creates a chart legend.
func RenderLegend(items []LegendItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		colorBox := lipgloss.NewStyle().Foreground(item.Color).Render("■")
		parts = append(parts, fmt.Sprintf("%s %s", colorBox, item.Label))
	}
	return strings.Join(parts, "  ")
}

// UsageLegend describes the usage bar colours.
func UsageLegend() string {
	return RenderLegend([]LegendItem{
		{Label: fmt.Sprintf("<%d%%", styles.UsageWarnPercent), Color: styles.Success},
		{Label: fmt.Sprintf("<%d%%", styles.UsageCriticalPercent), Color: styles.Warning},
		{Label: "high", Color: styles.Error},
	})
}
