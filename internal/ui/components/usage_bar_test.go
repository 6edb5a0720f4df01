package components

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

func TestNewUsageBar(t *testing.T) {
	bar := NewUsageBar(4)
	if bar.Width() != 10 {
		t.Errorf("Width = %d, want minimum 10", bar.Width())
	}

	bar.SetWidth(30)
	if bar.Width() != 30 {
		t.Errorf("Width = %d, want 30", bar.Width())
	}
}

func TestUsageBar_View(t *testing.T) {
	bar := NewUsageBar(20)

	view := ansi.Strip(bar.View("Current session", 50, 50))
	if !strings.Contains(view, "Current session") {
		t.Error("View missing label")
	}
	if !strings.Contains(view, "50%") {
		t.Error("View missing percentage")
	}
	if strings.Count(view, "█") != 10 {
		t.Errorf("filled = %d, want 10", strings.Count(view, "█"))
	}

	// the animated fill can lag the printed value
	view = ansi.Strip(bar.View("Weekly", 0, 80))
	if strings.Count(view, "█") != 0 || !strings.Contains(view, "80%") {
		t.Errorf("View = %q", view)
	}
}

func TestRenderUsageBar(t *testing.T) {
	tests := []struct {
		percent float64
		filled  int
	}{
		{0, 0},
		{50, 5},
		{100, 10},
		{150, 10},
		{-5, 0},
	}
	for _, tt := range tests {
		s := ansi.Strip(RenderUsageBar(tt.percent, 10))
		if got := strings.Count(s, "█"); got != tt.filled {
			t.Errorf("RenderUsageBar(%v) filled = %d, want %d", tt.percent, got, tt.filled)
		}
		if lipgloss.Width(s) != 10 {
			t.Errorf("RenderUsageBar(%v) width = %d", tt.percent, lipgloss.Width(s))
		}
	}

	if RenderUsageBar(50, 0) != "" {
		t.Error("zero width should render nothing")
	}
}

func TestRenderResetBar(t *testing.T) {
	s := ansi.Strip(RenderResetBar(0.5, 10))
	if lipgloss.Width(s) != 10 {
		t.Errorf("width = %d, want 10", lipgloss.Width(s))
	}
	if RenderResetBar(0.5, 0) != "" {
		t.Error("zero width should render nothing")
	}
}

func TestUsageBarLoading(t *testing.T) {
	for _, frame := range []int{0, 30, 60, 119} {
		s := ansi.Strip(UsageBarLoading("Weekly", 60, frame))
		if !strings.Contains(s, "Weekly") {
			t.Errorf("frame %d missing label", frame)
		}
	}
}

func TestInterpolateColor(t *testing.T) {
	if got := interpolateColor("#000000", "#ffffff", 0); got != "#000000" {
		t.Errorf("t=0 got %s", got)
	}
	if got := interpolateColor("#000000", "#ffffff", 1); got != "#ffffff" {
		t.Errorf("t=1 got %s", got)
	}
	if got := hexToRGB("zz"); got != [3]int{0, 0, 0} {
		t.Errorf("bad hex = %v", got)
	}
}
