package tui

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// The board must stay readable on light and dark terminals, so colors are adaptive.

func ac(light, dark string) lipgloss.AdaptiveColor {
	return lipgloss.AdaptiveColor{Light: light, Dark: dark}
}

var (
	colorMuted       lipgloss.TerminalColor = ac("240", "243")
	colorAccent      lipgloss.TerminalColor = ac("27", "62")
	colorSelectedBg  lipgloss.TerminalColor = ac("#e9e9e9", "#262626")
	colorSelectedFg  lipgloss.TerminalColor = ac("235", "255")
	colorBorder      lipgloss.TerminalColor = ac("250", "243")
	colorError       lipgloss.TerminalColor = ac("160", "203")
	colorSyncing     lipgloss.TerminalColor = ac("136", "221")
	colorHeaderFocus lipgloss.TerminalColor = ac("232", "255")
)

var (
	styleColumn       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorBorder).Padding(0, 1)
	styleColumnFocus  = styleColumn.BorderForeground(colorAccent)
	styleHeader       = lipgloss.NewStyle().Bold(true).Foreground(colorMuted)
	styleHeaderFocus  = styleHeader.Foreground(colorHeaderFocus)
	styleCard         = lipgloss.NewStyle()
	styleCardSelected = lipgloss.NewStyle().Background(colorSelectedBg).Foreground(colorSelectedFg).Bold(true)
	styleErrorMark    = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleSyncing      = lipgloss.NewStyle().Foreground(colorSyncing)
	styleMuted        = lipgloss.NewStyle().Foreground(colorMuted)
	styleMessage      = lipgloss.NewStyle().Foreground(colorAccent)
	styleDetail       = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true, false, false, false).BorderForeground(colorBorder)
)

// applyColorProfilePreference sets Lip Gloss's color profile for the interactive board.
//
// termenv.EnvColorProfile honors CLICOLOR, which can disable colors in a TUI; only
// NO_COLOR is honored here.
func applyColorProfilePreference() {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	profile := termenv.ColorProfile()
	term := strings.ToLower(os.Getenv("TERM"))
	colorterm := strings.ToLower(os.Getenv("COLORTERM"))
	switch {
	case strings.Contains(colorterm, "truecolor") || strings.Contains(colorterm, "24bit"):
		if profile != termenv.Ascii {
			profile = termenv.TrueColor
		}
	case strings.Contains(term, "256color"):
		if profile == termenv.Ascii || profile == termenv.ANSI {
			profile = termenv.ANSI256
		}
	}
	lipgloss.SetColorProfile(profile)
}

// applyThemePreference lets TASKBOARD_TUI_THEME=light|dark override background
// detection, falling back to the COLORFGBG hint ("fg;bg").
func applyThemePreference() {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("TASKBOARD_TUI_THEME"))) {
	case "light":
		lipgloss.SetHasDarkBackground(false)
		return
	case "dark":
		lipgloss.SetHasDarkBackground(true)
		return
	}
	if v := strings.TrimSpace(os.Getenv("COLORFGBG")); v != "" {
		parts := strings.Split(v, ";")
		if bg, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			// 0-6 and 8 are the dark ANSI colors.
			lipgloss.SetHasDarkBackground(bg <= 6 || bg == 8)
		}
	}
}

func markdownStyle() string {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("TASKBOARD_TUI_THEME"))) {
	case "light":
		return "light"
	case "dark":
		return "dark"
	}
	if lipgloss.HasDarkBackground() {
		return "dark"
	}
	return "light"
}
