package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/hpungsan/kiki/internal/poller"
	"github.com/hpungsan/kiki/internal/snapshot"
)

// stateColors are ANSI 256 palette indices per display state.
var stateColors = map[snapshot.State]lipgloss.Color{
	snapshot.StateWorking:      lipgloss.Color("42"),
	snapshot.StateThinking:     lipgloss.Color("39"),
	snapshot.StateDelegating:   lipgloss.Color("171"),
	snapshot.StateIdle:         lipgloss.Color("250"),
	snapshot.StateSleeping:     lipgloss.Color("240"),
	snapshot.StateDisconnected: lipgloss.Color("196"),
}

var messageStyle = lipgloss.NewStyle().Faint(true)

// prettyLine renders d as a single colored terminal line.
func prettyLine(d poller.Display) string {
	color, ok := stateColors[d.State]
	if !ok {
		color = lipgloss.Color("250")
	}
	line := lipgloss.NewStyle().Foreground(color).Bold(true).Width(13).Render(string(d.State))
	if d.Subagents > 0 {
		line += fmt.Sprintf("[%d] ", d.Subagents)
	}
	if d.Message != "" {
		line += messageStyle.Render(d.Message)
	}
	return line
}
