package main

import (
	"strings"
	"testing"

	"github.com/brensch/chessmcts/executor/selfplay"
	tea "github.com/charmbracelet/bubbletea"
)

func TestModelTracksGames(t *testing.T) {
	updates := make(chan GameUpdate, 1)
	var m tea.Model = initialModel(updates)

	m, _ = m.Update(GameUpdate{WorkerID: 3, Result: selfplay.GameResult{Result: "1-0", Plies: 41}, Examples: 41})
	m, _ = m.Update(GameUpdate{WorkerID: 1, Result: selfplay.GameResult{Result: "*", Plies: 300}, Examples: 300})

	view := m.View()
	for _, want := range []string{"Games Played:     2", "1-0 1", "unfinished 1", "Worker 1: * in 300 plies"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if first := strings.Index(view, "Worker 1"); first > strings.Index(view, "Worker 3") {
		t.Errorf("most recent game should be listed first")
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatalf("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("q returned %T", cmd())
	}
}
