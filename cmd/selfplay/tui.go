package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/brensch/chessmcts/executor/selfplay"
	tea "github.com/charmbracelet/bubbletea"
)

type GameUpdate struct {
	WorkerID int
	Result   selfplay.GameResult
	Examples int
}

type model struct {
	gamesPlayed   int
	totalExamples int
	results       map[string]int
	moves         int64
	inferences    int64
	startTime     time.Time
	recentGames   []string
	updates       chan GameUpdate
}

func initialModel(updates chan GameUpdate) model {
	return model{
		startTime: time.Now(),
		results:   map[string]int{},
		updates:   updates,
	}
}

type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), tickCmd())
}

func waitForUpdate(updates chan GameUpdate) tea.Cmd {
	return func() tea.Msg {
		return <-updates
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case TickMsg:
		m.moves = totalMoves.Load()
		m.inferences = totalInferences.Load()
		return m, tickCmd()
	case GameUpdate:
		m.gamesPlayed++
		m.totalExamples += msg.Examples
		m.results[msg.Result.Result]++
		line := fmt.Sprintf("Worker %d: %s in %d plies, %d rows", msg.WorkerID, msg.Result.Result, msg.Result.Plies, msg.Examples)
		m.recentGames = append([]string{line}, m.recentGames...)
		if len(m.recentGames) > 10 {
			m.recentGames = m.recentGames[:10]
		}
		return m, waitForUpdate(m.updates)
	}
	return m, nil
}

func (m model) View() string {
	secs := time.Since(m.startTime).Seconds()
	rate := func(n float64) float64 {
		if secs < 1 {
			return 0
		}
		return n / secs
	}

	var s strings.Builder
	fmt.Fprintf(&s, "Games Played:     %d\n", m.gamesPlayed)
	fmt.Fprintf(&s, "Results:          1-0 %d  0-1 %d  draw %d  unfinished %d\n",
		m.results["1-0"], m.results["0-1"], m.results["1/2-1/2"], m.results["*"])
	fmt.Fprintf(&s, "Total Rows:       %d\n", m.totalExamples)
	fmt.Fprintf(&s, "Total Moves:      %d\n", m.moves)
	fmt.Fprintf(&s, "Total Inferences: %d\n", m.inferences)
	fmt.Fprintf(&s, "Duration:         %s\n", time.Since(m.startTime).Round(time.Second))
	fmt.Fprintf(&s, "Games/Sec:        %.2f\n", rate(float64(m.gamesPlayed)))
	fmt.Fprintf(&s, "Moves/Sec:        %.2f\n", rate(float64(m.moves)))
	fmt.Fprintf(&s, "Inferences/Sec:   %.2f\n\n", rate(float64(m.inferences)))

	s.WriteString("Recent Games:\n")
	for _, g := range m.recentGames {
		s.WriteString(g + "\n")
	}
	s.WriteString("\nPress q to quit.\n")
	return s.String()
}
