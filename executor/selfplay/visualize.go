package selfplay

import (
	"fmt"
	"strings"

	"github.com/brensch/chessmcts/executor/mcts"
	"github.com/brensch/chessmcts/game"
	"github.com/brensch/chessmcts/rules"
	"github.com/rs/zerolog/log"
)

const pieceChars = " pnbrqk"

// RenderBoard draws the position rank 8 first, white pieces upper case.
func RenderBoard(b *rules.Board) string {
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		fmt.Fprintf(&sb, "%d ", rank+1)
		for file := 0; file < 8; file++ {
			c := "."
			if p, ok := b.PieceAt(game.NewSquare(file, rank)); ok {
				c = string(pieceChars[p.Type])
				if p.Color == game.White {
					c = strings.ToUpper(c)
				}
			}
			sb.WriteString(c + " ")
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("  a b c d e f g h\n")
	return sb.String()
}

// PrintBoard logs the board with the top root moves of the search.
func PrintBoard(b *rules.Board, summary mcts.RootSummary, played game.Move) {
	var sb strings.Builder
	sb.WriteString("\n" + RenderBoard(b))
	for _, c := range summary.Top(5) {
		fmt.Fprintf(&sb, "  %-6s n=%-5d share=%5.1f%% q=%+.3f p=%.3f\n", c.Move, c.Visits, c.Share*100, c.Q, c.Prior)
	}
	log.Debug().Str("fen", b.FEN()).Str("played", played.String()).Float64("white_value", summary.WhiteValue).Msg(sb.String())
}
