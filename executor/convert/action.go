package convert

import "github.com/brensch/chessmcts/game"

// ActionSpace is the size of the policy head: every (from, to) square pair.
const ActionSpace = game.NumSquares * game.NumSquares

// ActionIndex is from*64 + to. Promotion pieces share the index of the
// underlying pawn move.
type ActionIndex int

const NoAction ActionIndex = -1

func (a ActionIndex) Valid() bool { return a >= 0 && a < ActionSpace }

func EncodeMove(m game.Move) ActionIndex {
	return ActionIndex(int(m.From)*game.NumSquares + int(m.To))
}

// DecodeMove inverts EncodeMove. state may be nil; when it is not, a pawn
// landing on the first or last rank is given a queen promotion.
func DecodeMove(idx ActionIndex, state game.State) (game.Move, bool) {
	if !idx.Valid() {
		return game.NoMove, false
	}
	m := game.Move{
		From: game.Square(int(idx) / game.NumSquares),
		To:   game.Square(int(idx) % game.NumSquares),
	}
	if state != nil {
		if p, ok := state.PieceAt(m.From); ok && p.Type == game.Pawn {
			if r := m.To.Rank(); r == 0 || r == 7 {
				m.Promotion = game.Queen
			}
		}
	}
	return m, true
}
