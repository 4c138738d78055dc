package mcts

import "github.com/brensch/chessmcts/game"

var pieceValues = [...]float64{
	game.NoPieceType: 0,
	game.Pawn:        1,
	game.Knight:      3,
	game.Bishop:      3.2,
	game.Rook:        5,
	game.Queen:       9,
	game.King:        0,
}

// MaterialBalance is side-to-move material minus the opponent's, in pawns.
func MaterialBalance(state game.State) float64 {
	us := state.Turn()
	var bal float64
	for sq := game.Square(0); sq < game.NumSquares; sq++ {
		p, ok := state.PieceAt(sq)
		if !ok || int(p.Type) >= len(pieceValues) {
			continue
		}
		if p.Color == us {
			bal += pieceValues[p.Type]
		} else {
			bal -= pieceValues[p.Type]
		}
	}
	return bal
}

// materialScore squashes MaterialBalance into [-1, 1].
func materialScore(state game.State, scale float64) float64 {
	v := MaterialBalance(state) / scale
	return max(-1, min(1, v))
}
