package convert

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/brensch/chessmcts/game"
)

const (
	Width  = 8
	Height = 8
	// PlaneSize is the number of cells in one channel.
	PlaneSize = Width * Height

	MinimalPlanes  = 12
	ExtendedPlanes = 17
)

// Channel layout:
// 0..5   white pawn, knight, bishop, rook, queen, king
// 6..11  black pawn, knight, bishop, rook, queen, king
// 12     side to move (all ones when white moves), extended only
// 13..16 castling rights WK, WQ, BK, BQ, extended only
const (
	turnPlane     = 12
	castlingPlane = 13
)

var ErrUnsupportedPlanes = errors.New("unsupported plane count")

// Planes is the encoded input for one position, laid out as [Channels, Height, Width].
type Planes struct {
	Channels int
	Data     []float32
}

// At returns the value for channel c at square sq.
func (p Planes) At(c int, sq game.Square) float32 {
	return p.Data[c*PlaneSize+int(sq)]
}

// Key packs the planes into a compact byte key, one bit per cell. Only valid
// for binary planes, which is all the encoder produces.
func (p Planes) Key() []byte {
	key := make([]byte, 1+8*p.Channels)
	key[0] = byte(p.Channels)
	for c := 0; c < p.Channels; c++ {
		var bits uint64
		for i, v := range p.Data[c*PlaneSize : (c+1)*PlaneSize] {
			if v != 0 {
				bits |= 1 << uint(i)
			}
		}
		binary.LittleEndian.PutUint64(key[1+8*c:], bits)
	}
	return key
}

// Encoder turns a game.State into Planes with a fixed channel count.
type Encoder struct {
	channels int
}

func NewEncoder(channels int) (Encoder, error) {
	if channels != MinimalPlanes && channels != ExtendedPlanes {
		return Encoder{}, fmt.Errorf("%w: %d", ErrUnsupportedPlanes, channels)
	}
	return Encoder{channels: channels}, nil
}

func (e Encoder) Channels() int { return e.channels }

// Encode writes piece occupancy with absolute square indexing; the board is
// never flipped for black.
func (e Encoder) Encode(state game.State) Planes {
	data := make([]float32, e.channels*PlaneSize)

	set := func(c, row, col int) {
		data[c*PlaneSize+row*Width+col] = 1
	}
	fill := func(c int) {
		for i := c * PlaneSize; i < (c+1)*PlaneSize; i++ {
			data[i] = 1
		}
	}

	for sq := game.Square(0); sq < game.NumSquares; sq++ {
		p, ok := state.PieceAt(sq)
		if !ok || p.Type == game.NoPieceType {
			continue
		}
		c := int(p.Type) - 1
		if p.Color == game.Black {
			c += 6
		}
		row, col := int(sq)/8, int(sq)%8
		set(c, row, col)
	}

	if e.channels == ExtendedPlanes {
		if state.Turn() == game.White {
			fill(turnPlane)
		}
		cr := state.CastlingRights()
		for i, ok := range [4]bool{cr.WhiteKingside, cr.WhiteQueenside, cr.BlackKingside, cr.BlackQueenside} {
			if ok {
				fill(castlingPlane + i)
			}
		}
	}

	return Planes{Channels: e.channels, Data: data}
}
