package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/notnil/chess"
)

// GameRecord is a game read from PGN, reduced to what replay needs.
type GameRecord struct {
	ID       string
	Event    string
	White    string
	Black    string
	Result   string
	StartFEN string
	// Moves are in UCI notation.
	Moves []string
}

// Outcome maps the PGN result to white's perspective: 1, -1, or 0 for draws
// and unknown results.
func (g GameRecord) Outcome() float32 {
	switch g.Result {
	case "1-0":
		return 1
	case "0-1":
		return -1
	}
	return 0
}

// ReadPGN parses every game in r. Games are validated move by move by the
// PGN parser, so a malformed game fails the whole read.
func ReadPGN(r io.Reader) ([]GameRecord, error) {
	games, err := chess.GamesFromPGN(r)
	if err != nil {
		return nil, fmt.Errorf("parse pgn: %w", err)
	}

	records := make([]GameRecord, 0, len(games))
	for i, g := range games {
		rec, err := recordFromGame(g)
		if err != nil {
			return nil, fmt.Errorf("game %d: %w", i+1, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func recordFromGame(g *chess.Game) (GameRecord, error) {
	positions := g.Positions()
	moves := g.Moves()
	if len(positions) == 0 {
		return GameRecord{}, fmt.Errorf("game has no positions")
	}

	rec := GameRecord{
		Event:    tag(g, "Event"),
		White:    tag(g, "White"),
		Black:    tag(g, "Black"),
		Result:   tag(g, "Result"),
		StartFEN: positions[0].String(),
		Moves:    make([]string, 0, len(moves)),
	}
	if rec.Result == "" {
		rec.Result = string(g.Outcome())
	}

	notation := chess.UCINotation{}
	for i, m := range moves {
		rec.Moves = append(rec.Moves, notation.Encode(positions[i], m))
	}
	rec.ID = gameID(g, rec)
	return rec, nil
}

func tag(g *chess.Game, key string) string {
	if tp := g.GetTagPair(key); tp != nil {
		return strings.TrimSpace(tp.Value)
	}
	return ""
}

// gameID prefers the Site tag (lichess and chess.com put the game URL there)
// and falls back to a content hash.
func gameID(g *chess.Game, rec GameRecord) string {
	site := tag(g, "Site")
	if strings.HasPrefix(site, "http") {
		return site
	}
	h := sha256.New()
	for _, s := range []string{site, tag(g, "Date"), tag(g, "Round"), rec.White, rec.Black, rec.StartFEN} {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	h.Write([]byte(strings.Join(rec.Moves, " ")))
	return "pgn_" + hex.EncodeToString(h.Sum(nil))[:16]
}
