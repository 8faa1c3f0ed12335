package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Position is a Cartola player position.
type Position string

const (
	Goalkeeper Position = "GK"  // goleiro, posicao_id 1
	Fullback   Position = "FB"  // lateral, posicao_id 2
	CenterBack Position = "CB"  // zagueiro, posicao_id 3
	Midfielder Position = "MID" // meia, posicao_id 4
	Forward    Position = "FWD" // atacante, posicao_id 5
)

// Positions lists every position in bench order.
var Positions = []Position{Goalkeeper, CenterBack, Fullback, Midfielder, Forward}

var positionByCartolaID = map[int]Position{
	1: Goalkeeper,
	2: Fullback,
	3: CenterBack,
	4: Midfielder,
	5: Forward,
}

var positionByLetter = map[string]Position{
	"G": Goalkeeper,
	"L": Fullback,
	"Z": CenterBack,
	"M": Midfielder,
	"A": Forward,
}

// ParsePosition accepts our own codes, Cartola posicao_id values (1..5) and
// Cartola single-letter codes (G, L, Z, M, A).
func ParsePosition(s string) (Position, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch p := Position(s); p {
	case Goalkeeper, Fullback, CenterBack, Midfielder, Forward:
		return p, nil
	}
	if p, ok := positionByLetter[s]; ok {
		return p, nil
	}
	if id, err := strconv.Atoi(s); err == nil {
		return PositionFromCartolaID(id)
	}
	return "", fmt.Errorf("unknown position %q", s)
}

func PositionFromCartolaID(id int) (Position, error) {
	p, ok := positionByCartolaID[id]
	if !ok {
		return "", fmt.Errorf("unknown posicao_id %d", id)
	}
	return p, nil
}

// Rank orders positions for canonical sorting.
func (p Position) Rank() int {
	for i, q := range Positions {
		if p == q {
			return i
		}
	}
	return len(Positions)
}

func (p Position) Valid() bool {
	return p.Rank() < len(Positions)
}
