package domain

import (
	"fmt"
	"strconv"
)

// Column is the letter half of a spot identifier. Every row has exactly
// one A and one B spot; the B spot is the outer half of a tandem pair.
type Column string

const (
	ColumnA Column = "A"
	ColumnB Column = "B"
)

// SpotID identifies one parking spot in its canonical string form,
// e.g. "3A". The exact format is load-bearing: it is matched verbatim
// against reservation records and detection boundaries.
type SpotID string

// NewSpotID builds the canonical identifier for a row/column pair.
func NewSpotID(row int, col Column) SpotID {
	return SpotID(strconv.Itoa(row) + string(col))
}

// ParseSpotID validates s against a garage with the given number of rows.
func ParseSpotID(s string, rows int) (SpotID, error) {
	if len(s) < 2 {
		return "", fmt.Errorf("invalid spot id %q", s)
	}

	col := Column(s[len(s)-1:])
	if col != ColumnA && col != ColumnB {
		return "", fmt.Errorf("invalid spot column in %q", s)
	}

	row, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || row < 1 || row > rows {
		return "", fmt.Errorf("invalid spot row in %q", s)
	}

	return NewSpotID(row, col), nil
}

// Row returns the 1-based row number, or 0 for a malformed id.
func (s SpotID) Row() int {
	if len(s) < 2 {
		return 0
	}
	row, err := strconv.Atoi(string(s[:len(s)-1]))
	if err != nil {
		return 0
	}
	return row
}

// Col returns the column letter, or "" for a malformed id.
func (s SpotID) Col() Column {
	if len(s) < 2 {
		return ""
	}
	return Column(s[len(s)-1:])
}

// Paired returns the other spot of the same row's tandem pair.
func (s SpotID) Paired() SpotID {
	switch s.Col() {
	case ColumnA:
		return NewSpotID(s.Row(), ColumnB)
	case ColumnB:
		return NewSpotID(s.Row(), ColumnA)
	default:
		return ""
	}
}

// BlockedBy returns the spot whose vehicle physically blocks s from
// leaving. Only A spots are blocked; the relation never flows B to A.
func (s SpotID) BlockedBy() (SpotID, bool) {
	if s.Col() != ColumnA {
		return "", false
	}
	return s.Paired(), true
}

// SpotOrder enumerates all 2N spots in canonical order:
// 1A, 1B, 2A, 2B, ..., NA, NB.
func SpotOrder(rows int) []SpotID {
	out := make([]SpotID, 0, 2*rows)
	for row := 1; row <= rows; row++ {
		out = append(out, NewSpotID(row, ColumnA), NewSpotID(row, ColumnB))
	}
	return out
}
