package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidSeat = errors.New("invalid seat id")

// SeatID names a logical seat as "row-col", both 1-based.
type SeatID string

func NewSeatID(row, col int) SeatID {
	return SeatID(fmt.Sprintf("%d-%d", row, col))
}

// Parse splits the seat id into row and column.
func (s SeatID) Parse() (row, col int, err error) {
	r, c, ok := strings.Cut(string(s), "-")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidSeat, s)
	}
	row, err = strconv.Atoi(r)
	if err != nil || row < 1 {
		return 0, 0, fmt.Errorf("%w: bad row in %q", ErrInvalidSeat, s)
	}
	col, err = strconv.Atoi(c)
	if err != nil || col < 1 {
		return 0, 0, fmt.Errorf("%w: bad column in %q", ErrInvalidSeat, s)
	}
	return row, col, nil
}

func (s SeatID) Row() (int, error) {
	row, _, err := s.Parse()
	return row, err
}
