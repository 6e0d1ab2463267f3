package coach

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownDifficulty = errors.New("unknown difficulty")

// Difficulty is the phoneme group a session trains.
type Difficulty string

const (
	DifficultyR  Difficulty = "R"
	DifficultyL  Difficulty = "L"
	DifficultyS  Difficulty = "S"
	DifficultyCH Difficulty = "CH"
	DifficultyX  Difficulty = "X"
	DifficultyLH Difficulty = "LH"
)

// Difficulties lists every difficulty in display order.
var Difficulties = []Difficulty{
	DifficultyR, DifficultyL, DifficultyS, DifficultyCH, DifficultyX, DifficultyLH,
}

var difficultyExamples = map[Difficulty]string{
	DifficultyR:  "rato, carro",
	DifficultyL:  "lua, bola",
	DifficultyS:  "sapo, massa",
	DifficultyCH: "chuva, bicho",
	DifficultyX:  "Xuxa, Sasha",
	DifficultyLH: "palha, filho",
}

func (d Difficulty) Valid() bool {
	_, ok := difficultyExamples[d]
	return ok
}

// Examples returns sample words for the phoneme.
func (d Difficulty) Examples() string {
	return difficultyExamples[d]
}

func (d Difficulty) String() string { return string(d) }

func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(strings.ToUpper(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownDifficulty, s)
	}
	return d, nil
}
