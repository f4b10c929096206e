package catalog

import (
	"encoding/json"
	"errors"
)

var ErrEmptyCatalog = errors.New("catalog has no problems")
var ErrProblemNotFound = errors.New("problem not found")

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// TestCase inputs and expectations are kept as raw JSON; the judge sends them
// verbatim as stdin / expected_output.
type TestCase struct {
	Input    json.RawMessage `json:"input"`
	Expected json.RawMessage `json:"expected"`
}

type Example struct {
	Input       json.RawMessage `json:"input"`
	Output      json.RawMessage `json:"output"`
	Explanation string          `json:"explanation,omitempty"`
}

type Problem struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Difficulty  Difficulty `json:"difficulty"`
	StarterCode string     `json:"starterCode"`
	TestCases   []TestCase `json:"testCases"`
	Examples    []Example  `json:"examples"`
}

// Catalog is an immutable, ordered list of problems.
type Catalog struct {
	problems []Problem
	byID     map[string]int
}

func New(problems []Problem) (*Catalog, error) {
	if len(problems) == 0 {
		return nil, ErrEmptyCatalog
	}
	c := &Catalog{
		problems: make([]Problem, len(problems)),
		byID:     make(map[string]int, len(problems)),
	}
	copy(c.problems, problems)
	for i, p := range c.problems {
		c.byID[p.ID] = i
	}
	return c, nil
}

// Default is the problem every new room starts with.
func (c *Catalog) Default() Problem {
	return c.problems[0]
}

func (c *Catalog) Get(id string) (Problem, error) {
	i, ok := c.byID[id]
	if !ok {
		return Problem{}, ErrProblemNotFound
	}
	return c.problems[i], nil
}

func (c *Catalog) All() []Problem {
	out := make([]Problem, len(c.problems))
	copy(out, c.problems)
	return out
}

func (c *Catalog) Len() int { return len(c.problems) }
