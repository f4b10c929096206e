package types

import "encoding/json"

// RoomSnapshot is the full room state sent in every battle-state-update.
// Clients replace their local copy with it.
type RoomSnapshot struct {
	RoomKey       string           `json:"roomKey"`
	Phase         string           `json:"phase"` // "lobby" | "active" | "ended"
	BattleStarted bool             `json:"battleStarted"`
	TimeLeft      int              `json:"timeLeft"`
	Winner        *string          `json:"winner"`
	Players       []PlayerSnapshot `json:"players"` // join order
	Problem       *ProblemSnapshot `json:"problem"`
}

type PlayerSnapshot struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Code             string `json:"code"`
	Score            int    `json:"score"`
	TestsPassedCount int    `json:"testsPassedCount"`
	IsReady          bool   `json:"isReady"`
}

// ProblemSnapshot is the public part of a problem; hidden test cases are
// reduced to their count.
type ProblemSnapshot struct {
	ID            string            `json:"id"`
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	Difficulty    string            `json:"difficulty"`
	StarterCode   string            `json:"starterCode"`
	Examples      []ExampleSnapshot `json:"examples"`
	TestCaseCount int               `json:"testCaseCount"`
}

type ExampleSnapshot struct {
	Input       json.RawMessage `json:"input"`
	Output      json.RawMessage `json:"output"`
	Explanation string          `json:"explanation,omitempty"`
}
