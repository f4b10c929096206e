package engine

import (
	"errors"
	"slices"

	"github.com/DoyleJ11/code-battle-backend/internal/catalog"
)

var ErrRoomFull = errors.New("room is full")
var ErrDuplicatePlayer = errors.New("player already in room")
var ErrUnknownPlayer = errors.New("unknown player")
var ErrNotEnoughPlayers = errors.New("not enough players")
var ErrAlreadyActive = errors.New("battle already active")
var ErrBattleEnded = errors.New("battle has ended")
var ErrNotActive = errors.New("battle is not active")
var ErrNoProblem = errors.New("room has no problem with test cases")
var ErrVerdictMismatch = errors.New("verdict count does not match test cases")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Phase string

const (
	PhaseLobby  Phase = "lobby"
	PhaseActive Phase = "active"
	PhaseEnded  Phase = "ended"
)

type EndReason string

const (
	EndTimeUp         EndReason = "time-up"
	EndAllTestsPassed EndReason = "all-tests-passed"
)

type Player struct {
	ID          string
	Name        string
	Code        string
	Score       int
	TestsPassed int
	Ready       bool
}

type State struct {
	Phase    Phase
	Problem  *catalog.Problem
	Players  []Player // join order
	TimeLeft int
	Winner   string
	Rules    Rules
}

type CommandType string

const (
	CmdJoin        CommandType = "Join"
	CmdLeave       CommandType = "Leave"
	CmdChangeCode  CommandType = "ChangeCode"
	CmdStartBattle CommandType = "StartBattle"
	CmdTick        CommandType = "Tick"
	CmdApplyGrade  CommandType = "ApplyGrade"
)

type Command struct {
	Type     CommandType
	PlayerID string
	Name     string
	Code     string
	Results  []bool // CmdApplyGrade: pass flag per test case, in submission order
}

type EventType string

const (
	EvtPlayerJoined   EventType = "PlayerJoined"
	EvtPlayerLeft     EventType = "PlayerLeft"
	EvtCodeChanged    EventType = "CodeChanged"
	EvtBattleStarted  EventType = "BattleStarted"
	EvtTimerTicked    EventType = "TimerTicked"
	EvtTestCaseResult EventType = "TestCaseResult"
	EvtScoreAwarded   EventType = "ScoreAwarded"
	EvtBattleEnded    EventType = "BattleEnded"
)

type Event struct {
	Type     EventType
	PlayerID string
	Code     string
	Passed   bool
	Score    int
	Winner   string
	Reason   EndReason
}

// Apply validates cmd against s and returns the resulting events and state.
// On error the returned state is s, untouched.
func Apply(s State, cmd Command) ([]Event, State, error) {
	newState := s.clone()

	switch cmd.Type {
	case CmdJoin:
		if s.indexOf(cmd.PlayerID) >= 0 {
			return nil, s, ErrDuplicatePlayer
		}
		if s.Rules.MaxPlayers > 0 && len(s.Players) >= s.Rules.MaxPlayers {
			return nil, s, ErrRoomFull
		}

		code := ""
		if s.Problem != nil {
			code = s.Problem.StarterCode
		}
		newState.Players = append(newState.Players, Player{
			ID:    cmd.PlayerID,
			Name:  cmd.Name,
			Code:  code,
			Ready: true,
		})
		return []Event{{Type: EvtPlayerJoined, PlayerID: cmd.PlayerID}}, newState, nil

	case CmdLeave:
		i := s.indexOf(cmd.PlayerID)
		if i < 0 {
			return nil, s, ErrUnknownPlayer
		}
		newState.Players = slices.Delete(newState.Players, i, i+1)
		return []Event{{Type: EvtPlayerLeft, PlayerID: cmd.PlayerID}}, newState, nil

	case CmdChangeCode:
		i := s.indexOf(cmd.PlayerID)
		if i < 0 {
			return nil, s, ErrUnknownPlayer
		}
		newState.Players[i].Code = cmd.Code
		return []Event{{Type: EvtCodeChanged, PlayerID: cmd.PlayerID, Code: cmd.Code}}, newState, nil

	case CmdStartBattle:
		switch s.Phase {
		case PhaseActive:
			return nil, s, ErrAlreadyActive
		case PhaseEnded:
			return nil, s, ErrBattleEnded
		}
		if len(s.Players) < s.Rules.MinPlayers {
			return nil, s, ErrNotEnoughPlayers
		}
		newState.Phase = PhaseActive
		newState.TimeLeft = s.Rules.DurationSec
		newState.Winner = ""
		return []Event{{Type: EvtBattleStarted}}, newState, nil

	case CmdTick:
		if s.Phase != PhaseActive {
			return nil, s, ErrNotActive
		}
		newState.TimeLeft--
		events := []Event{{Type: EvtTimerTicked}}
		if newState.TimeLeft <= 0 {
			newState.TimeLeft = 0
			newState.Phase = PhaseEnded
			newState.Winner = leader(newState.Players)
			events = append(events, Event{Type: EvtBattleEnded, Winner: newState.Winner, Reason: EndTimeUp})
		}
		return events, newState, nil

	case CmdApplyGrade:
		i := s.indexOf(cmd.PlayerID)
		if i < 0 {
			return nil, s, ErrUnknownPlayer
		}
		if s.Phase != PhaseActive {
			return nil, s, ErrNotActive
		}
		if s.Problem == nil || len(s.Problem.TestCases) == 0 {
			return nil, s, ErrNoProblem
		}
		total := len(s.Problem.TestCases)
		if len(cmd.Results) != total {
			return nil, s, ErrVerdictMismatch
		}

		base := s.Players[i].Score
		events := make([]Event, 0, total+2)
		passed := 0
		for _, ok := range cmd.Results {
			projected := base
			if ok {
				passed++
				projected += s.Rules.PointsPerCase
			}
			events = append(events, Event{Type: EvtTestCaseResult, PlayerID: cmd.PlayerID, Passed: ok, Score: projected})
		}

		p := &newState.Players[i]
		p.TestsPassed = passed
		p.Score += passed * s.Rules.PointsPerCase
		events = append(events, Event{Type: EvtScoreAwarded, PlayerID: cmd.PlayerID, Score: p.Score})

		if passed == total {
			newState.Phase = PhaseEnded
			newState.Winner = cmd.PlayerID
			events = append(events, Event{Type: EvtBattleEnded, Winner: cmd.PlayerID, Reason: EndAllTestsPassed})
		}
		return events, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

// CanGrade reports whether a run for playerID would be accepted right now.
func CanGrade(s State, playerID string) error {
	if s.indexOf(playerID) < 0 {
		return ErrUnknownPlayer
	}
	if s.Phase != PhaseActive {
		return ErrNotActive
	}
	if s.Problem == nil || len(s.Problem.TestCases) == 0 {
		return ErrNoProblem
	}
	return nil
}

func (s State) indexOf(id string) int {
	return slices.IndexFunc(s.Players, func(p Player) bool { return p.ID == id })
}

func (s State) clone() State {
	c := s
	c.Players = slices.Clone(s.Players)
	return c
}

// leader returns the highest scorer; on a tie the earliest joiner wins.
func leader(players []Player) string {
	best := -1
	for i, p := range players {
		if best < 0 || p.Score > players[best].Score {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return players[best].ID
}
