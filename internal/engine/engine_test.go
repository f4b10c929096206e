package engine

import (
	"errors"
	"testing"

	"github.com/DoyleJ11/code-battle-backend/internal/catalog"
)

func testProblem(cases int) catalog.Problem {
	p := catalog.Problem{ID: "p1", StarterCode: "// start"}
	for i := 0; i < cases; i++ {
		p.TestCases = append(p.TestCases, catalog.TestCase{})
	}
	return p
}

func mustApply(t *testing.T, s State, cmd Command) ([]Event, State) {
	t.Helper()
	events, next, err := Apply(s, cmd)
	if err != nil {
		t.Fatalf("%s: unexpected err %v", cmd.Type, err)
	}
	return events, next
}

func twoPlayerState(t *testing.T) State {
	t.Helper()
	s := NewState(testProblem(3), DefaultRules())
	_, s = mustApply(t, s, Command{Type: CmdJoin, PlayerID: "a", Name: "Alice"})
	_, s = mustApply(t, s, Command{Type: CmdJoin, PlayerID: "b", Name: "Bob"})
	return s
}

func activeState(t *testing.T) State {
	t.Helper()
	_, s := mustApply(t, twoPlayerState(t), Command{Type: CmdStartBattle})
	return s
}

func TestJoin_InitializesPlayerFromStarterCode(t *testing.T) {
	s := NewState(testProblem(3), DefaultRules())
	events, s := mustApply(t, s, Command{Type: CmdJoin, PlayerID: "a", Name: "Alice"})

	if !ContainsEvent(events, EvtPlayerJoined) {
		t.Fatalf("expected EvtPlayerJoined")
	}
	p, ok := s.Player("a")
	if !ok {
		t.Fatalf("player not added")
	}
	if p.Code != "// start" || p.Score != 0 || !p.Ready || p.Name != "Alice" {
		t.Fatalf("unexpected player %+v", p)
	}
}

func TestJoin_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		cmd     Command
		wantErr error
	}{
		{
			name:    "duplicate id",
			cmd:     Command{Type: CmdJoin, PlayerID: "a", Name: "Again"},
			wantErr: ErrDuplicatePlayer,
		},
		{
			name:    "third player",
			cmd:     Command{Type: CmdJoin, PlayerID: "c", Name: "Carol"},
			wantErr: ErrRoomFull,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := twoPlayerState(t)
			_, next, err := Apply(s, tc.cmd)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
			if len(next.Players) != 2 {
				t.Fatalf("rejected join mutated players: %+v", next.Players)
			}
		})
	}
}

func TestStartBattle(t *testing.T) {
	cases := []struct {
		name    string
		setup   func(t *testing.T) State
		wantErr error
	}{
		{
			name: "one player is not enough",
			setup: func(t *testing.T) State {
				s := NewState(testProblem(3), DefaultRules())
				_, s = mustApply(t, s, Command{Type: CmdJoin, PlayerID: "a"})
				return s
			},
			wantErr: ErrNotEnoughPlayers,
		},
		{
			name:    "two players start",
			setup:   twoPlayerState,
			wantErr: nil,
		},
		{
			name:    "already active",
			setup:   activeState,
			wantErr: ErrAlreadyActive,
		},
		{
			name: "ended rooms do not restart",
			setup: func(t *testing.T) State {
				s := activeState(t)
				s.Phase = PhaseEnded
				s.Winner = "a"
				return s
			},
			wantErr: ErrBattleEnded,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.setup(t)
			_, next, err := Apply(s, Command{Type: CmdStartBattle})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
			if tc.wantErr != nil {
				if next.Phase != s.Phase {
					t.Fatalf("rejected start changed phase %s -> %s", s.Phase, next.Phase)
				}
				return
			}
			if next.Phase != PhaseActive || next.TimeLeft != 300 || !next.BattleStarted() {
				t.Fatalf("unexpected state after start: %+v", next)
			}
		})
	}
}

func TestTick_DecrementsAndEndsWithLeader(t *testing.T) {
	s := activeState(t)
	s.TimeLeft = 2
	s.Players[0].Score = 30
	s.Players[1].Score = 20

	events, s := mustApply(t, s, Command{Type: CmdTick})
	if s.TimeLeft != 1 || s.Phase != PhaseActive {
		t.Fatalf("after first tick: %+v", s)
	}
	if ContainsEvent(events, EvtBattleEnded) {
		t.Fatalf("battle ended early")
	}

	events, s = mustApply(t, s, Command{Type: CmdTick})
	ended, ok := FindEvent(events, EvtBattleEnded)
	if !ok {
		t.Fatalf("expected EvtBattleEnded")
	}
	if ended.Winner != "a" || s.Winner != "a" || ended.Reason != EndTimeUp {
		t.Fatalf("want winner a by time, got %+v", ended)
	}
	if s.Phase != PhaseEnded || s.BattleStarted() {
		t.Fatalf("want ended phase, got %s", s.Phase)
	}
}

func TestTick_TieGoesToFirstJoined(t *testing.T) {
	cases := []struct {
		name   string
		scores [2]int
		want   string
	}{
		{name: "tie", scores: [2]int{20, 20}, want: "a"},
		{name: "second ahead", scores: [2]int{10, 20}, want: "b"},
		{name: "nobody scored", scores: [2]int{0, 0}, want: "a"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := activeState(t)
			s.TimeLeft = 1
			s.Players[0].Score = tc.scores[0]
			s.Players[1].Score = tc.scores[1]

			_, s = mustApply(t, s, Command{Type: CmdTick})
			if s.Winner != tc.want {
				t.Fatalf("want winner %s, got %s", tc.want, s.Winner)
			}
		})
	}
}

func TestTick_RejectedOutsideActive(t *testing.T) {
	_, _, err := Apply(twoPlayerState(t), Command{Type: CmdTick})
	if !errors.Is(err, ErrNotActive) {
		t.Fatalf("want ErrNotActive, got %v", err)
	}
}

func TestApplyGrade_ProjectsScorePerCase(t *testing.T) {
	s := activeState(t)
	s.Players[0].Score = 20

	events, s := mustApply(t, s, Command{Type: CmdApplyGrade, PlayerID: "a", Results: []bool{true, false, true}})

	var got []Event
	for _, e := range events {
		if e.Type == EvtTestCaseResult {
			got = append(got, e)
		}
	}
	if len(got) != 3 {
		t.Fatalf("want 3 case results, got %d", len(got))
	}
	wantScores := []int{30, 20, 30}
	for i, e := range got {
		if e.Score != wantScores[i] {
			t.Fatalf("case %d: want projected score %d, got %d", i, wantScores[i], e.Score)
		}
	}

	p, _ := s.Player("a")
	if p.Score != 40 || p.TestsPassed != 2 {
		t.Fatalf("want score 40 / passed 2, got %+v", p)
	}
	if s.Phase != PhaseActive {
		t.Fatalf("partial pass must not end battle")
	}
}

func TestApplyGrade_TestsPassedIsOverwrittenScoreAccumulates(t *testing.T) {
	s := activeState(t)

	_, s = mustApply(t, s, Command{Type: CmdApplyGrade, PlayerID: "b", Results: []bool{true, true, false}})
	_, s = mustApply(t, s, Command{Type: CmdApplyGrade, PlayerID: "b", Results: []bool{true, false, false}})

	p, _ := s.Player("b")
	if p.TestsPassed != 1 {
		t.Fatalf("testsPassedCount must reflect last run only, got %d", p.TestsPassed)
	}
	if p.Score != 30 {
		t.Fatalf("score must accumulate across runs, want 30 got %d", p.Score)
	}
}

func TestApplyGrade_AllPassedWinsImmediately(t *testing.T) {
	s := activeState(t)

	events, s := mustApply(t, s, Command{Type: CmdApplyGrade, PlayerID: "b", Results: []bool{true, true, true}})

	ended, ok := FindEvent(events, EvtBattleEnded)
	if !ok || ended.Winner != "b" || ended.Reason != EndAllTestsPassed {
		t.Fatalf("want b to win by completion, got %+v", ended)
	}
	if s.Phase != PhaseEnded || s.Winner != "b" || s.TimeLeft != 300 {
		t.Fatalf("unexpected state %+v", s)
	}
}

func TestApplyGrade_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		setup   func(t *testing.T) State
		cmd     Command
		wantErr error
	}{
		{
			name:    "lobby",
			setup:   twoPlayerState,
			cmd:     Command{Type: CmdApplyGrade, PlayerID: "a", Results: []bool{true, true, true}},
			wantErr: ErrNotActive,
		},
		{
			name:    "unknown player",
			setup:   activeState,
			cmd:     Command{Type: CmdApplyGrade, PlayerID: "zz", Results: []bool{true, true, true}},
			wantErr: ErrUnknownPlayer,
		},
		{
			name:    "short verdict list",
			setup:   activeState,
			cmd:     Command{Type: CmdApplyGrade, PlayerID: "a", Results: []bool{true}},
			wantErr: ErrVerdictMismatch,
		},
		{
			name: "no problem",
			setup: func(t *testing.T) State {
				s := activeState(t)
				s.Problem = nil
				return s
			},
			cmd:     Command{Type: CmdApplyGrade, PlayerID: "a", Results: []bool{}},
			wantErr: ErrNoProblem,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.setup(t)
			_, next, err := Apply(s, tc.cmd)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
			for i := range next.Players {
				if next.Players[i].Score != 0 || next.Players[i].TestsPassed != 0 {
					t.Fatalf("rejected grade mutated player %+v", next.Players[i])
				}
			}
		})
	}
}

func TestLeave_KeepsWinner(t *testing.T) {
	s := activeState(t)
	_, s = mustApply(t, s, Command{Type: CmdApplyGrade, PlayerID: "a", Results: []bool{true, true, true}})

	_, s = mustApply(t, s, Command{Type: CmdLeave, PlayerID: "b"})
	if len(s.Players) != 1 || s.Winner != "a" || s.Phase != PhaseEnded {
		t.Fatalf("unexpected state after leave: %+v", s)
	}

	_, _, err := Apply(s, Command{Type: CmdLeave, PlayerID: "b"})
	if !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("want ErrUnknownPlayer, got %v", err)
	}
}

func TestApply_DoesNotAliasPlayers(t *testing.T) {
	s := twoPlayerState(t)
	_, next := mustApply(t, s, Command{Type: CmdChangeCode, PlayerID: "a", Code: "x"})

	if s.Players[0].Code == "x" {
		t.Fatalf("input state was mutated")
	}
	if next.Players[0].Code != "x" {
		t.Fatalf("code not updated")
	}
}

func TestApply_UnsupportedCommand(t *testing.T) {
	_, _, err := Apply(State{}, Command{Type: "Nope"})
	if !errors.Is(err, ErrUnsupportedCommand) {
		t.Fatalf("want ErrUnsupportedCommand, got %v", err)
	}
}
