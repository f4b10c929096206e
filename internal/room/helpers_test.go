package room

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/code-battle-backend/internal/catalog"
	"github.com/DoyleJ11/code-battle-backend/internal/engine"
	"github.com/DoyleJ11/code-battle-backend/internal/judge"
	"github.com/DoyleJ11/code-battle-backend/internal/types"
)

const within = time.Second

func testProblem() catalog.Problem {
	return catalog.Problem{
		ID:          "palindrome-number",
		Title:       "Palindrome Number",
		StarterCode: "function isPalindrome(x) {}",
		TestCases: []catalog.TestCase{
			{Input: json.RawMessage(`121`), Expected: json.RawMessage(`true`)},
			{Input: json.RawMessage(`-121`), Expected: json.RawMessage(`false`)},
			{Input: json.RawMessage(`10`), Expected: json.RawMessage(`false`)},
		},
	}
}

// --- ticker ---

type fakeTicker struct {
	mu      sync.Mutex
	c       chan time.Time
	started int
	stopped int
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{c: make(chan time.Time)}
}

func (f *fakeTicker) New(time.Duration) (<-chan time.Time, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	return f.c, func() {
		f.mu.Lock()
		f.stopped++
		f.mu.Unlock()
	}
}

func (f *fakeTicker) counts() (started, stopped int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started, f.stopped
}

// tick reports whether the room consumed the tick within d.
func (f *fakeTicker) tick(d time.Duration) bool {
	select {
	case f.c <- time.Now():
		return true
	case <-time.After(d):
		return false
	}
}

// --- graders ---

type MockGrader struct {
	mock.Mock
}

func (m *MockGrader) Grade(ctx context.Context, code string, cases []catalog.TestCase) ([]judge.Verdict, error) {
	args := m.Called(ctx, code, cases)
	v, _ := args.Get(0).([]judge.Verdict)
	return v, args.Error(1)
}

type gradeCall struct {
	code  string
	reply chan gradeReply
}

type gradeReply struct {
	verdicts []judge.Verdict
	err      error
}

// gatedGrader hands every call to the test, which decides when it completes.
type gatedGrader struct {
	calls chan gradeCall
}

func newGatedGrader() *gatedGrader {
	return &gatedGrader{calls: make(chan gradeCall, 8)}
}

func (g *gatedGrader) Grade(_ context.Context, code string, _ []catalog.TestCase) ([]judge.Verdict, error) {
	call := gradeCall{code: code, reply: make(chan gradeReply, 1)}
	g.calls <- call
	r := <-call.reply
	return r.verdicts, r.err
}

func (g *gatedGrader) next(t *testing.T) gradeCall {
	t.Helper()
	select {
	case c := <-g.calls:
		return c
	case <-time.After(within):
		t.Fatalf("timed out waiting for a grading call")
		return gradeCall{}
	}
}

func verdicts(passed ...bool) []judge.Verdict {
	out := make([]judge.Verdict, len(passed))
	for i, p := range passed {
		if p {
			out[i].Status.ID = judge.StatusAccepted
		} else {
			out[i].Status.ID = 4
		}
	}
	return out
}

// --- room ---

func newTestRoom(t *testing.T, grader judge.Grader, rules engine.Rules) (*Room, *fakeTicker) {
	t.Helper()
	ft := newFakeTicker()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := NewRoom(ctx, "abc123", testProblem(), Config{
		Rules:     rules,
		NewTicker: ft.New,
		Grader:    grader,
		Logger:    zap.NewNop(),
	})
	return r, ft
}

func join(t *testing.T, r *Room, connID, name string) (Client, JoinResult) {
	t.Helper()
	c := Client{ID: connID, Outbox: NewOutbox(64)}
	return c, joinWith(t, r, c, name, "")
}

func joinWith(t *testing.T, r *Room, c Client, name, token string) JoinResult {
	t.Helper()
	reply := make(chan JoinResult, 1)
	r.Inbox() <- Join{From: c, Name: name, Token: token, Reply: reply}
	select {
	case res := <-reply:
		return res
	case <-time.After(within):
		t.Fatalf("timed out waiting for join reply")
		return JoinResult{}
	}
}

func leave(t *testing.T, r *Room, connID string) LeaveResult {
	t.Helper()
	reply := make(chan LeaveResult, 1)
	r.Inbox() <- Leave{ConnID: connID, Reply: reply}
	select {
	case res := <-reply:
		return res
	case <-time.After(within):
		t.Fatalf("timed out waiting for leave reply")
		return LeaveResult{}
	}
}

func view(t *testing.T, r *Room) View {
	t.Helper()
	reply := make(chan View, 1)
	r.Inbox() <- GetState{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{}
	}
}

// expect reads until a message of type typ shows up.
func expect(t *testing.T, o *Outbox, typ string) types.ServerMessage {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case m := <-o.C():
			if m.Type == typ {
				return m
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", typ)
			return types.ServerMessage{}
		}
	}
}

func expectNone(t *testing.T, o *Outbox, typ string, d time.Duration) {
	t.Helper()
	deadline := time.After(d)
	for {
		select {
		case m := <-o.C():
			require.NotEqual(t, typ, m.Type, "unexpected %q: %+v", typ, m)
		case <-deadline:
			return
		}
	}
}

func drain(o *Outbox) {
	for {
		select {
		case <-o.C():
		default:
			return
		}
	}
}

func collect(t *testing.T, o *Outbox, typ string, n int) []types.ServerMessage {
	t.Helper()
	out := make([]types.ServerMessage, 0, n)
	for len(out) < n {
		out = append(out, expect(t, o, typ))
	}
	return out
}

// startedRoom returns an Active room with Alice and Bob.
func startedRoom(t *testing.T, grader judge.Grader, rules engine.Rules) (*Room, *fakeTicker, Client, Client, string, string) {
	t.Helper()
	r, ft := newTestRoom(t, grader, rules)
	alice, ra := join(t, r, "c-alice", "Alice")
	bob, rb := join(t, r, "c-bob", "Bob")
	r.Inbox() <- StartBattle{From: alice}
	require.True(t, view(t, r).State.BattleStarted())
	drain(alice.Outbox)
	drain(bob.Outbox)
	return r, ft, alice, bob, ra.PlayerID, rb.PlayerID
}
