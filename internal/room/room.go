package room

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/code-battle-backend/internal/catalog"
	"github.com/DoyleJ11/code-battle-backend/internal/engine"
	"github.com/DoyleJ11/code-battle-backend/internal/judge"
	"github.com/DoyleJ11/code-battle-backend/internal/types"
	pub "github.com/DoyleJ11/code-battle-backend/pkg/types"
)

var ErrNotJoined = errors.New("not joined to this room")
var ErrNotYourPlayer = errors.New("player is not bound to this connection")
var ErrGradingInFlight = errors.New("grading already in progress")
var ErrGradingFailed = errors.New("grading failed")
var ErrClosed = errors.New("room closed")

type Msg interface{ isRoomMsg() }

// Client identifies the connection a request came from.
type Client struct {
	ID     string
	Outbox *Outbox
}

type Join struct {
	From  Client
	Name  string
	Token string // optional rejoin token from an earlier player-assigned
	Reply chan JoinResult
}

func (Join) isRoomMsg() {}

type JoinResult struct {
	PlayerID string
	Token    string
	Players  int
	Err      error
}

type Leave struct {
	ConnID string
	Reply  chan LeaveResult
}

func (Leave) isRoomMsg() {}

type LeaveResult struct {
	Removed bool
	Players int
}

type ChangeCode struct {
	From     Client
	PlayerID string
	Code     string
}

func (ChangeCode) isRoomMsg() {}

type RunTests struct {
	From     Client
	PlayerID string
	Code     string
}

func (RunTests) isRoomMsg() {}

type StartBattle struct {
	From Client
}

func (StartBattle) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type gradeDone struct {
	playerID string
	verdicts []judge.Verdict
	err      error
}

func (gradeDone) isRoomMsg() {}

type View struct {
	Key        string
	Version    int
	NumClients int
	Grading    int
	TimerLive  bool
	State      engine.State
	Snapshot   pub.RoomSnapshot
}

// TickerFunc returns a tick channel and its stop function.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

func RealTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

type Config struct {
	Rules        engine.Rules
	TickInterval time.Duration
	GradeTimeout time.Duration
	NewTicker    TickerFunc
	Grader       judge.Grader
	Logger       *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.Rules == (engine.Rules{}) {
		c.Rules = engine.DefaultRules()
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.GradeTimeout <= 0 {
		c.GradeTimeout = 30 * time.Second
	}
	if c.NewTicker == nil {
		c.NewTicker = RealTicker
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

type Room struct {
	key     string
	inbox   chan Msg
	state   engine.State
	version int
	cfg     Config
	logger  *zap.Logger

	conns    map[string]string  // connection id -> player id
	outboxes map[string]*Outbox // player id -> outbox; absent once dropped
	tokens   map[string]string  // rejoin token -> player id
	grading  map[string]bool    // player id -> run in flight

	tickC    <-chan time.Time
	stopTick func()

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRoom(parent context.Context, key string, problem catalog.Problem, cfg Config) *Room {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(parent)

	r := &Room{
		key:      key,
		inbox:    make(chan Msg, 64),
		state:    engine.NewState(problem, cfg.Rules),
		cfg:      cfg,
		logger:   cfg.Logger.With(zap.String("room", key)),
		conns:    make(map[string]string),
		outboxes: make(map[string]*Outbox),
		tokens:   make(map[string]string),
		grading:  make(map[string]bool),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go r.loop()
	return r
}

func (r *Room) Key() string { return r.key }

// Send queues m unless the room has shut down.
func (r *Room) Send(m Msg) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.inbox <- m:
		return true
	case <-r.done:
		return false
	}
}

// Done is closed once the room loop has exited.
func (r *Room) Done() <-chan struct{} { return r.done }

func (r *Room) loop() {
	defer close(r.done)

	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case <-r.tickC:
			r.handleTick()

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				msg.Reply <- r.handleJoin(msg)

			case Leave:
				msg.Reply <- r.handleLeave(msg)

			case ChangeCode:
				r.handleChangeCode(msg)

			case StartBattle:
				r.handleStart(msg)

			case RunTests:
				r.handleRunTests(msg)

			case gradeDone:
				r.handleGradeDone(msg)

			case GetState:
				msg.Reply <- r.view()

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) shutdown() {
	r.stopTimer()
	r.cancel()
	r.logger.Debug("room shut down")
}

func (r *Room) handleJoin(msg Join) JoinResult {
	if pid, ok := r.conns[msg.From.ID]; ok {
		// Same connection joining again: repeat the assignment.
		r.assign(msg.From.Outbox, pid)
		r.broadcastState()
		return JoinResult{PlayerID: pid, Token: r.tokenOf(pid), Players: len(r.state.Players)}
	}

	if pid, ok := r.tokens[msg.Token]; ok && msg.Token != "" {
		r.rebind(msg.From, pid)
		r.logger.Info("player rebound", zap.String("player", pid), zap.String("conn", msg.From.ID))
		r.assign(msg.From.Outbox, pid)
		r.broadcastState()
		return JoinResult{PlayerID: pid, Token: msg.Token, Players: len(r.state.Players)}
	}

	pid := uuid.NewString()
	_, next, err := engine.Apply(r.state, engine.Command{Type: engine.CmdJoin, PlayerID: pid, Name: msg.Name})
	if err != nil {
		r.reject(msg.From.Outbox, pub.EvtJoinBattle, err)
		return JoinResult{Players: len(r.state.Players), Err: err}
	}
	r.state = next

	token := uuid.NewString()
	r.tokens[token] = pid
	r.conns[msg.From.ID] = pid
	r.outboxes[pid] = msg.From.Outbox

	r.logger.Info("player joined", zap.String("player", pid), zap.String("name", msg.Name), zap.Int("players", len(r.state.Players)))
	r.assign(msg.From.Outbox, pid)
	r.broadcastState()
	return JoinResult{PlayerID: pid, Token: token, Players: len(r.state.Players)}
}

func (r *Room) rebind(from Client, pid string) {
	for conn, p := range r.conns {
		if p == pid {
			delete(r.conns, conn)
		}
	}
	r.conns[from.ID] = pid
	r.outboxes[pid] = from.Outbox
}

func (r *Room) assign(to *Outbox, pid string) {
	to.Send(types.ServerMessage{
		Type:        pub.EvtPlayerAssigned,
		RoomKey:     r.key,
		PlayerID:    pid,
		PlayerToken: r.tokenOf(pid),
	})
}

func (r *Room) tokenOf(pid string) string {
	for token, p := range r.tokens {
		if p == pid {
			return token
		}
	}
	return ""
}

func (r *Room) handleLeave(msg Leave) LeaveResult {
	pid, ok := r.conns[msg.ConnID]
	if !ok {
		return LeaveResult{Players: len(r.state.Players)}
	}
	delete(r.conns, msg.ConnID)

	_, next, err := engine.Apply(r.state, engine.Command{Type: engine.CmdLeave, PlayerID: pid})
	if err != nil {
		r.logger.Warn("leave for unbound player", zap.String("player", pid), zap.Error(err))
		return LeaveResult{Players: len(r.state.Players)}
	}
	r.state = next
	delete(r.outboxes, pid)
	delete(r.grading, pid)
	delete(r.tokens, r.tokenOf(pid))

	r.logger.Info("player left", zap.String("player", pid), zap.Int("players", len(r.state.Players)))
	if len(r.state.Players) > 0 {
		r.broadcastState()
	}
	return LeaveResult{Removed: true, Players: len(r.state.Players)}
}

func (r *Room) handleChangeCode(msg ChangeCode) {
	pid, ok := r.authorize(msg.From, msg.PlayerID, pub.EvtCodeChange)
	if !ok {
		return
	}
	_, next, err := engine.Apply(r.state, engine.Command{Type: engine.CmdChangeCode, PlayerID: pid, Code: msg.Code})
	if err != nil {
		r.reject(msg.From.Outbox, pub.EvtCodeChange, err)
		return
	}
	r.state = next

	code := msg.Code
	r.broadcastExcept(pid, types.ServerMessage{Type: pub.EvtCodeUpdate, RoomKey: r.key, PlayerID: pid, Code: &code})
	r.broadcastState()
}

func (r *Room) handleStart(msg StartBattle) {
	if _, ok := r.conns[msg.From.ID]; !ok {
		r.reject(msg.From.Outbox, pub.EvtStartBattle, ErrNotJoined)
		return
	}
	_, next, err := engine.Apply(r.state, engine.Command{Type: engine.CmdStartBattle})
	if err != nil {
		r.reject(msg.From.Outbox, pub.EvtStartBattle, err)
		return
	}
	r.state = next
	r.startTimer()

	r.logger.Info("battle started", zap.Int("time_left", r.state.TimeLeft))
	r.broadcastState()
}

func (r *Room) handleTick() {
	events, next, err := engine.Apply(r.state, engine.Command{Type: engine.CmdTick})
	if err != nil {
		// stale tick after the battle left Active
		r.stopTimer()
		return
	}
	r.state = next

	if ended, ok := engine.FindEvent(events, engine.EvtBattleEnded); ok {
		r.endBattle(ended)
	}
	r.broadcastState()
}

func (r *Room) handleRunTests(msg RunTests) {
	pid, ok := r.authorize(msg.From, msg.PlayerID, pub.EvtRunTests)
	if !ok {
		return
	}
	if r.grading[pid] {
		r.reject(msg.From.Outbox, pub.EvtRunTests, ErrGradingInFlight)
		return
	}
	if err := engine.CanGrade(r.state, pid); err != nil {
		r.reject(msg.From.Outbox, pub.EvtRunTests, err)
		return
	}
	if r.cfg.Grader == nil {
		r.logger.Error("no grader configured")
		r.reject(msg.From.Outbox, pub.EvtRunTests, ErrGradingFailed)
		return
	}

	r.grading[pid] = true
	cases := r.state.Problem.TestCases
	r.logger.Info("grading started", zap.String("player", pid), zap.Int("cases", len(cases)))
	go r.grade(pid, msg.Code, cases)
}

// grade runs off the room goroutine; its result re-enters through the inbox.
func (r *Room) grade(pid, code string, cases []catalog.TestCase) {
	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.GradeTimeout)
	defer cancel()

	verdicts, err := r.cfg.Grader.Grade(ctx, code, cases)
	r.Send(gradeDone{playerID: pid, verdicts: verdicts, err: err})
}

func (r *Room) handleGradeDone(msg gradeDone) {
	delete(r.grading, msg.playerID)
	to := r.outboxes[msg.playerID]

	if _, ok := r.state.Player(msg.playerID); !ok {
		r.logger.Debug("grading result for departed player dropped", zap.String("player", msg.playerID))
		return
	}
	if msg.err != nil {
		r.logger.Error("grading failed", zap.String("player", msg.playerID), zap.Error(msg.err))
		r.reject(to, pub.EvtRunTests, ErrGradingFailed)
		return
	}

	events, next, err := engine.Apply(r.state, engine.Command{
		Type:     engine.CmdApplyGrade,
		PlayerID: msg.playerID,
		Results:  judge.PassFlags(msg.verdicts),
	})
	if err != nil {
		if errors.Is(err, engine.ErrVerdictMismatch) {
			r.logger.Error("grading result rejected", zap.String("player", msg.playerID), zap.Error(err))
		}
		r.reject(to, pub.EvtRunTests, err)
		return
	}
	r.state = next

	for _, e := range events {
		switch e.Type {
		case engine.EvtTestCaseResult:
			passed, score := e.Passed, e.Score
			r.sendTo(to, types.ServerMessage{
				Type:     pub.EvtTestResult,
				RoomKey:  r.key,
				PlayerID: e.PlayerID,
				Passed:   &passed,
				Score:    &score,
			})
		case engine.EvtScoreAwarded:
			p, _ := r.state.Player(e.PlayerID)
			r.logger.Info("grading applied", zap.String("player", e.PlayerID), zap.Int("passed", p.TestsPassed), zap.Int("score", e.Score))
		case engine.EvtBattleEnded:
			r.endBattle(e)
		}
	}
	r.broadcastState()
}

func (r *Room) endBattle(e engine.Event) {
	r.stopTimer()
	r.logger.Info("battle ended", zap.String("winner", e.Winner), zap.String("reason", string(e.Reason)))
	r.broadcast(types.ServerMessage{Type: pub.EvtBattleEnded, RoomKey: r.key, Winner: e.Winner})
}

func (r *Room) startTimer() {
	if r.tickC != nil {
		return
	}
	r.tickC, r.stopTick = r.cfg.NewTicker(r.cfg.TickInterval)
}

func (r *Room) stopTimer() {
	if r.stopTick != nil {
		r.stopTick()
	}
	r.tickC = nil
	r.stopTick = nil
}

// authorize checks that the connection is bound to playerID in this room.
func (r *Room) authorize(from Client, playerID, event string) (string, bool) {
	pid, ok := r.conns[from.ID]
	if !ok {
		r.reject(from.Outbox, event, ErrNotJoined)
		return "", false
	}
	if playerID != "" && playerID != pid {
		r.reject(from.Outbox, event, ErrNotYourPlayer)
		return "", false
	}
	return pid, true
}

func (r *Room) reject(to *Outbox, event string, err error) {
	r.logger.Debug("request rejected", zap.String("event", event), zap.Error(err))
	r.sendTo(to, types.ErrorMessage(event, r.key, err))
}

func (r *Room) sendTo(to *Outbox, m types.ServerMessage) {
	if to == nil {
		return
	}
	if !to.Send(m) {
		r.drop(to)
	}
}

func (r *Room) broadcastState() {
	r.version++
	snap := r.snapshot()
	r.broadcast(types.ServerMessage{Type: pub.EvtBattleStateUpdate, Version: r.version, State: &snap})
}

func (r *Room) broadcast(m types.ServerMessage) {
	r.broadcastExcept("", m)
}

func (r *Room) broadcastExcept(skip string, m types.ServerMessage) {
	for _, p := range r.state.Players {
		if p.ID == skip {
			continue
		}
		if out, ok := r.outboxes[p.ID]; ok && !out.Send(m) {
			// Client is slow/full - drop them. The connection's disconnect
			// removes the player.
			r.drop(out)
		}
	}
}

func (r *Room) drop(out *Outbox) {
	out.Close()
	for pid, o := range r.outboxes {
		if o == out {
			delete(r.outboxes, pid)
			r.logger.Warn("dropped slow client", zap.String("player", pid))
		}
	}
}

func (r *Room) view() View {
	s := r.state
	s.Players = slices.Clone(r.state.Players)
	return View{
		Key:        r.key,
		Version:    r.version,
		NumClients: len(r.outboxes),
		Grading:    len(r.grading),
		TimerLive:  r.tickC != nil,
		State:      s,
		Snapshot:   r.snapshot(),
	}
}

// Inbox exposes the raw inbox so tests can queue messages directly.
func (r *Room) Inbox() chan<- Msg { return r.inbox }
