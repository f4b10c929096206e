package hub

import (
	"context"
	"errors"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/DoyleJ11/code-battle-backend/internal/catalog"
	"github.com/DoyleJ11/code-battle-backend/internal/room"
)

var ErrEmptyKey = errors.New("room key is required")

type HubMsg interface{ isHubMsg() }

type EnsureRoom struct {
	Key   string
	Reply chan *room.Room
}

type GetRoom struct {
	Key   string
	Reply chan *room.Room // nil if the room does not exist
}

type RemoveRoom struct {
	Key string
}

// Join resolves (or creates) the room and applies the join before any other
// membership change can touch it.
type Join struct {
	Key   string
	From  room.Client
	Name  string
	Token string
	Reply chan JoinReply
}

type JoinReply struct {
	Room   *room.Room
	Result room.JoinResult
}

// Disconnect removes the connection's player from every room it is bound to.
type Disconnect struct {
	ConnID string
	Reply  chan int // rooms the connection left; may be nil
}

type ListRooms struct {
	Reply chan []RoomInfo
}

type RoomInfo struct {
	Code    string `json:"code"`
	Players int    `json:"players"`
}

type ShutdownHub struct{}

func (EnsureRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (Join) isHubMsg()        {}
func (Disconnect) isHubMsg()  {}
func (ListRooms) isHubMsg()   {}
func (ShutdownHub) isHubMsg() {}

type Config struct {
	Catalog *catalog.Catalog
	Room    room.Config
	Logger  *zap.Logger
}

type entry struct {
	room    *room.Room
	players int
}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*entry
	cfg    Config
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(parent context.Context, cfg Config) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Catalog == nil {
		cfg.Catalog = catalog.Builtin()
	}
	if cfg.Room.Logger == nil {
		cfg.Room.Logger = cfg.Logger
	}

	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*entry),
		cfg:    cfg,
		logger: cfg.Logger.With(zap.String("component", "hub")),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once the hub loop has exited.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Send queues m unless the hub has shut down.
func (h *Hub) Send(m HubMsg) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.inbox <- m:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) loop() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureRoom:
				msg.Reply <- h.ensure(msg.Key)

			case GetRoom:
				var rm *room.Room
				if e := h.rooms[msg.Key]; e != nil {
					rm = e.room
				}
				msg.Reply <- rm

			case RemoveRoom:
				h.remove(msg.Key)

			case Join:
				msg.Reply <- h.join(msg)

			case Disconnect:
				n := h.disconnect(msg.ConnID)
				if msg.Reply != nil {
					msg.Reply <- n
				}

			case ListRooms:
				msg.Reply <- h.list()

			case ShutdownHub:
				h.shutdown()
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) ensure(key string) *room.Room {
	if e := h.rooms[key]; e != nil {
		return e.room
	}
	rm := room.NewRoom(h.ctx, key, h.cfg.Catalog.Default(), h.cfg.Room)
	h.rooms[key] = &entry{room: rm}
	h.logger.Info("room created", zap.String("room", key))
	return rm
}

func (h *Hub) join(msg Join) JoinReply {
	key := msg.Key
	if strings.TrimSpace(key) == "" {
		return JoinReply{Result: room.JoinResult{Err: ErrEmptyKey}}
	}

	e := h.rooms[key]
	if e == nil {
		h.ensure(key)
		e = h.rooms[key]
	}

	reply := make(chan room.JoinResult, 1)
	if !e.room.Send(room.Join{From: msg.From, Name: msg.Name, Token: msg.Token, Reply: reply}) {
		delete(h.rooms, key)
		return JoinReply{Result: room.JoinResult{Err: room.ErrClosed}}
	}

	var res room.JoinResult
	select {
	case res = <-reply:
	case <-e.room.Done():
		delete(h.rooms, key)
		return JoinReply{Result: room.JoinResult{Err: room.ErrClosed}}
	}

	e.players = res.Players
	if res.Err != nil && res.Players == 0 {
		h.remove(key)
		return JoinReply{Result: res}
	}
	return JoinReply{Room: e.room, Result: res}
}

func (h *Hub) disconnect(connID string) int {
	left := 0
	for key, e := range h.rooms {
		reply := make(chan room.LeaveResult, 1)
		if !e.room.Send(room.Leave{ConnID: connID, Reply: reply}) {
			delete(h.rooms, key)
			continue
		}

		var res room.LeaveResult
		select {
		case res = <-reply:
		case <-e.room.Done():
			delete(h.rooms, key)
			continue
		}
		if !res.Removed {
			continue
		}

		left++
		e.players = res.Players
		if res.Players == 0 {
			h.remove(key)
		}
	}
	return left
}

func (h *Hub) remove(key string) {
	e := h.rooms[key]
	if e == nil {
		return
	}
	delete(h.rooms, key)
	e.room.Send(room.Shutdown{})
	h.logger.Info("room removed", zap.String("room", key))
}

func (h *Hub) list() []RoomInfo {
	out := make([]RoomInfo, 0, len(h.rooms))
	for key, e := range h.rooms {
		out = append(out, RoomInfo{Code: key, Players: e.players})
	}
	slices.SortFunc(out, func(a, b RoomInfo) int { return strings.Compare(a.Code, b.Code) })
	return out
}

func (h *Hub) shutdown() {
	for _, e := range h.rooms {
		e.room.Send(room.Shutdown{})
	}
	clear(h.rooms)
	h.logger.Info("hub shut down")
}
