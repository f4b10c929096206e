package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/DoyleJ11/code-battle-backend/internal/hub"
	"github.com/DoyleJ11/code-battle-backend/internal/room"
	"github.com/DoyleJ11/code-battle-backend/internal/types"
	pub "github.com/DoyleJ11/code-battle-backend/pkg/types"
)

var ErrBadMessage = errors.New("invalid message")
var ErrUnknownEvent = errors.New("unknown event type")
var ErrRoomNotFound = errors.New("room not found")
var ErrRateLimited = errors.New("too many messages")

const writeTimeout = 3 * time.Second

type Config struct {
	OriginPatterns []string
	MessageRate    float64
	MessageBurst   int
	PingInterval   time.Duration
	OutboxSize     int
	Logger         *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.MessageRate <= 0 {
		c.MessageRate = 20
	}
	if c.MessageBurst <= 0 {
		c.MessageBurst = 40
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.OutboxSize <= 0 {
		c.OutboxSize = 64
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// session is one websocket connection. It has no player until join-battle.
type session struct {
	hub     *hub.Hub
	client  room.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func Handler(h *hub.Hub, cfg Config) http.HandlerFunc {
	cfg = cfg.withDefaults()

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: cfg.OriginPatterns,
		})
		if err != nil {
			cfg.Logger.Warn("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		connID := uuid.NewString()
		s := &session{
			hub:     h,
			client:  room.Client{ID: connID, Outbox: room.NewOutbox(cfg.OutboxSize)},
			limiter: rate.NewLimiter(rate.Limit(cfg.MessageRate), cfg.MessageBurst),
			logger:  cfg.Logger.With(zap.String("conn", connID)),
		}
		s.logger.Debug("connection opened", zap.String("remote", r.RemoteAddr))

		ctx, cancel := context.WithCancel(r.Context())
		defer func() {
			cancel()
			s.client.Outbox.Close()
			h.Send(hub.Disconnect{ConnID: connID})
			s.logger.Debug("connection closed")
		}()

		go s.writeLoop(ctx, cancel, conn, cfg.PingInterval)
		s.readLoop(ctx, conn)
	}
}

func (s *session) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, pingEvery time.Duration) {
	defer cancel()

	ping := time.NewTicker(pingEvery)
	defer ping.Stop()

	out := s.client.Outbox
	for {
		select {
		case <-ctx.Done():
			return

		case <-out.Done():
			// the handler closes the outbox after cancel on a normal disconnect
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("closing slow connection")
			_ = conn.Close(websocket.StatusPolicyViolation, "too slow")
			return

		case msg := <-out.C():
			payload, err := json.Marshal(msg)
			if err != nil {
				s.logger.Error("encode server message", zap.String("type", msg.Type), zap.Error(err))
				continue
			}
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err = conn.Write(wctx, websocket.MessageText, payload)
			wcancel()
			if err != nil {
				return
			}

		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *session) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if ctx.Err() == nil {
					s.logger.Debug("read failed", zap.Error(err))
				}
			}
			return
		}

		if !s.limiter.Allow() {
			s.fail("", "", ErrRateLimited)
			continue
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			s.fail("", "", ErrBadMessage)
			continue
		}
		s.dispatch(ctx, cm)
	}
}

func (s *session) dispatch(ctx context.Context, cm types.ClientMessage) {
	switch cm.Type {
	case pub.EvtJoinBattle:
		s.join(ctx, cm)

	case pub.EvtCodeChange:
		s.toRoom(ctx, cm, room.ChangeCode{From: s.client, PlayerID: cm.PlayerID, Code: cm.Code})

	case pub.EvtRunTests:
		s.toRoom(ctx, cm, room.RunTests{From: s.client, PlayerID: cm.PlayerID, Code: cm.Code})

	case pub.EvtStartBattle:
		s.toRoom(ctx, cm, room.StartBattle{From: s.client})

	default:
		s.fail(cm.Type, cm.RoomKey, ErrUnknownEvent)
	}
}

func (s *session) join(ctx context.Context, cm types.ClientMessage) {
	reply := make(chan hub.JoinReply, 1)
	res, ok := request(ctx, s.hub, hub.Join{
		Key:   cm.RoomKey,
		From:  s.client,
		Name:  cm.PlayerName,
		Token: cm.PlayerToken,
		Reply: reply,
	}, reply)
	if !ok {
		return
	}

	err := res.Result.Err
	switch {
	case err == nil:
		s.logger.Info("joined room",
			zap.String("room", cm.RoomKey),
			zap.String("player", res.Result.PlayerID),
			zap.Int("players", res.Result.Players))
	case errors.Is(err, hub.ErrEmptyKey), errors.Is(err, room.ErrClosed):
		// rejected before reaching a room, so nobody has told the client yet
		s.fail(pub.EvtJoinBattle, cm.RoomKey, err)
	default:
		s.logger.Debug("join rejected", zap.String("room", cm.RoomKey), zap.Error(err))
	}
}

func (s *session) toRoom(ctx context.Context, cm types.ClientMessage, msg room.Msg) {
	reply := make(chan *room.Room, 1)
	rm, ok := request(ctx, s.hub, hub.GetRoom{Key: cm.RoomKey, Reply: reply}, reply)
	if !ok {
		return
	}
	if rm == nil || !rm.Send(msg) {
		s.fail(cm.Type, cm.RoomKey, ErrRoomNotFound)
	}
}

func (s *session) fail(event, roomKey string, err error) {
	s.client.Outbox.Send(types.ErrorMessage(event, roomKey, err))
}

// request sends msg to the hub and waits for its reply.
func request[T any](ctx context.Context, h *hub.Hub, msg hub.HubMsg, reply chan T) (T, bool) {
	var zero T
	if !h.Send(msg) {
		return zero, false
	}
	select {
	case v := <-reply:
		return v, true
	case <-ctx.Done():
		return zero, false
	case <-h.Done():
		return zero, false
	}
}
