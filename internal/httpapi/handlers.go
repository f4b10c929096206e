package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/code-battle-backend/internal/catalog"
	"github.com/DoyleJ11/code-battle-backend/internal/hub"
	"github.com/DoyleJ11/code-battle-backend/internal/room"
	pub "github.com/DoyleJ11/code-battle-backend/pkg/types"
)

const (
	codeAttempts = 10
	hubTimeout   = 2 * time.Second
)

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

// CreateRoom hands out an unused room code. The room itself is created by
// the first join-battle that names it.
func CreateRoom(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for attempt := 0; attempt < codeAttempts; attempt++ {
			code, err := GenerateCode()
			if err != nil {
				logger.Error("generate room code", zap.Error(err))
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}

			rm, ok := lookup(r.Context(), h, code)
			if !ok {
				http.Error(w, "server shutting down", http.StatusServiceUnavailable)
				return
			}
			if rm != nil {
				logger.Debug("collision on room code, regenerating", zap.String("code", code))
				continue
			}

			writeJSON(w, http.StatusCreated, struct {
				Code string `json:"code"`
			}{Code: code})
			return
		}
		http.Error(w, "failed to generate code", http.StatusInternalServerError)
	}
}

func ListRooms(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan []hub.RoomInfo, 1)
		rooms, ok := await(r.Context(), h.Send(hub.ListRooms{Reply: reply}), reply)
		if !ok {
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, rooms)
	}
}

func GetRoom(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")

		rm, ok := lookup(r.Context(), h, code)
		if !ok {
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		}
		if rm == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		reply := make(chan room.View, 1)
		v, ok := await(r.Context(), rm.Send(room.GetState{Reply: reply}), reply)
		if !ok {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, v.Snapshot)
	}
}

func ListProblems(c *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all := c.All()
		out := make([]*pub.ProblemSnapshot, 0, len(all))
		for _, p := range all {
			out = append(out, room.ProblemSummary(p))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func GetProblem(c *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := c.Get(chi.URLParam(r, "id"))
		if errors.Is(err, catalog.ErrProblemNotFound) {
			http.Error(w, "problem not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, room.ProblemSummary(p))
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func lookup(ctx context.Context, h *hub.Hub, code string) (*room.Room, bool) {
	reply := make(chan *room.Room, 1)
	return await(ctx, h.Send(hub.GetRoom{Key: code, Reply: reply}), reply)
}

// await waits for a reply to a message that was (sent == true) queued.
func await[T any](ctx context.Context, sent bool, reply chan T) (T, bool) {
	var zero T
	if !sent {
		return zero, false
	}
	ctx, cancel := context.WithTimeout(ctx, hubTimeout)
	defer cancel()

	select {
	case v := <-reply:
		return v, true
	case <-ctx.Done():
		return zero, false
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
