package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/DoyleJ11/code-battle-backend/internal/catalog"
	"github.com/DoyleJ11/code-battle-backend/internal/hub"
	"github.com/DoyleJ11/code-battle-backend/internal/logging"
	"github.com/DoyleJ11/code-battle-backend/internal/ws"
)

type Deps struct {
	Hub            *hub.Hub
	Catalog        *catalog.Catalog
	Logger         *zap.Logger
	AllowedOrigins []string
	WS             ws.Config
}

func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.WS.OriginPatterns == nil {
		d.WS.OriginPatterns = originHosts(d.AllowedOrigins)
	}
	if d.WS.Logger == nil {
		d.WS.Logger = d.Logger
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logging.RequestLogger(d.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Post("/rooms", CreateRoom(d.Hub, d.Logger))
	r.Get("/rooms", ListRooms(d.Hub))
	r.Get("/rooms/{code}", GetRoom(d.Hub))
	r.Get("/problems", ListProblems(d.Catalog))
	r.Get("/problems/{id}", GetProblem(d.Catalog))
	r.Get("/ws", ws.Handler(d.Hub, d.WS))
	return r
}

// originHosts turns CORS origins into websocket origin patterns, which match
// on host only.
func originHosts(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		out = append(out, strings.TrimSuffix(o, "/"))
	}
	return out
}
