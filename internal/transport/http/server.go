package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomcast-server/internal/auth"
	"github.com/vovakirdan/roomcast-server/internal/config"
	"github.com/vovakirdan/roomcast-server/internal/gateway"
	"github.com/vovakirdan/roomcast-server/internal/metrics"
	"github.com/vovakirdan/roomcast-server/internal/registry"
)

// NewServer builds the HTTP server: websocket endpoint, REST API, health
// and metrics routes.
func NewServer(hub *Hub, gw *gateway.Gateway, reg *registry.Registry, tokens *auth.Tokens, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := NewAPI(reg, tokens, logger)
	group := router.Group("/api")
	group.POST("/auth/guest", api.GuestToken)
	group.GET("/rooms/:room/users", api.RoomUsers)
	group.GET("/stats", api.Stats)

	// The websocket upgrade hijacks the connection after writing the 101
	// handshake; gin's response writer refuses to hijack once anything
	// has been written, so /ws is served outside the gin chain.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, gw, tokens, cfg.SendBuffer, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
