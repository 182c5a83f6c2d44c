package http

import (
	"errors"
	"io"
	stdhttp "net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomcast-server/internal/auth"
	"github.com/vovakirdan/roomcast-server/internal/proto"
	"github.com/vovakirdan/roomcast-server/internal/registry"
)

// API serves the small REST surface next to the websocket endpoint. All of
// it is read-only diagnostics except the guest token issuer.
type API struct {
	reg    *registry.Registry
	tokens *auth.Tokens
	log    *zerolog.Logger
}

// NewAPI builds the REST handler set.
func NewAPI(reg *registry.Registry, tokens *auth.Tokens, logger *zerolog.Logger) *API {
	return &API{reg: reg, tokens: tokens, log: logger}
}

// ErrorResponse is the JSON error body for REST endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}

// GuestTokenRequest optionally names the guest.
type GuestTokenRequest struct {
	Username string `json:"username"`
}

// GuestTokenResponse carries the issued token and the resolved name.
type GuestTokenResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// StatsResponse reports registry-level counters.
type StatsResponse struct {
	Connections int `json:"connections"`
}

// GuestToken issues a display-name token. The body is optional; unnamed
// guests get a generated name.
func (a *API) GuestToken(c *gin.Context) {
	// The body is optional, so an absent body is fine; anything else that
	// fails to decode is surfaced at debug and the guest stays unnamed.
	var req GuestTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		a.log.Debug().Err(err).Msg("guest token body ignored")
	}

	name := strings.TrimSpace(req.Username)
	if name == "" {
		name = "guest-" + uuid.NewString()[:8]
	}

	token, err := a.tokens.Issue(name)
	if err != nil {
		a.log.Error().Err(err).Msg("issue guest token")
		c.JSON(stdhttp.StatusInternalServerError, ErrorResponse{Error: "failed to issue token"})
		return
	}

	c.JSON(stdhttp.StatusOK, GuestTokenResponse{Token: token, Username: name})
}

// RoomUsers returns who is currently in a room, straight from the registry.
func (a *API) RoomUsers(c *gin.Context) {
	room := c.Param("room")
	c.JSON(stdhttp.StatusOK, proto.RoomUsers{Room: room, Users: a.reg.UsersInRoom(room)})
}

// Stats returns connection-level counters.
func (a *API) Stats(c *gin.Context) {
	c.JSON(stdhttp.StatusOK, StatsResponse{Connections: a.reg.ActiveConnections()})
}
