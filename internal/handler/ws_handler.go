package handler

import (
	"net/http"

	"shine/backend/internal/hub"
	"shine/backend/pkg/jwt"
	"shine/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser websocket clients cannot set an Origin-independent header;
	// cross-origin policy is enforced at the gateway.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler upgrades HTTP connections into hub clients.
type WSHandler struct {
	hub *hub.Hub
}

func NewWSHandler(h *hub.Hub) *WSHandler {
	return &WSHandler{hub: h}
}

// Serve godoc
// @Summary      Open a realtime connection
// @Description  Upgrades to a websocket. A valid token query parameter joins the client to its personal room; without one the connection is anonymous and only receives room events it explicitly joins.
// @Tags         realtime
// @Param        token query string false "JWT"
// @Success      101
// @Router       /ws [get]
func (h *WSHandler) Serve(c *gin.Context) {
	// Browsers cannot set Authorization headers on websocket upgrades, so
	// the token rides a query parameter. An invalid token downgrades to an
	// anonymous connection instead of rejecting the upgrade.
	var userID *uint
	if token := c.Query("token"); token != "" {
		if id, err := jwt.ParseToken(token); err == nil {
			userID = &id
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Get().Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(h.hub, conn, userID)
	go client.WritePump()
	go client.ReadPump()
}
