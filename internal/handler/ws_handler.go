package handler

import (
	"net/http"
	"strings"
	"time"

	"venture-plan-server/internal/service"
	"venture-plan-server/internal/websocket"
	"venture-plan-server/pkg/jwt"
	"venture-plan-server/pkg/response"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type WebSocketHandler struct {
	manager        *websocket.Manager
	ventureService *service.VentureService
	jwtSecret      string
	jwtIssuer      string
	upgrader       ws.Upgrader
	logger         zerolog.Logger
}

func NewWebSocketHandler(
	manager *websocket.Manager,
	ventureService *service.VentureService,
	jwtSecret, jwtIssuer string,
	readBufferSize, writeBufferSize int,
	logger zerolog.Logger,
) *WebSocketHandler {
	return &WebSocketHandler{
		manager:        manager,
		ventureService: ventureService,
		jwtSecret:      jwtSecret,
		jwtIssuer:      jwtIssuer,
		upgrader: ws.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
}

// HandleConnection subscribes the caller to one venture's events. Browsers
// cannot set headers on upgrade requests, so the token may come in ?token=.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		response.Unauthorized(w, "missing authorization token")
		return
	}

	claims, err := jwt.ValidateTokenWithIssuer(token, h.jwtSecret, h.jwtIssuer)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket token rejected")
		response.Unauthorized(w, "invalid token")
		return
	}

	ventureID := r.URL.Query().Get("venture_id")
	if ventureID == "" {
		response.BadRequest(w, "venture_id is required")
		return
	}

	if err := h.ventureService.CanAccess(r.Context(), claims.UserID, ventureID); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("user_id", claims.UserID).Msg("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(uuid.New().String(), claims.UserID, ventureID, conn, h.manager)
	if !h.manager.Subscribe(client) {
		conn.WriteControl(ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
