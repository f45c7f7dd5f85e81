package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/kelasku-dev/kelasku-go-api/internal/service"
)

// LiveUpdateHandler exposes the course live-update stream over websocket.
type LiveUpdateHandler struct {
	updates service.LiveUpdateService
	logger  zerolog.Logger
}

// NewLiveUpdateHandler creates a live-update handler instance.
func NewLiveUpdateHandler(updates service.LiveUpdateService, logger zerolog.Logger) *LiveUpdateHandler {
	return &LiveUpdateHandler{
		updates: updates,
		logger:  logger.With().Str("component", "live_update_handler").Logger(),
	}
}

// Register binds the websocket upgrade under the provided router group.
func (h *LiveUpdateHandler) Register(router fiber.Router) {
	router.Use("/courses/:id/updates", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/courses/:id/updates", websocket.New(h.handleConnection))
}

func (h *LiveUpdateHandler) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	courseID, err := strconv.ParseUint(conn.Params("id"), 10, 64)
	if err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(fiber.StatusBadRequest, "invalid course id"))
		return
	}

	updates, cancel := h.updates.Subscribe(uint(courseID))
	defer cancel()

	h.logger.Info().Uint64("course_id", courseID).Msg("live update subscriber connected")
	defer h.logger.Info().Uint64("course_id", courseID).Msg("live update subscriber disconnected")

	// The read pump exists only to observe the close handshake; subscribers
	// never send application messages.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if writeErr := conn.WriteJSON(update); writeErr != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
