package handlers

import (
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/sse"
)

type SSEHandler struct {
	hub SSEHubInterface
}

func NewSSEHandler(hub SSEHubInterface) *SSEHandler {
	return &SSEHandler{hub: hub}
}

// Connect streams collection events. ?collection=<id> narrows the stream
// to one collection; without it every collection is delivered.
func (h *SSEHandler) Connect(c *drift.Context) {
	collections := make(map[uuid.UUID]bool)
	if raw := c.QueryParam("collection"); raw != "" {
		collectionID, err := uuid.Parse(raw)
		if err != nil {
			c.BadRequest("invalid collection id")
			return
		}
		collections[collectionID] = true
	}

	sseCtx := c.SSE()

	clientID := uuid.New().String()
	client := &sse.Client{
		ID:          clientID,
		Collections: collections,
		Send:        make(chan []byte, 256),
	}

	h.hub.Register(client)
	defer h.hub.Unregister(client)

	if err := sseCtx.SendJSON(map[string]string{
		"type":      "connected",
		"client_id": clientID,
	}, "system", ""); err != nil {
		return
	}

	done := c.Request.Context().Done()
	for {
		select {
		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			if err := sseCtx.Send(string(msg), "message", ""); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
