package sse

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/models"
)

const (
	EventCollectionCreated    = "collection_created"
	EventCollectionTransition = "collection_transition"
	EventParticipantAction    = "participant_action"
)

type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type CollectionCreatedEvent struct {
	CollectionID uuid.UUID `json:"collection_id"`
	TotalAmount  string    `json:"total_amount"`
	Description  string    `json:"description"`
	Participants int       `json:"participants"`
}

type TransitionEvent struct {
	CollectionID uuid.UUID               `json:"collection_id"`
	From         models.CollectionStatus `json:"from"`
	To           models.CollectionStatus `json:"to"`
	Forced       bool                    `json:"forced"`
}

type ParticipantActionEvent struct {
	CollectionID uuid.UUID                `json:"collection_id"`
	UserID       int64                    `json:"user_id"`
	Choice       string                   `json:"choice"`
	Status       models.ParticipantStatus `json:"status"`
	Recalculated bool                     `json:"recalculated"`
	Share        string                   `json:"share,omitempty"`
}

// Client is one admin dashboard connection. An empty Collections set
// receives events for every collection.
type Client struct {
	ID          string
	Collections map[uuid.UUID]bool
	Send        chan []byte
}

func (c *Client) wants(collectionID uuid.UUID) bool {
	return len(c.Collections) == 0 || c.Collections[collectionID]
}

type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *CollectionMessage
	mu         sync.RWMutex
}

type CollectionMessage struct {
	CollectionID uuid.UUID
	Event        Event
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *CollectionMessage, 256),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			data, _ := json.Marshal(msg.Event)
			for _, client := range h.clients {
				if client.wants(msg.CollectionID) {
					select {
					case client.Send <- data:
					default:
						// Client buffer full, skip
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) publish(collectionID uuid.UUID, eventType string, data interface{}) {
	msg := &CollectionMessage{
		CollectionID: collectionID,
		Event:        Event{Type: eventType, Data: data},
	}
	select {
	case h.broadcast <- msg:
	default:
		// Dashboard events are best effort; never block the caller
	}
}

func (h *Hub) BroadcastCreated(c *models.Collection, participants int) {
	h.publish(c.ID, EventCollectionCreated, CollectionCreatedEvent{
		CollectionID: c.ID,
		TotalAmount:  c.TotalAmount.StringFixed(2),
		Description:  c.Description,
		Participants: participants,
	})
}

func (h *Hub) BroadcastTransition(ev TransitionEvent) {
	h.publish(ev.CollectionID, EventCollectionTransition, ev)
}

func (h *Hub) BroadcastParticipantAction(ev ParticipantActionEvent) {
	h.publish(ev.CollectionID, EventParticipantAction, ev)
}
