// Package sse fans curation decisions out to browsers watching a community.
package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventRecordAccepted = "record_accepted"
	EventRecordRejected = "record_rejected"
)

type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type CurationEvent struct {
	CommunityID string    `json:"community_id"`
	RecID       int       `json:"recid"`
	Action      string    `json:"action"`
	Actor       uuid.UUID `json:"actor"`
	At          time.Time `json:"at"`
}

type Client struct {
	ID          string
	UserID      uuid.UUID
	Communities map[string]bool
	Send        chan []byte
}

func NewClient(userID uuid.UUID, communityIDs ...string) *Client {
	subs := make(map[string]bool, len(communityIDs))
	for _, id := range communityIDs {
		subs[id] = true
	}
	return &Client{
		ID:          uuid.New().String(),
		UserID:      userID,
		Communities: subs,
		Send:        make(chan []byte, 64),
	}
}

type communityMessage struct {
	CommunityID string
	Event       Event
}

type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *communityMessage
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *communityMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx is done. Clients still
// connected at that point have their Send channel closed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				close(client.Send)
			}
			h.mu.Unlock()
			return

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
			data, err := json.Marshal(msg.Event)
			if err != nil {
				continue
			}
			h.mu.RLock()
			for _, client := range h.clients {
				if !client.Communities[msg.CommunityID] {
					continue
				}
				select {
				case client.Send <- data:
				default:
					// slow reader, drop
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastCuration publishes a decision to every client subscribed to the
// community. It never blocks the caller; events are dropped when the queue
// is full.
func (h *Hub) BroadcastCuration(communityID string, recid int, action string, actor uuid.UUID) {
	eventType := EventRecordRejected
	if action == "accept" {
		eventType = EventRecordAccepted
	}

	msg := &communityMessage{
		CommunityID: communityID,
		Event: Event{
			Type: eventType,
			Data: CurationEvent{
				CommunityID: communityID,
				RecID:       recid,
				Action:      action,
				Actor:       actor,
				At:          time.Now().UTC(),
			},
		},
	}

	select {
	case h.broadcast <- msg:
	default:
	}
}
