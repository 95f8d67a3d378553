package handlers

import (
	"errors"

	"github.com/dimitrije/communities/internal/middleware"
	"github.com/dimitrije/communities/internal/services"
	"github.com/dimitrije/communities/internal/sse"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
)

type EventsHandler struct {
	hub         EventHubInterface
	communities CommunityServiceInterface
}

func NewEventsHandler(hub EventHubInterface, communities CommunityServiceInterface) *EventsHandler {
	return &EventsHandler{
		hub:         hub,
		communities: communities,
	}
}

// Stream pushes curation decisions of one community to its owner.
func (h *EventsHandler) Stream(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	community, err := h.communities.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, services.ErrCommunityNotFound) {
		c.NotFound("community not found")
		return
	}
	if err != nil {
		c.InternalServerError("failed to load community")
		return
	}
	if !community.IsOwner(userID) {
		c.NotFound("community not found")
		return
	}

	stream := c.SSE()

	client := sse.NewClient(userID, community.ID)
	h.hub.Register(client)
	defer h.hub.Unregister(client)

	if err := stream.SendJSON(map[string]string{
		"type":         "connected",
		"client_id":    client.ID,
		"community_id": community.ID,
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
			if err := stream.Send(string(msg), "curation", ""); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
