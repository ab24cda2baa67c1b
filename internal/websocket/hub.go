package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xelth-com/commissariat/internal/logger"
	"github.com/xelth-com/commissariat/internal/models"
)

// Event types pushed to clients
const (
	EventDeclarationCreated = "declaration.created"
	EventDeclarationStatus  = "declaration.status"
	EventDeclarationDeleted = "declaration.deleted"
)

// Event is the message written to subscribed clients
type Event struct {
	Type        string       `json:"type"`
	Declaration EventPayload `json:"declaration"`
	At          time.Time    `json:"at"`
}

// EventPayload is the declaration summary carried by an event
type EventPayload struct {
	ID           string        `json:"id"`
	OwnerID      string        `json:"ownerId"`
	StationID    string        `json:"stationId"`
	Kind         models.Kind   `json:"kind"`
	Status       models.Status `json:"status"`
	RejectReason string        `json:"rejectReason,omitempty"`
}

// Hub maintains the set of active clients and routes declaration events
// to the accounts allowed to see them
type Hub struct {
	// Registered clients
	clients map[*Client]struct{}

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	log *logrus.Entry
	now func() time.Time
}

// NewHub creates a new Hub instance
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]struct{}),
		done:       make(chan struct{}),
		log:        logger.Or(log).Component("websocket"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run starts the hub's main loop; it returns when ctx is done and closes
// every remaining client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.log.WithFields(logrus.Fields{"account_id": client.AccountID, "role": client.Role}).Debug("client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.log.WithField("account_id", client.AccountID).Debug("client disconnected")
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// DisconnectAccount closes every connection of an account. Clients keep the
// role and station they connected with, so they reconnect after an access change.
func (h *Hub) DisconnectAccount(accountID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if client.AccountID == accountID {
			delete(h.clients, client)
			close(client.send)
		}
	}
	h.log.WithField("account_id", accountID).Debug("account connections closed")
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DeclarationCreated notifies the station's agents and the admins
func (h *Hub) DeclarationCreated(d *models.Declaration) {
	h.publish(EventDeclarationCreated, d, func(c *Client) bool {
		return c.isAdmin() || c.agentOf(d.StationID)
	})
}

// DeclarationStatusChanged notifies the owner, the station's agents and the admins
func (h *Hub) DeclarationStatusChanged(d *models.Declaration) {
	h.publish(EventDeclarationStatus, d, func(c *Client) bool {
		return c.AccountID == d.OwnerID || c.isAdmin() || c.agentOf(d.StationID)
	})
}

// DeclarationDeleted notifies the station's agents and the admins
func (h *Hub) DeclarationDeleted(d *models.Declaration) {
	h.publish(EventDeclarationDeleted, d, func(c *Client) bool {
		return c.isAdmin() || c.agentOf(d.StationID)
	})
}

// publish delivers best effort: a client whose buffer is full misses the event
func (h *Hub) publish(eventType string, d *models.Declaration, match func(*Client) bool) {
	msg, err := json.Marshal(Event{
		Type: eventType,
		Declaration: EventPayload{
			ID:           d.ID,
			OwnerID:      d.OwnerID,
			StationID:    d.StationID,
			Kind:         d.Kind,
			Status:       d.Status,
			RejectReason: d.RejectReason,
		},
		At: h.now(),
	})
	if err != nil {
		h.log.WithError(err).Error("marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !match(client) {
			continue
		}
		select {
		case client.send <- msg:
		default:
			h.log.WithField("account_id", client.AccountID).Warn("client buffer full, event dropped")
		}
	}
}
