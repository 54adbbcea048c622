package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ikkim/tabline-backend/pkg/logger"
)

// Event is what dashboards receive for every ticket link change.
type Event struct {
	Type         string      `json:"type"`
	RestaurantID uint        `json:"restaurant_id"`
	Data         interface{} `json:"data"`
	At           time.Time   `json:"at"`
}

// Client is one dashboard connection. A staff member may have several.
type Client struct {
	Hub          *Hub
	Conn         *Conn
	UserID       uint
	RestaurantID uint
	Send         chan []byte
}

type broadcastMessage struct {
	restaurantID uint
	payload      []byte
}

// Hub fans out events to the dashboards of one restaurant.
type Hub struct {
	// restaurant id -> connected clients
	rooms map[uint]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMessage

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[uint]map[*Client]struct{}),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		broadcast:  make(chan *broadcastMessage, 1024),
	}
}

// Run serves the hub until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, clients := range h.rooms {
				for client := range clients {
					close(client.Send)
				}
				delete(h.rooms, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			room, ok := h.rooms[client.RestaurantID]
			if !ok {
				room = make(map[*Client]struct{})
				h.rooms[client.RestaurantID] = room
			}
			room[client] = struct{}{}
			n := len(room)
			h.mu.Unlock()
			logger.Info("Dashboard connected", map[string]interface{}{
				"user_id":       client.UserID,
				"restaurant_id": client.RestaurantID,
				"connections":   n,
			})

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			var stale []*Client
			h.mu.RLock()
			for client := range h.rooms[msg.restaurantID] {
				select {
				case client.Send <- msg.payload:
				default:
					stale = append(stale, client)
				}
			}
			h.mu.RUnlock()
			for _, client := range stale {
				logger.Warn("Client send buffer full, disconnecting", map[string]interface{}{
					"user_id":       client.UserID,
					"restaurant_id": client.RestaurantID,
				})
				h.remove(client)
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[client.RestaurantID]
	if !ok {
		return
	}
	if _, ok := room[client]; !ok {
		return
	}
	delete(room, client)
	close(client.Send)
	if len(room) == 0 {
		delete(h.rooms, client.RestaurantID)
	}
	logger.Info("Dashboard disconnected", map[string]interface{}{
		"user_id":       client.UserID,
		"restaurant_id": client.RestaurantID,
	})
}

// PublishToRestaurant queues an event for the restaurant's dashboards.
// Events are dropped when the hub is saturated.
func (h *Hub) PublishToRestaurant(restaurantID uint, eventType string, data interface{}) {
	payload, err := json.Marshal(Event{
		Type:         eventType,
		RestaurantID: restaurantID,
		Data:         data,
		At:           time.Now(),
	})
	if err != nil {
		logger.Error("Failed to marshal event", err, map[string]interface{}{
			"type": eventType,
		})
		return
	}

	select {
	case h.broadcast <- &broadcastMessage{restaurantID: restaurantID, payload: payload}:
	default:
		logger.Warn("Broadcast channel full, event dropped", map[string]interface{}{
			"restaurant_id": restaurantID,
			"type":          eventType,
		})
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// ConnectedCount returns the number of live dashboards for a restaurant.
func (h *Hub) ConnectedCount(restaurantID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[restaurantID])
}
