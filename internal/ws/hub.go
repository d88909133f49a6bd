// Package ws streams roll pressure snapshots to WebSocket subscribers.
package ws

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dgnsrekt/roll-pressure/internal/data"
)

// SnapshotSource provides the snapshot sent to newly connected clients.
type SnapshotSource interface {
	Current() (*data.Snapshot, error)
}

// Hub manages WebSocket connections and their market subscriptions.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	source     SnapshotSource
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewHub creates a new Hub.
func NewHub(source SnapshotSource, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		source:     source,
		logger:     logger,
	}
}

// Run processes hub events. Call this in a goroutine.
// Returns when context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("hub shutting down")
			h.shutdown()
			close(h.done)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", zap.String("connID", client.connID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", zap.String("connID", client.connID))
		}
	}
}

// add hands client to Run. It reports false once the hub has stopped.
func (h *Hub) add(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// remove hands client to Run for disconnect. It returns immediately once
// the hub has stopped.
func (h *Hub) remove(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// shutdown gracefully closes all client connections.
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// Subscribe restricts a client to a market. A client with no subscriptions
// receives every market.
func (h *Hub) Subscribe(client *Client, market string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.markets[market] = true
	h.logger.Debug("client subscribed",
		zap.String("connID", client.connID),
		zap.String("market", market),
	)
}

// Unsubscribe removes a market from a client's subscriptions.
func (h *Hub) Unsubscribe(client *Client, market string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(client.markets, market)
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastSnapshot sends snap to every client, filtered by each client's
// subscriptions.
func (h *Hub) BroadcastSnapshot(snap *data.Snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		msg := buildSnapshotMessage(snap, client.markets)
		select {
		case client.send <- msg:
		default:
			// Buffer full, schedule disconnect
			go h.remove(client)
		}
	}

	h.logger.Debug("snapshot broadcast",
		zap.String("runID", snap.RunID),
		zap.Int("clients", len(h.clients)),
	)
}

// snapshotFor builds the initial snapshot message for a client, if any data
// is loaded.
func (h *Hub) snapshotFor(client *Client) ([]byte, bool) {
	if h.source == nil {
		return nil, false
	}
	snap, err := h.source.Current()
	if err != nil {
		return nil, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return buildSnapshotMessage(snap, client.markets), true
}
