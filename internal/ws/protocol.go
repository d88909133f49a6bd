package ws

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dgnsrekt/roll-pressure/internal/data"
	"github.com/dgnsrekt/roll-pressure/internal/rollpressure"
)

// Message types sent to clients.
const (
	TypeConnected = "connected"
	TypeSnapshot  = "snapshot"
	TypeAck       = "ack"
	TypePong      = "pong"
)

// Upstream request types.
type subscribeRequest struct {
	market string
	ackID  *uint64
}

type unsubscribeRequest struct {
	market string
	ackID  *uint64
}

type pingRequest struct{}

type upstreamMessage struct {
	Type   string  `json:"type"`
	Market string  `json:"market"`
	AckID  *uint64 `json:"ack_id"`
}

// parseUpstreamMessage decodes a client request.
func parseUpstreamMessage(raw []byte) (any, error) {
	var msg upstreamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal upstream message: %w", err)
	}

	switch msg.Type {
	case "subscribe":
		return &subscribeRequest{market: strings.ToLower(strings.TrimSpace(msg.Market)), ackID: msg.AckID}, nil
	case "unsubscribe":
		return &unsubscribeRequest{market: strings.ToLower(strings.TrimSpace(msg.Market)), ackID: msg.AckID}, nil
	case "ping":
		return &pingRequest{}, nil
	default:
		return nil, fmt.Errorf("unknown message type: %q", msg.Type)
	}
}

// ConnectedMessage is the first message on every connection.
type ConnectedMessage struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connection_id"`
}

// SnapshotMessage carries the latest row per market of a loaded snapshot.
type SnapshotMessage struct {
	Type     string                    `json:"type"`
	RunID    string                    `json:"run_id"`
	LoadedAt time.Time                 `json:"loaded_at"`
	Rows     []rollpressure.DerivedRow `json:"rows"`
	Alerts   []rollpressure.DerivedRow `json:"alerts"`
}

// AckMessage answers a request that carried an ack_id.
type AckMessage struct {
	Type    string `json:"type"`
	AckID   uint64 `json:"ack_id"`
	Success bool   `json:"success"`
}

func buildConnectedMessage(connID string) []byte {
	b, _ := json.Marshal(ConnectedMessage{Type: TypeConnected, ConnectionID: connID})
	return b
}

// buildSnapshotMessage restricts rows and alerts to markets when the set is
// non-empty.
func buildSnapshotMessage(snap *data.Snapshot, markets map[string]bool) []byte {
	msg := SnapshotMessage{
		Type:     TypeSnapshot,
		RunID:    snap.RunID,
		LoadedAt: snap.LoadedAt,
		Rows:     filterMarkets(rollpressure.LatestPerMarket(snap.Rows), markets),
		Alerts:   filterMarkets(snap.Alerts(), markets),
	}
	b, _ := json.Marshal(msg)
	return b
}

func buildAckMessage(ackID uint64, success bool) []byte {
	b, _ := json.Marshal(AckMessage{Type: TypeAck, AckID: ackID, Success: success})
	return b
}

func buildPongMessage() []byte {
	return []byte(`{"type":"pong"}`)
}

func filterMarkets(rows []rollpressure.DerivedRow, markets map[string]bool) []rollpressure.DerivedRow {
	out := make([]rollpressure.DerivedRow, 0, len(rows))
	for _, r := range rows {
		if len(markets) == 0 || markets[r.Market] {
			out = append(out, r)
		}
	}
	return out
}
