package protocol

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire format in both directions: a tagged type plus an
// opaque payload that is decoded per type.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Message json.RawMessage `json:"message"`
}

// MessageType tags an envelope payload.
type MessageType string

// Inbound message types.
const (
	TypeChat   MessageType = "chat"
	TypeCreate MessageType = "create"
	TypeJoin   MessageType = "join"
	TypeAction MessageType = "action"
	TypeGeo    MessageType = "geo"
)

// Outbound message types.
const (
	TypeSetMyGame MessageType = "set_my_game"
	TypeSetGames  MessageType = "set_games"
	TypeAddGame   MessageType = "add_game"
	TypeTeam      MessageType = "team"
	TypeSyncTimer MessageType = "sync_timer"
	TypeError     MessageType = "error"
)

// Point is a geographic coordinate as the clients report it.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ChatPayload is the inbound chat body. The token the client claims is
// ignored on the way out; the session token is authoritative.
type ChatPayload struct {
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
	Dt      int64  `json:"dt,omitempty"`
}

// CreatePayload carries the zone data for a new game. Radius is optional;
// the server default applies when it is zero.
type CreatePayload struct {
	Point  Point   `json:"point"`
	Radius float64 `json:"radius,omitempty"`
}

// ActionPayload is a role-aware contest action anchored at a point.
type ActionPayload struct {
	Point Point `json:"point"`
}

// GeoPayload is a location fix from a client.
type GeoPayload struct {
	Point Point `json:"point"`
}

// ChatBroadcast is the outbound chat body, stamped with the sender's session
// token and a server-side epoch-millisecond timestamp.
type ChatBroadcast struct {
	Token   string `json:"token"`
	Message string `json:"message"`
	Dt      int64  `json:"dt"`
}

// TeamBroadcast relays a player's location fix to the other sessions.
type TeamBroadcast struct {
	Token string `json:"token"`
	Point Point  `json:"point"`
	Dt    int64  `json:"dt"`
}

// Decode parses a raw frame into an envelope.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// Encode builds an outbound envelope around an already-marshallable payload.
func Encode(typ MessageType, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return Envelope{Type: typ, Message: raw}, nil
}

// MustEncode is Encode for payloads built by this server; the payload types
// are all plain structs so a marshal failure is a programming error.
func MustEncode(typ MessageType, payload any) Envelope {
	env, err := Encode(typ, payload)
	if err != nil {
		panic(err)
	}
	return env
}
