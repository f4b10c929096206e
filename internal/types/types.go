package types

import pub "github.com/DoyleJ11/code-battle-backend/pkg/types"

type ClientMessage struct {
	Type        string `json:"type"`
	RoomKey     string `json:"roomKey,omitempty"`
	PlayerName  string `json:"playerName,omitempty"`
	PlayerToken string `json:"playerToken,omitempty"`
	PlayerID    string `json:"playerId,omitempty"`
	Code        string `json:"code,omitempty"`
}

type ServerMessage struct {
	Type        string            `json:"type"`
	Version     int               `json:"version,omitempty"`
	State       *pub.RoomSnapshot `json:"state,omitempty"`
	RoomKey     string            `json:"roomKey,omitempty"`
	PlayerID    string            `json:"playerId,omitempty"`
	PlayerToken string            `json:"playerToken,omitempty"`
	Code        *string           `json:"code,omitempty"`
	Passed      *bool             `json:"passed,omitempty"`
	Score       *int              `json:"score,omitempty"`
	Winner      string            `json:"winner,omitempty"`
	Event       string            `json:"event,omitempty"`
	Error       string            `json:"error,omitempty"`
}

func ErrorMessage(event, roomKey string, err error) ServerMessage {
	return ServerMessage{Type: pub.EvtError, Event: event, RoomKey: roomKey, Error: err.Error()}
}
