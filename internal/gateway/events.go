package gateway

import "encoding/json"

// Inbound event names (client to server).
const (
	eventJoinQueue  = "join_queue"
	eventLeaveQueue = "leave_queue"
	eventReady      = "ready"
	eventAnswer     = "answer"
)

// Outbound event names (server to client).
const (
	eventMatchFound         = "match_found"
	eventMatchmakingTimeout = "matchmaking_timeout"
	eventQuestion           = "question"
	eventGameOver           = "game_over"
	eventError              = "error"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type joinQueueData struct {
	DeviceID string `json:"deviceId"`
	Name     string `json:"name"`
	CivID    string `json:"civId"`
}

type readyData struct {
	RoomID string `json:"roomId"`
}

type answerData struct {
	RoomID  string `json:"roomId"`
	Correct bool   `json:"correct"`
}

type errorData struct {
	Message string `json:"message"`
}
