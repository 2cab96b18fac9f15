package models

import "encoding/json"

// Envelope is the inbound websocket frame. The first frame on a connection
// additionally carries the authentication tokens; every frame carries an
// action and its payload.
type Envelope struct {
	Action      string          `json:"action"`
	Data        json.RawMessage `json:"data"`
	AccessToken string          `json:"access_token,omitempty"`
	CSRFToken   string          `json:"csrf_token,omitempty"`
}

// HistoryEntry is one message as replayed to a joining connection.
type HistoryEntry struct {
	SenderUsername string `json:"sender_username"`
	Content        string `json:"content"`
	Timestamp      string `json:"timestamp"`
}

// PrivateHistory is the reply to join_private_chat.
type PrivateHistory struct {
	ChatID  int            `json:"chat_id"`
	History []HistoryEntry `json:"history"`
}

// GroupHistory is the reply to join_group_chat.
type GroupHistory struct {
	GroupID int            `json:"group_id"`
	History []HistoryEntry `json:"history"`
}

// ChatBroadcast is the live fan-out payload for both chat kinds.
type ChatBroadcast struct {
	SenderUsername string `json:"sender_username"`
	Content        string `json:"content"`
	Timestamp      string `json:"timestamp,omitempty"`
}

// Diagnostic is the small JSON error reply sent on the same connection when
// an action fails without being fatal.
type Diagnostic struct {
	Content string `json:"content"`
}
