package models

import "time"

// PrivateChat is a two-party conversation. The user pair is unordered: the
// database keeps exactly one row per pair regardless of who initiated it.
type PrivateChat struct {
	ID      int `json:"id"`
	User1ID int `json:"user1_id"`
	User2ID int `json:"user2_id"`
}

// GroupChat has a globally unique name and one admin. The admin is a full
// member by definition but is not stored in the membership table.
type GroupChat struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	AdminID int    `json:"admin_id"`
}

// Message is a persisted chat message of either kind. Immutable once saved;
// ordering is by Timestamp then ID.
type Message struct {
	ID             int       `json:"id"`
	ChatID         int       `json:"chat_id"`
	SenderID       int       `json:"sender_id"`
	SenderUsername string    `json:"sender_username,omitempty"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

type Member struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

type CreateGroupRequest struct {
	GroupName     string `json:"group_name" validate:"required"`
	AdminUsername string `json:"admin_username" validate:"required"`
}
