// Package dispatch parses inbound client events into typed commands and
// routes them to the session managers. Every per-action failure turns into a
// diagnostic reply on the same connection; only transport failures propagate.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"chat-server/internal/chat"
	"chat-server/internal/database"
	"chat-server/internal/models"
	"chat-server/pkg/logger"
)

// Conn is the dispatcher's view of a connection: JSON replies, terse text
// diagnostics, teardown.
type Conn interface {
	Send(payload any) error
	SendText(text string) error
	Close()
}

type Dispatcher struct {
	db      database.Database
	private *chat.PrivateManager
	group   *chat.GroupManager
}

func New(db database.Database, private *chat.PrivateManager, group *chat.GroupManager) *Dispatcher {
	return &Dispatcher{db: db, private: private, group: group}
}

type joinPrivatePayload struct {
	User1 struct {
		Username string `json:"username"`
	} `json:"user1"`
	User2ID int `json:"user2_id"`
}

type messagePayload struct {
	SenderUsername string `json:"sender_username"`
	Content        string `json:"content"`
}

type sendPrivatePayload struct {
	ChatID  int             `json:"chat_id"`
	Message *messagePayload `json:"message"`
}

type createGroupPayload struct {
	AdminID   int    `json:"admin_id"`
	GroupName string `json:"group_name"`
}

type addUserPayload struct {
	GroupName string `json:"group_name"`
	UserID    int    `json:"user_id"`
	AdderName string `json:"adder_name"`
}

type sendGroupPayload struct {
	GroupID int             `json:"group_id"`
	Message *messagePayload `json:"message"`
}

type joinGroupPayload struct {
	UserName  string `json:"user_name"`
	GroupName string `json:"group_name"`
}

type removeUserPayload struct {
	AdminName string `json:"admin_name"`
	UserID    int    `json:"user_id"`
	GroupName string `json:"group_name"`
}

// Dispatch routes one inbound envelope. The returned error is fatal for the
// connection (the reply itself could not be delivered); everything else has
// already been answered with a diagnostic.
func (d *Dispatcher) Dispatch(ctx context.Context, conn Conn, env *models.Envelope) error {
	switch env.Action {
	case "join_private_chat":
		return d.handleJoinPrivate(ctx, conn, env.Data)
	case "send_private_message":
		return d.handleSendPrivate(ctx, conn, env.Data)
	case "create_group_chat":
		return d.handleCreateGroup(ctx, conn, env.Data)
	case "add_user_to_group_chat":
		return d.handleAddUser(ctx, conn, env.Data)
	case "send_group_message":
		return d.handleSendGroup(ctx, conn, env.Data)
	case "join_group_chat":
		return d.handleJoinGroup(ctx, conn, env.Data)
	case "remove_user_from_group_chat":
		return d.handleRemoveUser(ctx, conn, env.Data)
	default:
		return conn.SendText("Unknown action")
	}
}

func (d *Dispatcher) handleJoinPrivate(ctx context.Context, conn Conn, data json.RawMessage) error {
	var p joinPrivatePayload
	if !decode(data, &p) || p.User1.Username == "" || p.User2ID == 0 {
		return conn.SendText("Missing user information for private chat")
	}

	if _, cerr := d.private.JoinChat(ctx, conn, p.User1.Username, p.User2ID); cerr != nil {
		return d.replyError(conn, cerr)
	}
	return nil
}

func (d *Dispatcher) handleSendPrivate(ctx context.Context, conn Conn, data json.RawMessage) error {
	var p sendPrivatePayload
	if !decode(data, &p) || p.ChatID == 0 || p.Message == nil || p.Message.SenderUsername == "" || p.Message.Content == "" {
		return conn.SendText("Missing chat_id or message for private chat")
	}

	if cerr := d.private.SendMessage(ctx, p.ChatID, p.Message.SenderUsername, p.Message.Content); cerr != nil {
		return d.replyError(conn, cerr)
	}
	return nil
}

func (d *Dispatcher) handleCreateGroup(ctx context.Context, conn Conn, data json.RawMessage) error {
	var p createGroupPayload
	if !decode(data, &p) || p.AdminID == 0 || p.GroupName == "" {
		return conn.SendText("Missing admin_id or group_name for creating group chat")
	}

	group, cerr := d.group.GetOrCreateGroup(ctx, p.AdminID, p.GroupName)
	if cerr != nil {
		if cerr.Kind == chat.KindStorage {
			return d.replyError(conn, cerr)
		}
		return conn.SendText(fmt.Sprintf("Error creating group chat: %s", cerr.Message))
	}
	return conn.SendText(fmt.Sprintf("Group chat '%s' created successfully with ID: %d", group.Name, group.ID))
}

func (d *Dispatcher) handleAddUser(ctx context.Context, conn Conn, data json.RawMessage) error {
	var p addUserPayload
	if !decode(data, &p) || p.GroupName == "" || p.UserID == 0 || p.AdderName == "" {
		return conn.SendText("Missing group_name, user_id, or adder_name for adding user to group chat")
	}

	group, err := d.db.GetGroupByName(ctx, p.GroupName)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return conn.SendText("Error adding user to group chat: Group chat does not exist")
		}
		return d.storageReply(conn, err)
	}
	adder, err := d.db.GetUserByUsername(ctx, p.AdderName)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return conn.Send(models.Diagnostic{Content: fmt.Sprintf("User '%s' does not exist", p.AdderName)})
		}
		return d.storageReply(conn, err)
	}

	if cerr := d.group.AddMember(ctx, group.ID, p.UserID, adder.ID); cerr != nil {
		return d.replyError(conn, cerr)
	}
	return nil
}

func (d *Dispatcher) handleSendGroup(ctx context.Context, conn Conn, data json.RawMessage) error {
	var p sendGroupPayload
	if !decode(data, &p) || p.GroupID == 0 || p.Message == nil || p.Message.SenderUsername == "" || p.Message.Content == "" {
		return conn.SendText("Missing group_id or message for group chat")
	}

	sender, err := d.db.GetUserByUsername(ctx, p.Message.SenderUsername)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return conn.Send(models.Diagnostic{Content: fmt.Sprintf("User '%s' does not exist", p.Message.SenderUsername)})
		}
		return d.storageReply(conn, err)
	}

	if cerr := d.group.SendMessage(ctx, p.GroupID, sender.ID, p.Message.Content); cerr != nil {
		return d.replyError(conn, cerr)
	}
	return nil
}

func (d *Dispatcher) handleJoinGroup(ctx context.Context, conn Conn, data json.RawMessage) error {
	var p joinGroupPayload
	if !decode(data, &p) || p.UserName == "" || p.GroupName == "" {
		return conn.SendText("Missing user_name or group_name for joining group chat")
	}

	user, err := d.db.GetUserByUsername(ctx, p.UserName)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return conn.Send(models.Diagnostic{Content: fmt.Sprintf("User '%s' does not exist", p.UserName)})
		}
		return d.storageReply(conn, err)
	}
	group, err := d.db.GetGroupByName(ctx, p.GroupName)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return conn.SendText(fmt.Sprintf("Group chat '%s' does not exist.", p.GroupName))
		}
		return d.storageReply(conn, err)
	}

	if cerr := d.group.JoinGroup(ctx, conn, user.ID, group.ID); cerr != nil {
		return d.replyError(conn, cerr)
	}
	return nil
}

func (d *Dispatcher) handleRemoveUser(ctx context.Context, conn Conn, data json.RawMessage) error {
	var p removeUserPayload
	if !decode(data, &p) || p.AdminName == "" || p.UserID == 0 || p.GroupName == "" {
		return conn.SendText("Missing admin_name, user_id, or group_name for removing user from group chat")
	}

	admin, err := d.db.GetUserByUsername(ctx, p.AdminName)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return conn.Send(models.Diagnostic{Content: fmt.Sprintf("User '%s' does not exist", p.AdminName)})
		}
		return d.storageReply(conn, err)
	}
	group, err := d.db.GetGroupByName(ctx, p.GroupName)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return conn.Send(models.Diagnostic{Content: "There is no such group"})
		}
		return d.storageReply(conn, err)
	}

	if cerr := d.group.RemoveMember(ctx, group.ID, p.UserID, admin.ID); cerr != nil {
		return d.replyError(conn, cerr)
	}
	return nil
}

func (d *Dispatcher) replyError(conn Conn, cerr *chat.Error) error {
	if cerr.Kind == chat.KindStorage {
		return d.storageReply(conn, cerr.Unwrap())
	}
	return conn.Send(models.Diagnostic{Content: cerr.Message})
}

func (d *Dispatcher) storageReply(conn Conn, err error) error {
	logger.Error("Storage failure while handling action: %v", err)
	return conn.Send(models.Diagnostic{Content: "Internal error, action aborted"})
}

// decode tolerates an absent payload and rejects malformed JSON; required
// field checks stay with each action.
func decode(data json.RawMessage, v any) bool {
	if len(data) == 0 {
		return true
	}
	return json.Unmarshal(data, v) == nil
}
