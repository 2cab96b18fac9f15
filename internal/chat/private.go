package chat

import (
	"context"
	"errors"
	"time"

	"chat-server/internal/database"
	"chat-server/internal/models"
	"chat-server/internal/ws"
)

// PrivateManager mediates two-party chats. Private chats carry no membership
// table: the pair is fixed at creation, so sending only requires the sender
// to resolve to a known user.
type PrivateManager struct {
	db       database.Database
	registry *ws.Registry
}

func NewPrivateManager(db database.Database, registry *ws.Registry) *PrivateManager {
	return &PrivateManager{db: db, registry: registry}
}

// GetOrCreateChat returns the one chat for the unordered user pair, creating
// it on first contact. Symmetric and idempotent: (a,b) and (b,a) yield the
// same chat on every call.
func (m *PrivateManager) GetOrCreateChat(ctx context.Context, user1ID, user2ID int) (*models.PrivateChat, *Error) {
	chat, err := m.db.GetOrCreatePrivateChat(ctx, user1ID, user2ID)
	if err != nil {
		return nil, storage(err)
	}
	return chat, nil
}

// SendMessage persists the message, then broadcasts it to the chat's room.
// Both happen under the room's ordering lock so joiners never see a torn
// view.
func (m *PrivateManager) SendMessage(ctx context.Context, chatID int, senderUsername, content string) *Error {
	sender, err := m.db.GetUserByUsername(ctx, senderUsername)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return notFound("Sender '%s' does not exist", senderUsername)
		}
		return storage(err)
	}

	if _, err := m.db.GetPrivateChatByID(ctx, chatID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return notFound("Private chat with ID %d does not exist", chatID)
		}
		return storage(err)
	}

	var cerr *Error
	m.registry.Publish(ws.PrivateRoom(chatID), func() (any, error) {
		msg, err := m.db.SavePrivateMessage(ctx, chatID, sender.ID, content)
		if err != nil {
			cerr = storage(err)
			return nil, cerr
		}
		return models.ChatBroadcast{
			SenderUsername: sender.Username,
			Content:        content,
			Timestamp:      msg.Timestamp.Format(time.RFC3339),
		}, nil
	})
	return cerr
}

// JoinChat resolves (or lazily creates) the chat between the two users,
// subscribes the connection to it, and replies with the full ordered message
// history.
func (m *PrivateManager) JoinChat(ctx context.Context, conn ws.Sender, username string, user2ID int) (*models.PrivateChat, *Error) {
	user1, err := m.db.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, notFound("User '%s' does not exist", username)
		}
		return nil, storage(err)
	}
	if _, err := m.db.GetUserByID(ctx, user2ID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, notFound("User with ID %d does not exist", user2ID)
		}
		return nil, storage(err)
	}

	chat, cerr := m.GetOrCreateChat(ctx, user1.ID, user2ID)
	if cerr != nil {
		return nil, cerr
	}

	joinErr := m.registry.Join(ws.PrivateRoom(chat.ID), conn, func() (any, error) {
		history, err := m.db.LoadPrivateHistory(ctx, chat.ID)
		if err != nil {
			return nil, err
		}
		return models.PrivateHistory{ChatID: chat.ID, History: historyEntries(history)}, nil
	})
	if joinErr != nil {
		return nil, storage(joinErr)
	}
	return chat, nil
}

func historyEntries(msgs []*models.Message) []models.HistoryEntry {
	entries := make([]models.HistoryEntry, 0, len(msgs))
	for _, msg := range msgs {
		entries = append(entries, models.HistoryEntry{
			SenderUsername: msg.SenderUsername,
			Content:        msg.Content,
			Timestamp:      msg.Timestamp.Format(time.RFC3339),
		})
	}
	return entries
}
