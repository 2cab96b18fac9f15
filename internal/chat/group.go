package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-server/internal/database"
	"chat-server/internal/models"
	"chat-server/internal/ws"
)

// GroupManager owns the group-chat lifecycle: creation, membership,
// messaging, and deletion. Every authorization decision goes through one
// derived membership check so the admin-not-in-members convention lives in
// exactly one place.
type GroupManager struct {
	db       database.Database
	registry *ws.Registry
}

func NewGroupManager(db database.Database, registry *ws.Registry) *GroupManager {
	return &GroupManager{db: db, registry: registry}
}

// IsMember reports effective membership: the stored member set plus the
// admin.
func (m *GroupManager) IsMember(ctx context.Context, group *models.GroupChat, userID int) (bool, error) {
	if userID == group.AdminID {
		return true, nil
	}
	return m.db.IsGroupMember(ctx, group.ID, userID)
}

// GetOrCreateGroup creates a group or returns the existing one when the same
// admin asks for the same name again. A name taken by a different admin is a
// conflict: names are globally unique.
func (m *GroupManager) GetOrCreateGroup(ctx context.Context, adminID int, name string) (*models.GroupChat, *Error) {
	if _, err := m.db.GetUserByID(ctx, adminID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, notFound("Invalid admin_id")
		}
		return nil, storage(err)
	}

	group, err := m.db.GetGroupByName(ctx, name)
	if err == nil {
		return m.resolveExisting(group, adminID)
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, storage(err)
	}

	group, err = m.db.CreateGroupChat(ctx, name, adminID)
	if err == nil {
		return group, nil
	}
	if !errors.Is(err, database.ErrUniqueViolation) {
		return nil, storage(err)
	}

	// Lost the creation race; the winner's row decides.
	group, err = m.db.GetGroupByName(ctx, name)
	if err != nil {
		return nil, storage(err)
	}
	return m.resolveExisting(group, adminID)
}

func (m *GroupManager) resolveExisting(group *models.GroupChat, adminID int) (*models.GroupChat, *Error) {
	if group.AdminID == adminID {
		return group, nil
	}
	return nil, conflict("Group name already exists")
}

// JoinGroup subscribes a member's connection to the group room and replies
// with the full ordered message history.
func (m *GroupManager) JoinGroup(ctx context.Context, conn ws.Sender, userID, groupID int) *Error {
	group, cerr := m.getGroup(ctx, groupID)
	if cerr != nil {
		return cerr
	}

	member, err := m.IsMember(ctx, group, userID)
	if err != nil {
		return storage(err)
	}
	if !member {
		return notAMember("User with ID %d is not a member of the group.", userID)
	}

	joinErr := m.registry.Join(ws.GroupRoom(groupID), conn, func() (any, error) {
		history, err := m.db.LoadGroupHistory(ctx, groupID)
		if err != nil {
			return nil, err
		}
		return models.GroupHistory{GroupID: groupID, History: historyEntries(history)}, nil
	})
	if joinErr != nil {
		return storage(joinErr)
	}
	return nil
}

// AddMember adds userID to the group on behalf of requestedBy, who must be a
// member or the admin. Idempotent for existing members; the admin is never
// written into the member set. A system message announces the addition.
func (m *GroupManager) AddMember(ctx context.Context, groupID, userID, requestedBy int) *Error {
	group, cerr := m.getGroup(ctx, groupID)
	if cerr != nil {
		return cerr
	}

	allowed, err := m.IsMember(ctx, group, requestedBy)
	if err != nil {
		return storage(err)
	}
	if !allowed {
		return unauthorized("User is not in the group. You can not add another user to this group")
	}

	user, err := m.db.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return notFound("User with id %d does not exist.", userID)
		}
		return storage(err)
	}

	if userID != group.AdminID {
		if err := m.db.AddGroupMember(ctx, groupID, userID); err != nil {
			return storage(err)
		}
	}

	return m.SendMessage(ctx, groupID, requestedBy, fmt.Sprintf("I added %s", user.Username))
}

// SendMessage persists a group message and broadcasts it, gated on effective
// membership of the sender. Persist and broadcast run under the room's
// ordering lock.
func (m *GroupManager) SendMessage(ctx context.Context, groupID, senderID int, content string) *Error {
	group, cerr := m.getGroup(ctx, groupID)
	if cerr != nil {
		return cerr
	}

	sender, err := m.db.GetUserByID(ctx, senderID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return notFound("Sender with id %d does not exist.", senderID)
		}
		return storage(err)
	}

	allowed, err := m.IsMember(ctx, group, senderID)
	if err != nil {
		return storage(err)
	}
	if !allowed {
		return unauthorized("User is not in the group. You can not send messages")
	}

	var serr *Error
	m.registry.Publish(ws.GroupRoom(groupID), func() (any, error) {
		msg, err := m.db.SaveGroupMessage(ctx, groupID, senderID, content)
		if err != nil {
			serr = storage(err)
			return nil, serr
		}
		return models.ChatBroadcast{
			SenderUsername: sender.Username,
			Content:        content,
			Timestamp:      msg.Timestamp.Format(time.RFC3339),
		}, nil
	})
	return serr
}

// RemoveMember removes userID from the group. Admin only. Removing a user
// that does not exist fails with not-found; removing a non-member fails with
// not-a-member; neither emits a system message.
func (m *GroupManager) RemoveMember(ctx context.Context, groupID, userID, requestedBy int) *Error {
	group, cerr := m.getGroup(ctx, groupID)
	if cerr != nil {
		return cerr
	}

	if requestedBy != group.AdminID {
		return unauthorized("You are not the admin, you cannot delete users.")
	}

	user, err := m.db.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return notFound("User with id %d does not exist.", userID)
		}
		return storage(err)
	}

	removed, err := m.db.RemoveGroupMember(ctx, groupID, userID)
	if err != nil {
		return storage(err)
	}
	if !removed {
		return notAMember("User is not in the group.")
	}

	return m.SendMessage(ctx, groupID, requestedBy, fmt.Sprintf("I deleted %s from group", user.Username))
}

// DeleteGroup deletes the group and cascades its messages and memberships.
// Admin only. The room's live subscriptions are dropped afterwards.
func (m *GroupManager) DeleteGroup(ctx context.Context, groupID, requestedBy int) *Error {
	group, cerr := m.getGroup(ctx, groupID)
	if cerr != nil {
		return cerr
	}

	if requestedBy != group.AdminID {
		return unauthorized("You are not an admin")
	}

	if err := m.db.DeleteGroupChat(ctx, groupID); err != nil {
		return storage(err)
	}
	m.registry.DropRoom(ws.GroupRoom(groupID))
	return nil
}

func (m *GroupManager) getGroup(ctx context.Context, groupID int) (*models.GroupChat, *Error) {
	group, err := m.db.GetGroupByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, notFound("There is no such group")
		}
		return nil, storage(err)
	}
	return group, nil
}
