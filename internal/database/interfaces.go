package database

import (
	"context"

	"chat-server/internal/models"
)

type UserRepository interface {
	CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
}

type PrivateChatRepository interface {
	// GetOrCreatePrivateChat returns the single chat for the unordered
	// {user1, user2} pair, creating it if absent. Concurrent creators race
	// on a uniqueness constraint; the loser re-fetches the winner's row.
	GetOrCreatePrivateChat(ctx context.Context, user1ID, user2ID int) (*models.PrivateChat, error)
	GetPrivateChatByID(ctx context.Context, id int) (*models.PrivateChat, error)
	SavePrivateMessage(ctx context.Context, chatID, senderID int, content string) (*models.Message, error)
	LoadPrivateHistory(ctx context.Context, chatID int) ([]*models.Message, error)
}

type GroupChatRepository interface {
	// CreateGroupChat fails with ErrUniqueViolation if the name is taken.
	CreateGroupChat(ctx context.Context, name string, adminID int) (*models.GroupChat, error)
	GetGroupByID(ctx context.Context, id int) (*models.GroupChat, error)
	GetGroupByName(ctx context.Context, name string) (*models.GroupChat, error)
	ListGroups(ctx context.Context) ([]*models.GroupChat, error)
	// DeleteGroupChat removes the group and cascades its messages and
	// memberships in one transaction.
	DeleteGroupChat(ctx context.Context, groupID int) error
}

type GroupMembershipRepository interface {
	AddGroupMember(ctx context.Context, groupID, userID int) error
	// RemoveGroupMember reports whether a membership row was actually
	// removed.
	RemoveGroupMember(ctx context.Context, groupID, userID int) (bool, error)
	IsGroupMember(ctx context.Context, groupID, userID int) (bool, error)
	ListGroupMembers(ctx context.Context, groupID int) ([]*models.Member, error)
}

type GroupMessageRepository interface {
	SaveGroupMessage(ctx context.Context, groupID, senderID int, content string) (*models.Message, error)
	LoadGroupHistory(ctx context.Context, groupID int) ([]*models.Message, error)
}

type Database interface {
	UserRepository
	PrivateChatRepository
	GroupChatRepository
	GroupMembershipRepository
	GroupMessageRepository
	Close() error
}
