package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"chat-server/internal/models"

	"golang.org/x/crypto/bcrypt"
)

// MemoryDB is an in-memory Database with the same uniqueness and not-found
// semantics as the Postgres implementation. It backs the test suite and the
// DATABASE_URL=memory dev mode.
type MemoryDB struct {
	mu sync.Mutex

	nextUserID    int
	nextChatID    int
	nextGroupID   int
	nextMessageID int

	users        map[int]*models.User
	privateChats map[int]*models.PrivateChat
	groups       map[int]*models.GroupChat
	memberships  map[int]map[int]bool // group id -> member user ids
	privateMsgs  map[int][]*models.Message
	groupMsgs    map[int][]*models.Message
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		users:        make(map[int]*models.User),
		privateChats: make(map[int]*models.PrivateChat),
		groups:       make(map[int]*models.GroupChat),
		memberships:  make(map[int]map[int]bool),
		privateMsgs:  make(map[int][]*models.Message),
		groupMsgs:    make(map[int][]*models.Message),
	}
}

func (db *MemoryDB) Close() error { return nil }

// User Repository Implementation

func (db *MemoryDB) CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Username == req.Username || u.Email == req.Email {
			return nil, ErrUniqueViolation
		}
	}

	db.nextUserID++
	user := &models.User{
		ID:           db.nextUserID,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
	}
	db.users[user.ID] = user

	clone := *user
	return &clone, nil
}

func (db *MemoryDB) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	user, ok := db.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func (db *MemoryDB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, user := range db.users {
		if user.Username == username {
			clone := *user
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (db *MemoryDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, user := range db.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (db *MemoryDB) ListUsers(ctx context.Context) ([]*models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	users := make([]*models.User, 0, len(db.users))
	for _, user := range db.users {
		clone := *user
		users = append(users, &clone)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

// Private Chat Repository Implementation

func (db *MemoryDB) GetOrCreatePrivateChat(ctx context.Context, user1ID, user2ID int) (*models.PrivateChat, error) {
	lo, hi := user1ID, user2ID
	if lo > hi {
		lo, hi = hi, lo
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	for _, chat := range db.privateChats {
		if chat.User1ID == lo && chat.User2ID == hi {
			clone := *chat
			return &clone, nil
		}
	}

	db.nextChatID++
	chat := &models.PrivateChat{ID: db.nextChatID, User1ID: lo, User2ID: hi}
	db.privateChats[chat.ID] = chat

	clone := *chat
	return &clone, nil
}

func (db *MemoryDB) GetPrivateChatByID(ctx context.Context, id int) (*models.PrivateChat, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	chat, ok := db.privateChats[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *chat
	return &clone, nil
}

func (db *MemoryDB) SavePrivateMessage(ctx context.Context, chatID, senderID int, content string) (*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.privateChats[chatID]; !ok {
		return nil, ErrNotFound
	}
	msg, err := db.appendMessage(db.privateMsgs, chatID, senderID, content)
	if err != nil {
		return nil, err
	}
	clone := *msg
	return &clone, nil
}

func (db *MemoryDB) LoadPrivateHistory(ctx context.Context, chatID int) ([]*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.cloneHistory(db.privateMsgs[chatID]), nil
}

// appendMessage persists a message row; the caller holds the lock.
func (db *MemoryDB) appendMessage(store map[int][]*models.Message, chatID, senderID int, content string) (*models.Message, error) {
	sender, ok := db.users[senderID]
	if !ok {
		return nil, ErrNotFound
	}

	db.nextMessageID++
	msg := &models.Message{
		ID:             db.nextMessageID,
		ChatID:         chatID,
		SenderID:       senderID,
		SenderUsername: sender.Username,
		Content:        content,
		Timestamp:      time.Now(),
	}
	store[chatID] = append(store[chatID], msg)
	return msg, nil
}

func (db *MemoryDB) cloneHistory(msgs []*models.Message) []*models.Message {
	out := make([]*models.Message, 0, len(msgs))
	for _, msg := range msgs {
		clone := *msg
		out = append(out, &clone)
	}
	return out
}

// Group Chat Repository Implementation

func (db *MemoryDB) CreateGroupChat(ctx context.Context, name string, adminID int) (*models.GroupChat, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, group := range db.groups {
		if group.Name == name {
			return nil, ErrUniqueViolation
		}
	}

	db.nextGroupID++
	group := &models.GroupChat{ID: db.nextGroupID, Name: name, AdminID: adminID}
	db.groups[group.ID] = group
	db.memberships[group.ID] = make(map[int]bool)

	clone := *group
	return &clone, nil
}

func (db *MemoryDB) GetGroupByID(ctx context.Context, id int) (*models.GroupChat, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	group, ok := db.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *group
	return &clone, nil
}

func (db *MemoryDB) GetGroupByName(ctx context.Context, name string) (*models.GroupChat, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, group := range db.groups {
		if group.Name == name {
			clone := *group
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (db *MemoryDB) ListGroups(ctx context.Context) ([]*models.GroupChat, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	groups := make([]*models.GroupChat, 0, len(db.groups))
	for _, group := range db.groups {
		clone := *group
		groups = append(groups, &clone)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

func (db *MemoryDB) DeleteGroupChat(ctx context.Context, groupID int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.groups[groupID]; !ok {
		return ErrNotFound
	}
	delete(db.groups, groupID)
	delete(db.memberships, groupID)
	delete(db.groupMsgs, groupID)
	return nil
}

// Group Membership Repository Implementation

func (db *MemoryDB) AddGroupMember(ctx context.Context, groupID, userID int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	members, ok := db.memberships[groupID]
	if !ok {
		return ErrNotFound
	}
	members[userID] = true
	return nil
}

func (db *MemoryDB) RemoveGroupMember(ctx context.Context, groupID, userID int) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	members, ok := db.memberships[groupID]
	if !ok || !members[userID] {
		return false, nil
	}
	delete(members, userID)
	return true, nil
}

func (db *MemoryDB) IsGroupMember(ctx context.Context, groupID, userID int) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.memberships[groupID][userID], nil
}

func (db *MemoryDB) ListGroupMembers(ctx context.Context, groupID int) ([]*models.Member, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var members []*models.Member
	for userID := range db.memberships[groupID] {
		if user, ok := db.users[userID]; ok {
			members = append(members, &models.Member{ID: user.ID, Username: user.Username})
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Username < members[j].Username })
	return members, nil
}

// Group Message Repository Implementation

func (db *MemoryDB) SaveGroupMessage(ctx context.Context, groupID, senderID int, content string) (*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.groups[groupID]; !ok {
		return nil, ErrNotFound
	}
	msg, err := db.appendMessage(db.groupMsgs, groupID, senderID, content)
	if err != nil {
		return nil, err
	}
	clone := *msg
	return &clone, nil
}

func (db *MemoryDB) LoadGroupHistory(ctx context.Context, groupID int) ([]*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.cloneHistory(db.groupMsgs[groupID]), nil
}
