package database

import (
	"context"
	"errors"
	"fmt"

	"chat-server/internal/models"
	"chat-server/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// EnsureSchema creates the tables and the uniqueness constraints the
// getOrCreate flows rely on.
func (db *PostgresDB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS private_chats (
			id SERIAL PRIMARY KEY,
			user1_id INT NOT NULL REFERENCES users(id),
			user2_id INT NOT NULL REFERENCES users(id),
			UNIQUE (user1_id, user2_id)
		)`,
		`CREATE TABLE IF NOT EXISTS private_messages (
			id SERIAL PRIMARY KEY,
			chat_id INT NOT NULL REFERENCES private_chats(id),
			sender_id INT NOT NULL REFERENCES users(id),
			content TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS group_chats (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			admin_id INT NOT NULL REFERENCES users(id)
		)`,
		`CREATE TABLE IF NOT EXISTS group_users (
			group_id INT NOT NULL REFERENCES group_chats(id),
			user_id INT NOT NULL REFERENCES users(id),
			PRIMARY KEY (group_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS group_messages (
			id SERIAL PRIMARY KEY,
			group_id INT NOT NULL REFERENCES group_chats(id),
			sender_id INT NOT NULL REFERENCES users(id),
			content TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

func translateError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrUniqueViolation
	}
	return err
}

// User Repository Implementation

func (db *PostgresDB) CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	query := `
		INSERT INTO users (username, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, username, email`

	user := &models.User{PasswordHash: string(hash)}
	err = db.pool.QueryRow(ctx, query, req.Username, req.Email, string(hash)).Scan(
		&user.ID, &user.Username, &user.Email,
	)
	if err != nil {
		return nil, translateError(err)
	}

	return user, nil
}

func (db *PostgresDB) scanUser(ctx context.Context, query string, arg any) (*models.User, error) {
	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
	)
	if err != nil {
		return nil, translateError(err)
	}
	return user, nil
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	return db.scanUser(ctx, `SELECT id, username, email, password_hash FROM users WHERE id = $1`, id)
}

func (db *PostgresDB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return db.scanUser(ctx, `SELECT id, username, email, password_hash FROM users WHERE username = $1`, username)
}

func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.scanUser(ctx, `SELECT id, username, email, password_hash FROM users WHERE email = $1`, email)
}

func (db *PostgresDB) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, username, email, password_hash FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user := &models.User{}
		if err := rows.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Private Chat Repository Implementation

func (db *PostgresDB) GetOrCreatePrivateChat(ctx context.Context, user1ID, user2ID int) (*models.PrivateChat, error) {
	// Normalize the unordered pair so the uniqueness constraint holds
	// regardless of who initiated the chat.
	lo, hi := user1ID, user2ID
	if lo > hi {
		lo, hi = hi, lo
	}

	query := `
		INSERT INTO private_chats (user1_id, user2_id) VALUES ($1, $2)
		ON CONFLICT (user1_id, user2_id) DO NOTHING
		RETURNING id, user1_id, user2_id`

	chat := &models.PrivateChat{}
	err := db.pool.QueryRow(ctx, query, lo, hi).Scan(&chat.ID, &chat.User1ID, &chat.User2ID)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, translateError(err)
	}

	// A concurrent creator won the race; fetch the existing row.
	query = `SELECT id, user1_id, user2_id FROM private_chats WHERE user1_id = $1 AND user2_id = $2`
	err = db.pool.QueryRow(ctx, query, lo, hi).Scan(&chat.ID, &chat.User1ID, &chat.User2ID)
	if err != nil {
		return nil, translateError(err)
	}
	return chat, nil
}

func (db *PostgresDB) GetPrivateChatByID(ctx context.Context, id int) (*models.PrivateChat, error) {
	chat := &models.PrivateChat{}
	err := db.pool.QueryRow(ctx,
		`SELECT id, user1_id, user2_id FROM private_chats WHERE id = $1`, id,
	).Scan(&chat.ID, &chat.User1ID, &chat.User2ID)
	if err != nil {
		return nil, translateError(err)
	}
	return chat, nil
}

func (db *PostgresDB) SavePrivateMessage(ctx context.Context, chatID, senderID int, content string) (*models.Message, error) {
	query := `
		INSERT INTO private_messages (chat_id, sender_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, chat_id, sender_id, content, timestamp`

	msg := &models.Message{}
	err := db.pool.QueryRow(ctx, query, chatID, senderID, content).Scan(
		&msg.ID, &msg.ChatID, &msg.SenderID, &msg.Content, &msg.Timestamp,
	)
	if err != nil {
		return nil, translateError(err)
	}
	return msg, nil
}

func (db *PostgresDB) LoadPrivateHistory(ctx context.Context, chatID int) ([]*models.Message, error) {
	query := `
		SELECT m.id, m.chat_id, m.sender_id, u.username, m.content, m.timestamp
		FROM private_messages m
		JOIN users u ON m.sender_id = u.id
		WHERE m.chat_id = $1
		ORDER BY m.timestamp, m.id`
	return db.loadHistory(ctx, query, chatID)
}

func (db *PostgresDB) loadHistory(ctx context.Context, query string, chatID int) ([]*models.Message, error) {
	rows, err := db.pool.Query(ctx, query, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.SenderID, &msg.SenderUsername, &msg.Content, &msg.Timestamp); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Group Chat Repository Implementation

func (db *PostgresDB) CreateGroupChat(ctx context.Context, name string, adminID int) (*models.GroupChat, error) {
	query := `
		INSERT INTO group_chats (name, admin_id) VALUES ($1, $2)
		RETURNING id, name, admin_id`

	group := &models.GroupChat{}
	err := db.pool.QueryRow(ctx, query, name, adminID).Scan(&group.ID, &group.Name, &group.AdminID)
	if err != nil {
		return nil, translateError(err)
	}
	return group, nil
}

func (db *PostgresDB) GetGroupByID(ctx context.Context, id int) (*models.GroupChat, error) {
	group := &models.GroupChat{}
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, admin_id FROM group_chats WHERE id = $1`, id,
	).Scan(&group.ID, &group.Name, &group.AdminID)
	if err != nil {
		return nil, translateError(err)
	}
	return group, nil
}

func (db *PostgresDB) GetGroupByName(ctx context.Context, name string) (*models.GroupChat, error) {
	group := &models.GroupChat{}
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, admin_id FROM group_chats WHERE name = $1`, name,
	).Scan(&group.ID, &group.Name, &group.AdminID)
	if err != nil {
		return nil, translateError(err)
	}
	return group, nil
}

func (db *PostgresDB) ListGroups(ctx context.Context) ([]*models.GroupChat, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, name, admin_id FROM group_chats ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*models.GroupChat
	for rows.Next() {
		group := &models.GroupChat{}
		if err := rows.Scan(&group.ID, &group.Name, &group.AdminID); err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

func (db *PostgresDB) DeleteGroupChat(ctx context.Context, groupID int) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM group_messages WHERE group_id = $1`, groupID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM group_users WHERE group_id = $1`, groupID); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM group_chats WHERE id = $1`, groupID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}

// Group Membership Repository Implementation

func (db *PostgresDB) AddGroupMember(ctx context.Context, groupID, userID int) error {
	query := `
		INSERT INTO group_users (group_id, user_id) VALUES ($1, $2)
		ON CONFLICT (group_id, user_id) DO NOTHING`
	_, err := db.pool.Exec(ctx, query, groupID, userID)
	return err
}

func (db *PostgresDB) RemoveGroupMember(ctx context.Context, groupID, userID int) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM group_users WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (db *PostgresDB) IsGroupMember(ctx context.Context, groupID, userID int) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM group_users WHERE group_id = $1 AND user_id = $2)`,
		groupID, userID,
	).Scan(&exists)
	return exists, err
}

func (db *PostgresDB) ListGroupMembers(ctx context.Context, groupID int) ([]*models.Member, error) {
	query := `
		SELECT u.id, u.username
		FROM group_users g
		JOIN users u ON g.user_id = u.id
		WHERE g.group_id = $1
		ORDER BY u.username`

	rows, err := db.pool.Query(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		member := &models.Member{}
		if err := rows.Scan(&member.ID, &member.Username); err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// Group Message Repository Implementation

func (db *PostgresDB) SaveGroupMessage(ctx context.Context, groupID, senderID int, content string) (*models.Message, error) {
	query := `
		INSERT INTO group_messages (group_id, sender_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, group_id, sender_id, content, timestamp`

	msg := &models.Message{}
	err := db.pool.QueryRow(ctx, query, groupID, senderID, content).Scan(
		&msg.ID, &msg.ChatID, &msg.SenderID, &msg.Content, &msg.Timestamp,
	)
	if err != nil {
		return nil, translateError(err)
	}
	return msg, nil
}

func (db *PostgresDB) LoadGroupHistory(ctx context.Context, groupID int) ([]*models.Message, error) {
	query := `
		SELECT m.id, m.group_id, m.sender_id, u.username, m.content, m.timestamp
		FROM group_messages m
		JOIN users u ON m.sender_id = u.id
		WHERE m.group_id = $1
		ORDER BY m.timestamp, m.id`
	return db.loadHistory(ctx, query, groupID)
}
