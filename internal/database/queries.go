package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/convoapp/convo/internal/types"
)

func (db *PgConvoRepository) CreateAccount(params CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO users (id, username, display_name, avatar, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $6) "+
			"RETURNING id, username, display_name, avatar, is_online, last_online, created_at, updated_at",
		params.Id,
		params.Username,
		params.DisplayName,
		params.Avatar,
		params.PasswordHash,
		time.Now().UTC(),
	)

	return scanUser(res)
}

func (db *PgConvoRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"UPDATE users SET "+
			"username = COALESCE(NULLIF($2, ''), username), "+
			"display_name = COALESCE(NULLIF($3, ''), display_name), "+
			"avatar = COALESCE(NULLIF($4, ''), avatar), "+
			"password_hash = COALESCE(NULLIF($5, ''), password_hash), "+
			"updated_at = $6 "+
			"WHERE id = $1 "+
			"RETURNING id, username, display_name, avatar, is_online, last_online, created_at, updated_at",
		params.UserId,
		params.Username,
		params.DisplayName,
		params.Avatar,
		params.PasswordHash,
		time.Now().UTC(),
	)

	return scanUser(res)
}

func (db *PgConvoRepository) GetUserById(userId string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, display_name, avatar, is_online, last_online, created_at, updated_at "+
			"FROM users WHERE id = $1 LIMIT 1",
		userId,
	)

	return scanUser(row)
}

func (db *PgConvoRepository) GetUserByUsername(username string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, display_name, avatar, is_online, last_online, created_at, updated_at, password_hash "+
			"FROM users WHERE username = $1 LIMIT 1",
		username,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.DisplayName,
		&u.Avatar,
		&u.IsOnline,
		&u.LastOnline,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.PasswordHash,
	)

	return u, err
}

func (db *PgConvoRepository) ListUsers() ([]User, error) {
	rows, err := db.conn.Query(
		"SELECT id, username, display_name, avatar, is_online, last_online, created_at, updated_at " +
			"FROM users ORDER BY username",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (db *PgConvoRepository) SetOnlineStatus(userId string, online bool) (User, error) {
	row := db.conn.QueryRow(
		"UPDATE users SET is_online = $2, updated_at = $3 WHERE id = $1 "+
			"RETURNING id, username, display_name, avatar, is_online, last_online, created_at, updated_at",
		userId,
		online,
		time.Now().UTC(),
	)

	return scanUser(row)
}

func (db *PgConvoRepository) SetLastOnline(userId string, lastOnline time.Time) (User, error) {
	row := db.conn.QueryRow(
		"UPDATE users SET is_online = FALSE, last_online = $2, updated_at = $3 WHERE id = $1 "+
			"RETURNING id, username, display_name, avatar, is_online, last_online, created_at, updated_at",
		userId,
		lastOnline.UTC(),
		time.Now().UTC(),
	)

	return scanUser(row)
}

func (db *PgConvoRepository) CreateConversation(params CreateConversationParams) (Conversation, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Conversation{}, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.Exec(
		"INSERT INTO conversations (id, name, type, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)",
		params.Id,
		params.Name,
		params.Type,
		now,
	); err != nil {
		return Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}

	for _, userId := range params.ParticipantIds {
		if _, err := tx.Exec(
			"INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2) "+
				"ON CONFLICT DO NOTHING",
			params.Id,
			userId,
		); err != nil {
			return Conversation{}, fmt.Errorf("insert participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Conversation{}, err
	}

	return db.GetConversationById(params.Id)
}

func (db *PgConvoRepository) GetConversationById(conversationId string) (Conversation, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, type, last_message_id, created_at, updated_at "+
			"FROM conversations WHERE id = $1 LIMIT 1",
		conversationId,
	)

	var c Conversation
	if err := row.Scan(&c.Id, &c.Name, &c.Type, &c.LastMessageId, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Conversation{}, err
	}

	participants, err := db.listParticipants(conversationId)
	if err != nil {
		return Conversation{}, fmt.Errorf("list participants: %w", err)
	}
	c.Participants = participants

	return c, nil
}

// GetConversationByParticipants finds the private conversation whose
// participant set is exactly the given ids. Used to return an existing
// private conversation instead of creating a duplicate; group conversations
// with the same members never match.
func (db *PgConvoRepository) GetConversationByParticipants(participantIds []string) (Conversation, error) {
	row := db.conn.QueryRow(
		"SELECT cp.conversation_id FROM conversation_participants cp "+
			"JOIN conversations c ON c.id = cp.conversation_id "+
			"WHERE c.type = $2 "+
			"GROUP BY cp.conversation_id "+
			"HAVING array_agg(cp.user_id ORDER BY cp.user_id) = "+
			"(SELECT array_agg(u ORDER BY u) FROM unnest($1::text[]) AS u) "+
			"LIMIT 1",
		pq.Array(participantIds),
		types.ConversationTypePrivate,
	)

	var conversationId string
	if err := row.Scan(&conversationId); err != nil {
		return Conversation{}, err
	}

	return db.GetConversationById(conversationId)
}

func (db *PgConvoRepository) ListConversationsByParticipant(userId string) ([]Conversation, error) {
	rows, err := db.conn.Query(
		"SELECT c.id, c.name, c.type, c.last_message_id, c.created_at, c.updated_at "+
			"FROM conversations c "+
			"JOIN conversation_participants cp ON cp.conversation_id = c.id "+
			"WHERE cp.user_id = $1 ORDER BY c.updated_at DESC",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.Id, &c.Name, &c.Type, &c.LastMessageId, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range conversations {
		participants, err := db.listParticipants(conversations[i].Id)
		if err != nil {
			return nil, fmt.Errorf("list participants: %w", err)
		}
		conversations[i].Participants = participants
	}

	return conversations, nil
}

func (db *PgConvoRepository) IsParticipant(conversationId, userId string) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM conversation_participants WHERE conversation_id = $1 AND user_id = $2)",
		conversationId,
		userId,
	)

	var exists bool
	err := row.Scan(&exists)
	return exists, err
}

func (db *PgConvoRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	row := db.conn.QueryRow(
		"INSERT INTO messages (id, conversation_id, sender_id, content_type, content, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) "+
			"RETURNING id, conversation_id, sender_id, content_type, content, created_at",
		params.Id,
		params.ConversationId,
		params.SenderId,
		params.ContentType,
		params.Content,
		time.Now().UTC(),
	)

	var m Message
	err := row.Scan(&m.Id, &m.ConversationId, &m.SenderId, &m.ContentType, &m.Content, &m.CreatedAt)
	return m, err
}

func (db *PgConvoRepository) ListMessagesByConversation(conversationId string) ([]Message, error) {
	rows, err := db.conn.Query(
		"SELECT id, conversation_id, sender_id, content_type, content, created_at "+
			"FROM messages WHERE conversation_id = $1 ORDER BY created_at",
		conversationId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Id, &m.ConversationId, &m.SenderId, &m.ContentType, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (db *PgConvoRepository) UpdateLastMessage(conversationId, messageId string) (Conversation, error) {
	if _, err := db.conn.Exec(
		"UPDATE conversations SET last_message_id = $2, updated_at = $3 WHERE id = $1",
		conversationId,
		messageId,
		time.Now().UTC(),
	); err != nil {
		return Conversation{}, err
	}

	return db.GetConversationById(conversationId)
}

func (db *PgConvoRepository) AddPushRegistration(userId string, reg types.PushRegistration) error {
	var expirationTime sql.NullTime
	if reg.ExpirationTime != nil {
		expirationTime = sql.NullTime{Time: *reg.ExpirationTime, Valid: true}
	}

	// ON CONFLICT DO NOTHING gives the registration set its add-if-absent
	// semantics: re-registering an endpoint is a no-op.
	_, err := db.conn.Exec(
		"INSERT INTO push_registrations (user_id, endpoint, expiration_time, p256dh_key, auth_secret, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (user_id, endpoint) DO NOTHING",
		userId,
		reg.Endpoint,
		expirationTime,
		reg.P256dhKey,
		reg.AuthSecret,
		time.Now().UTC(),
	)
	return err
}

func (db *PgConvoRepository) RemovePushRegistration(userId, endpoint string) error {
	_, err := db.conn.Exec(
		"DELETE FROM push_registrations WHERE user_id = $1 AND endpoint = $2",
		userId,
		endpoint,
	)
	return err
}

func (db *PgConvoRepository) ListPushRegistrations(userId string) ([]types.PushRegistration, error) {
	rows, err := db.conn.Query(
		"SELECT endpoint, expiration_time, p256dh_key, auth_secret "+
			"FROM push_registrations WHERE user_id = $1",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regs []types.PushRegistration
	for rows.Next() {
		var reg types.PushRegistration
		var expirationTime sql.NullTime
		if err := rows.Scan(&reg.Endpoint, &expirationTime, &reg.P256dhKey, &reg.AuthSecret); err != nil {
			return nil, err
		}
		if expirationTime.Valid {
			t := expirationTime.Time
			reg.ExpirationTime = &t
		}
		regs = append(regs, reg)
	}

	return regs, rows.Err()
}

func (db *PgConvoRepository) listParticipants(conversationId string) ([]User, error) {
	rows, err := db.conn.Query(
		"SELECT u.id, u.username, u.display_name, u.avatar, u.is_online, u.last_online, u.created_at, u.updated_at "+
			"FROM users u "+
			"JOIN conversation_participants cp ON cp.user_id = u.id "+
			"WHERE cp.conversation_id = $1 ORDER BY u.username",
		conversationId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.DisplayName,
		&u.Avatar,
		&u.IsOnline,
		&u.LastOnline,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}
