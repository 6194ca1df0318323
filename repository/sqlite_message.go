package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/akinalp/opti/database"
	"github.com/akinalp/opti/models"
)

// markViewedChunk, tek UPDATE'te IN listesine konan en fazla id sayısı.
const markViewedChunk = 500

// sqliteMessageRepo, MessageRepository interface'inin SQLite implementasyonu.
type sqliteMessageRepo struct {
	db database.TxQuerier
}

// NewSQLiteMessageRepo, constructor: interface döner.
func NewSQLiteMessageRepo(db database.TxQuerier) MessageRepository {
	return &sqliteMessageRepo{db: db}
}

func (r *sqliteMessageRepo) WithTx(tx database.TxQuerier) MessageRepository {
	return &sqliteMessageRepo{db: tx}
}

func (r *sqliteMessageRepo) Create(ctx context.Context, msg *models.Message) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, sender_id, recipient_id, text, created_at, is_viewed)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SenderID, msg.RecipientID, msg.Text, msg.CreatedAt.UnixMicro(), msg.IsViewed,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// pairCondition, sırasız çifti idx_messages_pair ifadeleriyle eşler.
// İfadeler index tanımıyla birebir aynı olmalı; aksi halde index kullanılmaz.
const pairCondition = "min(sender_id, recipient_id) = ? AND max(sender_id, recipient_id) = ?"

func (r *sqliteMessageRepo) GetConversation(ctx context.Context, userA, userB string) ([]models.Message, error) {
	least, greatest := models.CanonicalPair(userA, userB)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, sender_id, recipient_id, text, created_at, is_viewed
		 FROM messages
		 WHERE `+pairCondition+`
		 ORDER BY created_at ASC, id ASC`,
		least, greatest,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var m models.Message
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Text, &createdAt, &m.IsViewed); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.CreatedAt = fromMicros(createdAt)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// GetPreview, konuşma listesini tek sorguda hesaplar.
//
// latest: her sırasız çift için ROW_NUMBER ile (created_at DESC, id DESC)
// sırasında ilk mesaj. Aynı mikrosaniyedeki iki mesajda id (UUIDv7) karar verir.
// unread: karşı tarafın çağırana gönderdiği is_viewed=0 mesaj sayısı.
// LEFT JOIN + COALESCE ile okunmamışı olmayan konuşmalar da 0 ile döner.
func (r *sqliteMessageRepo) GetPreview(ctx context.Context, userID string) ([]models.ChatPreview, error) {
	query := `
		WITH latest AS (
			SELECT id, sender_id, recipient_id, text, created_at, is_viewed,
				CASE WHEN sender_id = ? THEN recipient_id ELSE sender_id END AS other_id,
				ROW_NUMBER() OVER (
					PARTITION BY min(sender_id, recipient_id), max(sender_id, recipient_id)
					ORDER BY created_at DESC, id DESC
				) AS rn
			FROM messages
			WHERE sender_id = ? OR recipient_id = ?
		),
		unread AS (
			SELECT sender_id AS other_id, COUNT(*) AS cnt
			FROM messages
			WHERE recipient_id = ? AND is_viewed = 0
			GROUP BY sender_id
		)
		SELECT l.id, l.sender_id, l.recipient_id, l.text, l.created_at, l.is_viewed,
			l.other_id, COALESCE(u.nickname, ''), COALESCE(un.cnt, 0)
		FROM latest l
		LEFT JOIN users u ON u.id = l.other_id
		LEFT JOIN unread un ON un.other_id = l.other_id
		WHERE l.rn = 1
		ORDER BY l.created_at DESC, l.id DESC`

	rows, err := r.db.QueryContext(ctx, query, userID, userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat preview: %w", err)
	}
	defer rows.Close()

	previews := []models.ChatPreview{}
	for rows.Next() {
		var p models.ChatPreview
		var createdAt int64
		if err := rows.Scan(
			&p.LastMessage.ID, &p.LastMessage.SenderID, &p.LastMessage.RecipientID,
			&p.LastMessage.Text, &createdAt, &p.LastMessage.IsViewed,
			&p.User.ID, &p.User.Nickname, &p.UnreadCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chat preview: %w", err)
		}
		p.LastMessage.CreatedAt = fromMicros(createdAt)
		previews = append(previews, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat preview: %w", err)
	}

	return previews, nil
}

// MarkViewed, id listesini parçalar halinde günceller.
// recipient_id koşulu sahte bir id listesinin başkasının mesajını
// işaretlemesini engeller; is_viewed = 0 koşulu tekrarları no-op yapar.
func (r *sqliteMessageRepo) MarkViewed(ctx context.Context, recipientID string, messageIDs []string) (int64, error) {
	var total int64

	for start := 0; start < len(messageIDs); start += markViewedChunk {
		end := min(start+markViewedChunk, len(messageIDs))
		chunk := messageIDs[start:end]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, recipientID)
		for _, id := range chunk {
			args = append(args, id)
		}

		res, err := r.db.ExecContext(ctx,
			`UPDATE messages SET is_viewed = 1
			 WHERE recipient_id = ? AND is_viewed = 0 AND id IN (`+placeholders(len(chunk))+`)`,
			args...,
		)
		if err != nil {
			return total, fmt.Errorf("failed to mark messages viewed: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to check affected rows: %w", err)
		}
		total += affected
	}

	return total, nil
}

func (r *sqliteMessageRepo) DeleteConversation(ctx context.Context, userA, userB string) (int64, error) {
	least, greatest := models.CanonicalPair(userA, userB)

	res, err := r.db.ExecContext(ctx, "DELETE FROM messages WHERE "+pairCondition, least, greatest)
	if err != nil {
		return 0, fmt.Errorf("failed to delete conversation: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return affected, nil
}

// placeholders, n adet "?" üretir: "?,?,?".
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}
