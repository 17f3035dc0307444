package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Ouederniamin/lead-fb-sub001/internal/models"
)

const contactCols = `id, account_id, contact_name, contact_external_id, conversation_ref,
	last_their_message, last_message_is_ours, state, last_activity_at, created_at, updated_at`

func scanContact(row interface{ Scan(...any) error }) (*models.Contact, error) {
	var c models.Contact
	var st string
	var lastActivity sql.NullTime
	err := row.Scan(&c.ID, &c.AccountID, &c.ContactName, &c.ContactExternalID, &c.ConversationRef,
		&c.LastTheirMessage, &c.LastMessageIsOurs, &st, &lastActivity, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.State = models.ContactState(st)
	if lastActivity.Valid {
		c.LastActivityAt = lastActivity.Time
	}
	return &c, nil
}

// UpsertContact creates or refreshes a contact record. Contacts are normally
// created by the out-of-band lead matching process; the pipeline itself only
// updates sync state and appends messages.
func (s *Store) UpsertContact(ctx context.Context, c *models.Contact) (int64, error) {
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.State == "" {
		c.State = models.StateNew
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO contacts
		(account_id, contact_name, contact_external_id, conversation_ref, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, contact_name) DO UPDATE SET
		contact_external_id=excluded.contact_external_id,
		conversation_ref=excluded.conversation_ref,
		updated_at=excluded.updated_at
	`, c.AccountID, c.ContactName, c.ContactExternalID, c.ConversationRef, string(c.State), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	if id == 0 {
		row := s.db.QueryRowContext(ctx,
			`SELECT id FROM contacts WHERE account_id = ? AND contact_name = ?`, c.AccountID, c.ContactName)
		_ = row.Scan(&id)
	}
	c.ID = id
	return id, nil
}

func (s *Store) GetContact(ctx context.Context, id int64) (*models.Contact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contactCols+` FROM contacts WHERE id = ?`, id)
	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// ListContacts returns all contacts for one account, oldest first.
func (s *Store) ListContacts(ctx context.Context, accountID string) ([]models.Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contactCols+` FROM contacts WHERE account_id = ? ORDER BY id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// StageNeedsReply atomically flags a contact for processing: state moves to
// NEEDS_REPLY and the staged preview replaces last_their_message, guarded by
// a compare-and-swap on the previous preview so an overlapping cycle cannot
// double-process the same text. Returns ErrConflict when the guard fails.
func (s *Store) StageNeedsReply(ctx context.Context, contactID int64, oldPreview, newPreview string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE contacts SET
		state = ?, last_their_message = ?, last_message_is_ours = 0, last_activity_at = ?, updated_at = ?
		WHERE id = ? AND last_their_message = ?`,
		string(models.StateNeedsReply), newPreview, now, now, contactID, oldPreview)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// MarkReplied records a completed reply batch: WAITING, last message is ours.
func (s *Store) MarkReplied(ctx context.Context, contactID int64, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE contacts SET
		state = ?, last_message_is_ours = 1, last_activity_at = ?, updated_at = ?
		WHERE id = ?`,
		string(models.StateWaiting), now, now, contactID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetState(ctx context.Context, contactID int64, state models.ContactState) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET state = ?, updated_at = ? WHERE id = ?`,
		string(state), time.Now(), contactID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Messages returns a contact's full ordered history, oldest first.
func (s *Store) Messages(ctx context.Context, contactID int64) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, contact_id, sender, content, created_at FROM messages WHERE contact_id = ? ORDER BY id`,
		contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Message
	for rows.Next() {
		var m models.Message
		var sender string
		if err := rows.Scan(&m.ID, &m.ContactID, &sender, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Sender = models.Sender(sender)
		out = append(out, m)
	}
	return out, rows.Err()
}

// AppendMessages appends contents in order, skipping any text already present
// for the contact. The UNIQUE(contact_id, content) index makes the
// de-duplication durable even across interleaved cycles. Returns the number
// actually inserted.
func (s *Store) AppendMessages(ctx context.Context, contactID int64, sender models.Sender, contents []string, now time.Time) (int, error) {
	if len(contents) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	inserted := 0
	for _, content := range contents {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO messages (contact_id, sender, content, created_at) VALUES (?, ?, ?, ?)`,
			contactID, string(sender), content, now)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// AppendMessage appends one message; used for send-then-persist of outgoing
// replies so a mid-batch failure leaves a resumable history.
func (s *Store) AppendMessage(ctx context.Context, contactID int64, sender models.Sender, content string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO messages (contact_id, sender, content, created_at) VALUES (?, ?, ?, ?)`,
		contactID, string(sender), content, now)
	return err
}

// CountMessagesToday reports how many messages of one direction were recorded
// today for an account, for daily-cap observability.
func (s *Store) CountMessagesToday(ctx context.Context, accountID string, sender models.Sender) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages m
		JOIN contacts c ON c.id = m.contact_id
		WHERE c.account_id = ? AND m.sender = ? AND DATE(m.created_at) = DATE('now', 'localtime')`,
		accountID, string(sender))
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
