package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/binaryash/gmail-rulemaster/internal/model"
)

// emailRow is the emails table as scanned by sqlx.
type emailRow struct {
	ID              string         `db:"id"`
	ThreadID        string         `db:"thread_id"`
	Subject         string         `db:"subject"`
	Sender          string         `db:"sender"`
	Recipient       string         `db:"recipient"`
	ReceivedDateRaw string         `db:"received_date_raw"`
	ParsedDate      sql.NullString `db:"parsed_date"`
	Snippet         string         `db:"snippet"`
	Body            string         `db:"body"`
	IsRead          int            `db:"is_read"`
	Labels          string         `db:"labels"`
	SyncedAt        string         `db:"synced_at"`
}

const emailColumns = `id, thread_id, subject, sender, recipient, received_date_raw,
	parsed_date, snippet, body, is_read, labels, synced_at`

// UpsertEmail inserts an email or replaces all mutable fields of the row
// sharing its id.
func (s *SQLiteStore) UpsertEmail(ctx context.Context, email model.Email) error {
	if email.ID == "" {
		return &StoreError{Op: "upsert email", Err: errors.New("empty id")}
	}

	labels := email.Labels
	if labels == nil {
		labels = []string{}
	}
	labelsJSON, err := json.Marshal(labels)
	if err != nil {
		return &StoreError{Op: "upsert email", Key: email.ID, Err: fmt.Errorf("marshaling labels: %w", err)}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO emails (`+emailColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			thread_id         = excluded.thread_id,
			subject           = excluded.subject,
			sender            = excluded.sender,
			recipient         = excluded.recipient,
			received_date_raw = excluded.received_date_raw,
			parsed_date       = excluded.parsed_date,
			snippet           = excluded.snippet,
			body              = excluded.body,
			is_read           = excluded.is_read,
			labels            = excluded.labels,
			synced_at         = excluded.synced_at`,
		email.ID, email.ThreadID, email.Subject, email.Sender, email.Recipient,
		email.ReceivedDateRaw, formatNullTime(email.ParsedDate),
		email.Snippet, email.Body, boolToInt(email.IsRead),
		string(labelsJSON), formatTime(s.now()),
	)
	if err != nil {
		return &StoreError{Op: "upsert email", Key: email.ID, Err: err}
	}

	return nil
}

// ListEmails returns up to limit emails ordered by parsed date, newest
// first, with undated emails last. A non-positive limit returns all rows.
func (s *SQLiteStore) ListEmails(ctx context.Context, limit int) ([]model.Email, error) {
	query := `SELECT ` + emailColumns + ` FROM emails
		ORDER BY parsed_date IS NULL, parsed_date DESC, id`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, &StoreError{Op: "list emails", Err: err}
	}
	defer rows.Close()

	var emails []model.Email
	for rows.Next() {
		email, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}

	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "list emails", Err: err}
	}
	return emails, nil
}

// GetEmail retrieves a single email by its id.
func (s *SQLiteStore) GetEmail(ctx context.Context, id string) (*model.Email, error) {
	var row emailRow
	err := s.db.GetContext(ctx, &row, `SELECT `+emailColumns+` FROM emails WHERE id = ?`, id)
	if err != nil {
		return nil, &StoreError{Op: "get email", Key: id, Err: err}
	}

	email, err := row.toModel()
	if err != nil {
		return nil, &StoreError{Op: "get email", Key: id, Err: err}
	}
	return &email, nil
}

// scanEmail scans an email row from a sqlx.Rows result set.
func scanEmail(rows *sqlx.Rows) (model.Email, error) {
	var row emailRow
	if err := rows.StructScan(&row); err != nil {
		return model.Email{}, fmt.Errorf("scanning email row: %w", err)
	}

	email, err := row.toModel()
	if err != nil {
		return model.Email{}, &StoreError{Op: "scan email", Key: row.ID, Err: err}
	}
	return email, nil
}

func (r emailRow) toModel() (model.Email, error) {
	email := model.Email{
		ID:              r.ID,
		ThreadID:        r.ThreadID,
		Subject:         r.Subject,
		Sender:          r.Sender,
		Recipient:       r.Recipient,
		ReceivedDateRaw: r.ReceivedDateRaw,
		Snippet:         r.Snippet,
		Body:            r.Body,
		IsRead:          r.IsRead != 0,
	}

	if r.ParsedDate.Valid {
		t, err := parseTime(r.ParsedDate.String)
		if err != nil {
			return model.Email{}, err
		}
		email.ParsedDate = &t
	}

	if r.Labels != "" {
		if err := json.Unmarshal([]byte(r.Labels), &email.Labels); err != nil {
			return model.Email{}, fmt.Errorf("unmarshaling labels: %w", err)
		}
	}

	return email, nil
}
