package store

import (
	"context"

	"github.com/binaryash/gmail-rulemaster/internal/model"
)

const (
	statsDays       = 7
	statsTopSenders = 10
)

// Stats builds the reporting summary over the email store and ledger.
func (s *SQLiteStore) Stats(ctx context.Context) (*model.Stats, error) {
	stats := &model.Stats{}

	if err := s.db.GetContext(ctx, &stats.TotalEmails, "SELECT COUNT(*) FROM emails"); err != nil {
		return nil, &StoreError{Op: "stats total", Err: err}
	}

	if err := s.db.GetContext(ctx, &stats.UnreadEmails, "SELECT COUNT(*) FROM emails WHERE is_read = 0"); err != nil {
		return nil, &StoreError{Op: "stats unread", Err: err}
	}

	// The most recent days that have mail, not a fixed calendar window.
	err := s.db.SelectContext(ctx, &stats.EmailsByDay, `
		SELECT date(parsed_date) AS date, COUNT(*) AS count
		FROM emails
		WHERE parsed_date IS NOT NULL
		GROUP BY date(parsed_date)
		ORDER BY date DESC
		LIMIT ?`, statsDays)
	if err != nil {
		return nil, &StoreError{Op: "stats by day", Err: err}
	}

	err = s.db.SelectContext(ctx, &stats.TopSenders, `
		SELECT
			CASE
				WHEN instr(sender, '<') > 0 THEN trim(substr(sender, 1, instr(sender, '<') - 1))
				ELSE trim(sender)
			END AS sender_name,
			COUNT(*) AS count
		FROM emails
		GROUP BY sender_name
		ORDER BY count DESC, sender_name
		LIMIT ?`, statsTopSenders)
	if err != nil {
		return nil, &StoreError{Op: "stats senders", Err: err}
	}

	err = s.db.SelectContext(ctx, &stats.Labels, `
		SELECT l.value AS label, COUNT(*) AS count
		FROM emails, json_each(emails.labels) AS l
		GROUP BY l.value
		ORDER BY count DESC, label`)
	if err != nil {
		return nil, &StoreError{Op: "stats labels", Err: err}
	}

	stats.RuleActions, err = s.CountActionsByRule(ctx)
	if err != nil {
		return nil, err
	}

	return stats, nil
}
