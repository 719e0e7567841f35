package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS emails (
	id                TEXT PRIMARY KEY,
	thread_id         TEXT NOT NULL DEFAULT '',
	subject           TEXT NOT NULL DEFAULT '',
	sender            TEXT NOT NULL DEFAULT '',
	recipient         TEXT NOT NULL DEFAULT '',
	received_date_raw TEXT NOT NULL DEFAULT '',
	parsed_date       TEXT,
	snippet           TEXT NOT NULL DEFAULT '',
	body              TEXT NOT NULL DEFAULT '',
	is_read           INTEGER NOT NULL DEFAULT 0 CHECK(is_read IN (0, 1)),
	labels            TEXT NOT NULL DEFAULT '[]',
	synced_at         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_emails_parsed_date ON emails(parsed_date);
CREATE INDEX IF NOT EXISTS idx_emails_is_read ON emails(is_read);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS rule_actions (
	id           TEXT PRIMARY KEY,
	email_id     TEXT NOT NULL,
	rule_id      TEXT NOT NULL,
	action_type  TEXT NOT NULL,
	action_value TEXT NOT NULL DEFAULT '',
	applied_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rule_actions_email_id ON rule_actions(email_id);
CREATE INDEX IF NOT EXISTS idx_rule_actions_rule_type ON rule_actions(rule_id, action_type);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
