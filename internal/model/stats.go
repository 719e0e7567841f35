package model

// DayCount is the number of emails received on one calendar day.
type DayCount struct {
	Date  string `db:"date" json:"date"`
	Count int    `db:"count" json:"count"`
}

// SenderCount is the number of emails from one sender display name.
type SenderCount struct {
	Sender string `db:"sender_name" json:"sender"`
	Count  int    `db:"count" json:"count"`
}

// LabelCount is the number of emails carrying one label.
type LabelCount struct {
	Label string `db:"label" json:"label"`
	Count int    `db:"count" json:"count"`
}

// Stats summarizes the email store and action ledger for reporting.
type Stats struct {
	TotalEmails  int               `json:"total_emails"`
	UnreadEmails int               `json:"unread_emails"`
	EmailsByDay  []DayCount        `json:"emails_by_day"`
	TopSenders   []SenderCount     `json:"top_senders"`
	Labels       []LabelCount      `json:"labels"`
	RuleActions  []RuleActionCount `json:"rule_actions"`
}
