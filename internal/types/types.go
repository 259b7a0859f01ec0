// Package types defines core data structures for mailtriage.
package types

import "time"

// Email is the canonical, length-bounded form of a Gmail message.
// It is built once by the normalizer and treated as a value afterwards.
type Email struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	From     string `json:"from"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Date     string `json:"date"`
	Snippet  string `json:"snippet"`
	Body     string `json:"body"`
}

// WithBody returns a copy of e with the body replaced.
func (e Email) WithBody(body string) Email {
	e.Body = body
	return e
}

// Category is the closed set of triage categories.
type Category string

// Category constants.
const (
	CategoryFinance    Category = "Finance"
	CategorySales      Category = "Sales"
	CategorySupport    Category = "Support"
	CategoryPersonal   Category = "Personal"
	CategoryNewsletter Category = "Newsletter"
	CategorySpam       Category = "Spam"
	CategoryOther      Category = "Other"
)

// Categories lists every allowed category in prompt order.
var Categories = []Category{
	CategoryFinance, CategorySales, CategorySupport, CategoryPersonal,
	CategoryNewsletter, CategorySpam, CategoryOther,
}

// LabelableCategories get a default label from the policy engine.
var LabelableCategories = []Category{
	CategoryFinance, CategorySales, CategorySupport, CategoryNewsletter,
}

// Valid reports whether c is a member of Categories.
func (c Category) Valid() bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// Labelable reports whether c is one of LabelableCategories.
func (c Category) Labelable() bool {
	for _, v := range LabelableCategories {
		if v == c {
			return true
		}
	}
	return false
}

// Priority is the closed set of triage priorities.
type Priority string

// Priority constants.
const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Priorities lists every allowed priority.
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// Valid reports whether p is a member of Priorities.
func (p Priority) Valid() bool {
	for _, v := range Priorities {
		if v == p {
			return true
		}
	}
	return false
}

// Action is the closed set of triage actions.
type Action string

// Action constants. ActionNone is the neutral value the policy engine may overwrite.
const (
	ActionLabel      Action = "Label"
	ActionStar       Action = "Star"
	ActionArchive    Action = "Archive"
	ActionDraftReply Action = "DraftReply"
	ActionNone       Action = "None"
)

// Actions lists every allowed action.
var Actions = []Action{ActionLabel, ActionStar, ActionArchive, ActionDraftReply, ActionNone}

// Valid reports whether a is a member of Actions.
func (a Action) Valid() bool {
	for _, v := range Actions {
		if v == a {
			return true
		}
	}
	return false
}

// Decision is the structured triage outcome for one email.
// An empty Label means no label.
type Decision struct {
	Category Category `json:"category"`
	Priority Priority `json:"priority"`
	Action   Action   `json:"action"`
	Label    string   `json:"label,omitempty"`
	Star     bool     `json:"star"`
	Archive  bool     `json:"archive"`
	Reason   string   `json:"reason"`
}

// Mode values for a run.
const (
	ModeDryRun = "dry-run"
	ModeApply  = "apply"
)

// Audit status values.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// AuditRecord is one append-only line in the audit trail.
type AuditRecord struct {
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"ts"`
	EmailID   string    `json:"email_id"`
	ThreadID  string    `json:"threadId"`
	From      string    `json:"from"`
	Subject   string    `json:"subject"`
	Decision  *Decision `json:"decision"`
	Mode      string    `json:"mode"`
	Model     string    `json:"model"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
}

// RunSummary holds the counters for one batch run.
type RunSummary struct {
	RunID     string `json:"run_id"`
	Mode      string `json:"mode"`
	Model     string `json:"model"`
	Fetched   int    `json:"fetched"`
	Triaged   int    `json:"triaged"`
	Failed    int    `json:"failed"`
	Labeled   int    `json:"labeled"`
	Starred   int    `json:"starred"`
	Archived  int    `json:"archived"`
	AuditPath string `json:"audit_path,omitempty"`
}
