package models

import "time"

// ChangeKind classifies a single observed enrolment change.
//
// Kinds are persisted by name, never by ordinal: the integer encodings used
// by earlier versions of this feature shifted between releases.
type ChangeKind string

const (
	// ChangeInitial is the baseline snapshot written when auditing begins.
	// It exists purely as a point of comparison and is excluded from every
	// user-facing view.
	ChangeInitial ChangeKind = "INITIAL"
	// ChangeCreated records the enrolment coming into existence.
	ChangeCreated ChangeKind = "CREATED"
	// ChangeUpdated records a change that did not alter the status, or a
	// historical update whose status at the time is unrecoverable.
	ChangeUpdated ChangeKind = "UPDATED"
	// ChangeStatusSuspended records a transition to the suspended status.
	ChangeStatusSuspended ChangeKind = "STATUS_SUSPENDED"
	// ChangeStatusActive records a transition back to the active status.
	ChangeStatusActive ChangeKind = "STATUS_ACTIVE"
	// ChangeDeleted records the enrolment being removed.
	ChangeDeleted ChangeKind = "DELETED"
)

// Description renders a kind as human-readable report text.
func (k ChangeKind) Description() string {
	switch k {
	case ChangeCreated:
		return "Enrolment created"
	case ChangeUpdated:
		return "Enrolment updated"
	case ChangeStatusSuspended:
		return "Enrolment suspended"
	case ChangeStatusActive:
		return "Enrolment made active"
	case ChangeDeleted:
		return "Enrolment deleted"
	default:
		return ""
	}
}

// AuditRecord is one immutable row of the enrolment audit trail. Rows are
// append-only; nothing updates them and only privacy erasure deletes them.
type AuditRecord struct {
	ID            int64           `db:"id" json:"id"`
	EnrolmentID   int64           `db:"enrolment_id" json:"enrolment_id"`
	CourseID      int64           `db:"course_id" json:"course_id"`
	SubjectUserID int64           `db:"user_id" json:"user_id"`
	ActorUserID   int64           `db:"actor_id" json:"actor_id"`
	ChangeKind    ChangeKind      `db:"change_kind" json:"change_kind"`
	Status        EnrolmentStatus `db:"status" json:"status"`
	ObservedAt    time.Time       `db:"observed_at" json:"observed_at"`
}

// AuditRecordDetail enriches AuditRecord with user and course names for the
// report view.
type AuditRecordDetail struct {
	AuditRecord
	UserFirstName string `db:"user_firstname" json:"user_firstname"`
	UserLastName  string `db:"user_lastname" json:"user_lastname"`
	ActorName     string `db:"actor_name" json:"actor_name"`
	CourseName    string `db:"course_name" json:"course_name"`
}

// AuditFilter provides filters for browsing the audit report. INITIAL rows
// are excluded regardless of the filter.
type AuditFilter struct {
	CourseID   int64      `json:"course_id,omitempty"`
	UserID     int64      `json:"user_id,omitempty"`
	FirstName  string     `json:"firstname,omitempty"`
	LastName   string     `json:"lastname,omitempty"`
	CourseName string     `json:"course_name,omitempty"`
	From       *time.Time `json:"from,omitempty"`
	To         *time.Time `json:"to,omitempty"`
	Page       int        `json:"page,omitempty"`
	PageSize   int        `json:"page_size,omitempty"`
	SortBy     string     `json:"sort_by,omitempty"`
	SortOrder  string     `json:"sort_order,omitempty"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
