package models

import "time"

// EnrolmentStatus is the status of a user's enrolment in a course.
type EnrolmentStatus string

// Possible enrolment statuses.
const (
	EnrolmentStatusActive    EnrolmentStatus = "active"
	EnrolmentStatusSuspended EnrolmentStatus = "suspended"
)

// Enrolment is the read-only view of the platform's enrolment-state table.
// Only the current state is visible; history lives in the audit trail.
type Enrolment struct {
	ID           int64           `db:"id" json:"id"`
	CourseID     int64           `db:"course_id" json:"course_id"`
	UserID       int64           `db:"user_id" json:"user_id"`
	Status       EnrolmentStatus `db:"status" json:"status"`
	TimeCreated  time.Time       `db:"time_created" json:"time_created"`
	TimeModified time.Time       `db:"time_modified" json:"time_modified"`
}

// LifecycleEventType identifies the kind of enrolment lifecycle notification.
type LifecycleEventType string

// Lifecycle notification types delivered to the recorder.
const (
	LifecycleCreated LifecycleEventType = "created"
	LifecycleUpdated LifecycleEventType = "updated"
	LifecycleDeleted LifecycleEventType = "deleted"
)

// LifecycleEvent is a single enrolment lifecycle notification. For deleted
// events the enrolment row is already gone, so the payload carries the final
// status snapshot.
type LifecycleEvent struct {
	Type        LifecycleEventType `json:"type" validate:"required,oneof=created updated deleted"`
	EnrolmentID int64              `json:"enrolment_id" validate:"required,gt=0"`
	CourseID    int64              `json:"course_id" validate:"required,gt=0"`
	UserID      int64              `json:"user_id" validate:"required,gt=0"`
	ActorUserID int64              `json:"actor_id"`
	Status      EnrolmentStatus    `json:"status,omitempty"`
	ObservedAt  time.Time          `json:"observed_at"`
}
