package models

import "time"

// Activity-log event names emitted by the platform for enrolment changes.
const (
	ActivityEnrolmentCreated = "enrolment.created"
	ActivityEnrolmentUpdated = "enrolment.updated"
	ActivityEnrolmentDeleted = "enrolment.deleted"
)

// ActivityEntry is the read-only view of the platform's generic activity
// log. Entries may be missing entirely (retention pruning) and may refer to
// enrolments that no longer exist.
type ActivityEntry struct {
	ID            int64     `db:"id" json:"id"`
	EventName     string    `db:"event_name" json:"event_name"`
	EnrolmentID   int64     `db:"object_id" json:"enrolment_id"`
	CourseID      int64     `db:"course_id" json:"course_id"`
	RelatedUserID int64     `db:"related_user_id" json:"related_user_id"`
	ActorUserID   int64     `db:"actor_id" json:"actor_id"`
	TimeCreated   time.Time `db:"time_created" json:"time_created"`
}
