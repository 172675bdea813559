package attendance

import (
	"errors"
	"time"
)

// DateLayout is the ISO calendar date used for work dates and filters.
const DateLayout = "2006-01-02"

// Record is one subject's attendance for one calendar date.
type Record struct {
	ID         int64      `db:"id"`
	UserID     int64      `db:"user_id"`
	Date       string     `db:"work_date"`
	CheckIn    *time.Time `db:"check_in"`
	CheckOut   *time.Time `db:"check_out"`
	IsPresent  bool       `db:"is_present"`
	ClassCount int        `db:"class_count"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
}

// Owner is the public part of a subject joined onto projected records.
type Owner struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
}

// Entry is a record joined with its owner.
type Entry struct {
	Record
	User Owner `db:"user"`
}

// Filter narrows List. Zero values match everything; Start and End are inclusive.
type Filter struct {
	UserID *int64
	Start  string
	End    string
}

// OverrideInput is an administrative write that replaces a day's record wholesale.
type OverrideInput struct {
	UserID     int64
	Date       string
	CheckIn    *time.Time
	CheckOut   *time.Time
	IsPresent  bool
	ClassCount int
}

var (
	ErrQRRequired        = errors.New("QR data is required")
	ErrSubjectNotFound   = errors.New("user not found")
	ErrAmbiguousMatch    = errors.New("token matches more than one user")
	ErrInvalidDate       = errors.New("invalid date format")
	ErrRecordNotFound    = errors.New("attendance record not found")
	ErrAlreadyCompleted  = errors.New("attendance already completed for this date")
	ErrAlreadyCheckedIn  = errors.New("already checked in today")
	ErrNoCheckInRecord   = errors.New("no check-in record found")
	ErrAlreadyCheckedOut = errors.New("already checked out today")
	ErrContention        = errors.New("attendance record changed concurrently")

	errConflict = errors.New("conditional write lost")
)

// TransitionError is a rejected transition. Record is the untouched current
// record, nil when none exists.
type TransitionError struct {
	Err    error
	Record *Record
}

func (e *TransitionError) Error() string { return e.Err.Error() }

func (e *TransitionError) Unwrap() error { return e.Err }

// ParseDate validates an ISO date string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}
