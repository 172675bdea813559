package api

import (
	"time"

	"qrattend/internal/attendance"
	"qrattend/internal/subject"
)

// timeLayout renders local wall-clock times without zone or fraction.
const timeLayout = "2006-01-02T15:04:05"

type userView struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	IsAdmin   bool   `json:"is_admin"`
	CreatedAt string `json:"created_at"`
}

type ownerView struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

type attendanceView struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	Date       string     `json:"date"`
	CheckIn    *string    `json:"check_in"`
	CheckOut   *string    `json:"check_out"`
	IsPresent  bool       `json:"is_present"`
	ClassCount int        `json:"class_count"`
	CreatedAt  string     `json:"created_at"`
	UpdatedAt  string     `json:"updated_at"`
	User       *ownerView `json:"user,omitempty"`
}

func (s *Server) formatTime(t time.Time) string {
	return t.In(s.loc).Format(timeLayout)
}

func (s *Server) formatNullable(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := s.formatTime(*t)
	return &v
}

func (s *Server) userView(sub subject.Subject) userView {
	return userView{
		ID:        sub.ID,
		Name:      sub.Name,
		Email:     sub.Email,
		IsAdmin:   sub.IsAdmin,
		CreatedAt: s.formatTime(sub.CreatedAt),
	}
}

func (s *Server) recordView(r attendance.Record) attendanceView {
	return attendanceView{
		ID:         r.ID,
		UserID:     r.UserID,
		Date:       r.Date,
		CheckIn:    s.formatNullable(r.CheckIn),
		CheckOut:   s.formatNullable(r.CheckOut),
		IsPresent:  r.IsPresent,
		ClassCount: r.ClassCount,
		CreatedAt:  s.formatTime(r.CreatedAt),
		UpdatedAt:  s.formatTime(r.UpdatedAt),
	}
}

func (s *Server) entryView(e attendance.Entry) attendanceView {
	v := s.recordView(e.Record)
	v.User = &ownerView{
		ID:        e.User.ID,
		Name:      e.User.Name,
		Email:     e.User.Email,
		CreatedAt: s.formatTime(e.User.CreatedAt),
	}
	return v
}

// parseClock accepts the time forms the admin UI sends. A bare HH:MM is
// taken on date. Blank means unset.
func (s *Server) parseClock(date string, v *string) (*time.Time, error) {
	if v == nil || *v == "" {
		return nil, nil
	}
	for _, layout := range []string{timeLayout, "2006-01-02 15:04:05", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, *v, s.loc); err == nil {
			return &t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, *v); err == nil {
		return &t, nil
	}
	for _, layout := range []string{"15:04:05", "15:04"} {
		if _, err := time.Parse(layout, *v); err == nil {
			t, err := time.ParseInLocation("2006-01-02 "+layout, date+" "+*v, s.loc)
			if err != nil {
				return nil, err
			}
			return &t, nil
		}
	}
	return nil, attendance.ErrInvalidDate
}
