package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
)

type checkRequest struct {
	QRData string `json:"qr_data"`
}

type overrideRequest struct {
	UserID     int64   `json:"user_id" binding:"required"`
	Date       string  `json:"date" binding:"required"`
	CheckIn    *string `json:"check_in"`
	CheckOut   *string `json:"check_out"`
	IsPresent  bool    `json:"is_present"`
	ClassCount int     `json:"class_count"`
}

func actionMessage(a attendance.Action) string {
	if a == attendance.ActionCheckOut {
		return "Checked out successfully"
	}
	return "Checked in successfully"
}

func (s *Server) checkAttendance(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, attendance.ErrQRRequired)
		return
	}
	res, err := s.opts.Attendance.Scan(c.Request.Context(), req.QRData)
	if err != nil {
		s.opts.Metrics.ObserveScan(scanOutcome(err))
		s.fail(c, err)
		return
	}
	s.opts.Metrics.ObserveScan(res.Action.String())
	c.JSON(http.StatusOK, gin.H{
		"message":    actionMessage(res.Action),
		"attendance": s.recordView(res.Record),
	})
}

func scanOutcome(err error) string {
	if m, ok := lookupError(err); ok && m.status < http.StatusInternalServerError {
		return "rejected"
	}
	return "error"
}

func (s *Server) checkIn(c *gin.Context) {
	s.explicit(c, s.opts.Attendance.CheckIn)
}

func (s *Server) checkOut(c *gin.Context) {
	s.explicit(c, s.opts.Attendance.CheckOut)
}

func (s *Server) explicit(c *gin.Context, apply func(ctx context.Context, userID int64) (attendance.Result, error)) {
	claims, _ := auth.FromContext(c)
	userID, err := claims.UserID()
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token subject"})
		return
	}
	res, err := apply(c.Request.Context(), userID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    actionMessage(res.Action),
		"attendance": s.recordView(res.Record),
	})
}

func (s *Server) listAttendance(c *gin.Context) {
	f := attendance.Filter{
		Start: c.Query("start_date"),
		End:   c.Query("end_date"),
	}
	if v := c.Query("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			badRequest(c, "Invalid user_id")
			return
		}
		f.UserID = &id
	}
	entries, err := s.opts.Attendance.List(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]attendanceView, 0, len(entries))
	for _, e := range entries {
		out = append(out, s.entryView(e))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) overrideAttendance(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "user_id and date are required")
		return
	}
	if _, err := attendance.ParseDate(req.Date); err != nil {
		s.fail(c, err)
		return
	}
	checkIn, err := s.parseClock(req.Date, req.CheckIn)
	if err != nil {
		badRequest(c, "Invalid check_in time")
		return
	}
	checkOut, err := s.parseClock(req.Date, req.CheckOut)
	if err != nil {
		badRequest(c, "Invalid check_out time")
		return
	}
	rec, err := s.opts.Attendance.Override(c.Request.Context(), attendance.OverrideInput{
		UserID:     req.UserID,
		Date:       req.Date,
		CheckIn:    checkIn,
		CheckOut:   checkOut,
		IsPresent:  req.IsPresent,
		ClassCount: req.ClassCount,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Attendance updated", "attendance": s.recordView(rec)})
}
