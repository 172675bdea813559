package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/dispatch"
	"qrattend/internal/makeup"
	"qrattend/internal/salary"
	"qrattend/internal/subject"
	"qrattend/internal/token"
)

type errorMapping struct {
	target  error
	status  int
	message string
}

// errorTable maps domain errors to responses. The first match wins.
var errorTable = []errorMapping{
	{attendance.ErrQRRequired, http.StatusBadRequest, "QR data is required"},
	{token.ErrMalformedToken, http.StatusBadRequest, "Invalid QR code format"},
	{attendance.ErrSubjectNotFound, http.StatusNotFound, "User not found"},
	{subject.ErrNotFound, http.StatusNotFound, "User not found"},
	{attendance.ErrInvalidDate, http.StatusBadRequest, "Invalid date format"},
	{attendance.ErrAmbiguousMatch, http.StatusBadRequest, "Ambiguous QR code"},
	{attendance.ErrAlreadyCompleted, http.StatusBadRequest, "Attendance already completed for this date"},
	{attendance.ErrAlreadyCheckedIn, http.StatusBadRequest, "Already checked in today"},
	{attendance.ErrNoCheckInRecord, http.StatusBadRequest, "No check-in record found"},
	{attendance.ErrAlreadyCheckedOut, http.StatusBadRequest, "Already checked out today"},
	{attendance.ErrContention, http.StatusConflict, "Attendance record changed concurrently, please retry"},

	{token.ErrInvalidName, http.StatusBadRequest, "User name cannot be encoded in a QR code"},

	{subject.ErrEmailTaken, http.StatusBadRequest, "User with this email already exists"},
	{subject.ErrNameTaken, http.StatusBadRequest, "User with this name already exists"},
	{subject.ErrInvalidInput, http.StatusBadRequest, "Name and a valid email are required"},
	{subject.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid email or password"},
	{auth.ErrRefreshRevoked, http.StatusUnauthorized, "Refresh token revoked or unknown"},

	{makeup.ErrNotFound, http.StatusNotFound, "Makeup class not found"},
	{makeup.ErrInvalidInput, http.StatusBadRequest, "Name, subject, original and new date/period are required"},
	{salary.ErrNotFound, http.StatusNotFound, "Teacher salary not found"},
	{salary.ErrInvalidInput, http.StatusBadRequest, "Teacher name is required and amounts must not be negative"},
	{salary.ErrInvalidMonth, http.StatusBadRequest, "Month must be YYYY-MM"},

	{dispatch.ErrAlreadyRunning, http.StatusConflict, "Dispatch already running"},
}

func lookupError(err error) (errorMapping, bool) {
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			return m, true
		}
	}
	return errorMapping{}, false
}

// fail writes the mapped response for err. Unmapped errors are logged and
// reported as 500 without detail.
func (s *Server) fail(c *gin.Context, err error) {
	m, ok := lookupError(err)
	if !ok {
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	body := gin.H{"error": m.message}
	var te *attendance.TransitionError
	if errors.As(err, &te) && te.Record != nil {
		body["attendance"] = s.recordView(*te.Record)
	}
	c.JSON(m.status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
