package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
	"qrattend/internal/dispatch"
	"qrattend/internal/qrimage"
	"qrattend/internal/subject"
)

type qrRequest struct {
	UserID int64  `json:"user_id" binding:"required"`
	Date   string `json:"date"`
}

// qrTarget binds a qrRequest and loads its subject, defaulting the date to today.
func (s *Server) qrTarget(c *gin.Context) (subject.Subject, string, bool) {
	var req qrRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "user_id is required")
		return subject.Subject{}, "", false
	}
	if req.Date == "" {
		req.Date = s.opts.Attendance.Today()
	}
	if _, err := attendance.ParseDate(req.Date); err != nil {
		s.fail(c, err)
		return subject.Subject{}, "", false
	}
	sub, err := s.opts.Subjects.Get(c.Request.Context(), req.UserID)
	if err != nil {
		s.fail(c, err)
		return subject.Subject{}, "", false
	}
	return sub, req.Date, true
}

func (s *Server) generateQR(c *gin.Context) {
	sub, date, ok := s.qrTarget(c)
	if !ok {
		return
	}
	tok, err := s.opts.Codec.Encode(sub.Name, date)
	if err != nil {
		s.fail(c, err)
		return
	}
	png, err := qrimage.PNG(tok)
	if err != nil {
		s.fail(c, err)
		return
	}
	resp := gin.H{
		"qr_code": qrimage.DataURL(png),
		"qr_data": tok,
	}
	if s.opts.Images != nil {
		res, err := s.opts.Images.UploadPNG(c.Request.Context(), png, fmt.Sprintf("qr_%d_%s", sub.ID, date))
		if err != nil {
			log.Printf("qr image upload failed for user %d: %v", sub.ID, err)
		} else {
			resp["qr_url"] = res.SecureURL
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) sendQREmail(c *gin.Context) {
	sub, date, ok := s.qrTarget(c)
	if !ok {
		return
	}
	tok, err := s.opts.Codec.Encode(sub.Name, date)
	if err != nil {
		s.fail(c, err)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.MailTimeout)
	defer cancel()
	err = s.opts.Delivery.Deliver(ctx, sub, date)
	s.opts.Metrics.ObserveDelivery(err)
	if err != nil {
		log.Printf("send qr email to user %d failed: %v", sub.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send email"})
		return
	}
	if _, queued := s.opts.Delivery.(dispatch.QueueDeliverer); queued {
		c.JSON(http.StatusOK, gin.H{"message": "QR code email queued", "queued": true, "qr_data": tok})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "QR code sent successfully", "qr_data": tok})
}
