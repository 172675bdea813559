package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"qrattend/internal/auth"
	"qrattend/internal/subject"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email and password are required")
		return
	}
	sub, err := s.opts.Subjects.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.issue(c, sub, roleOf(sub))
}

// staffLogin issues a staff token for any account, admins included.
func (s *Server) staffLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email and password are required")
		return
	}
	sub, err := s.opts.Subjects.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.issue(c, sub, auth.RoleStaff)
}

func (s *Server) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "refresh_token is required")
		return
	}
	claims, err := s.opts.Issuer.Parse(req.RefreshToken, auth.KindRefresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	if err := s.opts.Refresh.Consume(c.Request.Context(), req.RefreshToken); err != nil {
		s.fail(c, err)
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	// reload so role changes apply on refresh
	sub, err := s.opts.Subjects.Get(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	role := roleOf(sub)
	if claims.IsStaff() {
		role = auth.RoleStaff
	}
	s.issue(c, sub, role)
}

func (s *Server) logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err == nil {
		if err := s.opts.Refresh.Revoke(c.Request.Context(), req.RefreshToken); err != nil {
			s.fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out", "logged_in": false, "staff_logged_in": false})
}

func (s *Server) status(c *gin.Context) {
	claims, ok := auth.FromContext(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"logged_in": false, "is_admin": false, "staff_logged_in": false})
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"logged_in": false, "is_admin": false, "staff_logged_in": false})
		return
	}
	sub, err := s.opts.Subjects.Get(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"logged_in": false, "is_admin": false, "staff_logged_in": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"logged_in":       true,
		"is_admin":        claims.IsAdmin(),
		"staff_logged_in": claims.IsStaff(),
		"user":            s.userView(sub),
	})
}

func roleOf(sub subject.Subject) string {
	if sub.IsAdmin {
		return auth.RoleAdmin
	}
	return auth.RoleUser
}

func (s *Server) issue(c *gin.Context, sub subject.Subject, role string) {
	tokens, err := s.opts.Issuer.Issue(sub.ID, role)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.opts.Refresh.Save(c.Request.Context(), sub.ID, tokens.RefreshToken, tokens.RefreshExp); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
		"role":          role,
		"user":          s.userView(sub),
	})
}

