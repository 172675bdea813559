package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"qrattend/internal/makeup"
	"qrattend/internal/salary"
)

func (s *Server) listMakeup(c *gin.Context) {
	list, err := s.opts.Makeup.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) createMakeup(c *gin.Context) {
	var req makeup.Class
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, makeup.ErrInvalidInput)
		return
	}
	created, err := s.opts.Makeup.Create(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) deleteMakeup(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.opts.Makeup.Delete(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listSalaries(c *gin.Context) {
	list, err := s.opts.Salaries.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) saveSalary(c *gin.Context) {
	var req salary.Rate
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, salary.ErrInvalidInput)
		return
	}
	saved, err := s.opts.Salaries.Save(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (s *Server) deleteSalary(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.opts.Salaries.Delete(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// exportSalaries streams the payroll workbook for ?month=YYYY-MM, or rates only without it.
func (s *Server) exportSalaries(c *gin.Context) {
	month := c.Query("month")
	lines, err := s.opts.Salaries.Payroll(c.Request.Context(), month)
	if err != nil {
		s.fail(c, err)
		return
	}
	name := "teacher_salaries.xlsx"
	if month != "" {
		name = fmt.Sprintf("teacher_salaries_%s.xlsx", month)
	}
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Status(http.StatusOK)
	if err := salary.WriteXLSX(c.Writer, month, lines); err != nil {
		_ = c.Error(err)
	}
}
