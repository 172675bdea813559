package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) dispatchStatus(c *gin.Context) {
	if s.opts.Scheduler == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false, "running": false, "next_run": nil})
		return
	}
	body := gin.H{
		"enabled":  true,
		"running":  s.opts.Scheduler.Running(),
		"next_run": s.opts.Scheduler.Next().In(s.loc).Format(time.RFC3339),
	}
	if last, ok := s.opts.Scheduler.Last(); ok {
		body["last_report"] = last
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) runDispatch(c *gin.Context) {
	if s.opts.Scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Dispatch is not enabled"})
		return
	}
	// runs to completion even if the client disconnects
	report, err := s.opts.Scheduler.RunNow(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
