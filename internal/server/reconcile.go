package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (s *Server) RunReconcile(c *gin.Context) {
	if s.reconciler == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	report, err := s.reconciler.RunOnce(c.Request.Context())
	if err != nil {
		// a partial pass still reports what it corrected
		s.log.Warn("reconcile finished with errors", zap.Error(err))
		if report.Processed == 0 {
			AbortWithError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}
