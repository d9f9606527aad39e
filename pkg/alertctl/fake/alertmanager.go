package fake

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (s *Server) registerAlertmanager(api *gin.RouterGroup) {
	api.POST("/alerts", s.postAlerts)
	api.GET("/alerts", s.getAlerts)
	api.POST("/silences", s.postSilence)
}

func (s *Server) postAlerts(c *gin.Context) {
	var alerts []map[string]any
	if err := c.ShouldBindJSON(&alerts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error()})
		return
	}
	s.mu.Lock()
	s.pushed = append(s.pushed, alerts...)
	s.mu.Unlock()
	c.Status(http.StatusOK)
}

func (s *Server) getAlerts(c *gin.Context) {
	s.mu.Lock()
	alerts := s.amAlerts
	s.mu.Unlock()
	if alerts == nil {
		alerts = []map[string]any{}
	}
	c.JSON(http.StatusOK, alerts)
}

func (s *Server) postSilence(c *gin.Context) {
	var silence map[string]any
	if err := c.ShouldBindJSON(&silence); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error()})
		return
	}
	s.mu.Lock()
	s.silences = append(s.silences, silence)
	s.mu.Unlock()
	if s.behavior.OmitSilenceID {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, gin.H{"silenceID": uuid.NewString()})
}
