package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	balancedomain "github.com/chapterhq/examslots/internal/balance/domain"
)

func (s *Server) GetCoordinatorBalance(c *gin.Context) {
	coordinatorID, ok := parseIDParam(c, "coordinator_id")
	if !ok {
		return
	}

	balance, err := s.balanceSvc.GetBalance(c.Request.Context(), coordinatorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, balance)
}

func (s *Server) GetSlotAvailability(c *gin.Context) {
	coordinatorID, ok := parseIDParam(c, "coordinator_id")
	if !ok {
		return
	}
	required := parseIntQuery(c, "required", 1)

	availability, err := s.balanceSvc.CanConsume(c.Request.Context(), coordinatorID, required)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, availability)
}

func (s *Server) ListCoordinatorUsage(c *gin.Context) {
	coordinatorID, ok := parseIDParam(c, "coordinator_id")
	if !ok {
		return
	}
	limit := parseIntQuery(c, "limit", 0)

	entries, err := s.balanceSvc.ListUsage(c.Request.Context(), coordinatorID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

type consumeSlotsRequest struct {
	CoordinatorID  int64  `json:"coordinator_id"`
	RegistrationID int64  `json:"registration_id"`
	Slots          int    `json:"slots"`
	UsageType      string `json:"usage_type"`
	Notes          string `json:"notes"`
}

func (s *Server) ConsumeSlots(c *gin.Context) {
	var req consumeSlotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if req.Slots == 0 {
		req.Slots = 1
	}
	usageType := balancedomain.UsageType(req.UsageType)
	if usageType == "" {
		usageType = balancedomain.UsageTypeRegistration
		if req.Slots > 1 {
			usageType = balancedomain.UsageTypeBulkRegistration
		}
	}

	result, err := s.balanceSvc.Consume(c.Request.Context(), balancedomain.ConsumeRequest{
		CoordinatorID:  snowflakeID(req.CoordinatorID),
		RegistrationID: snowflakeID(req.RegistrationID),
		Slots:          req.Slots,
		UsageType:      usageType,
		Notes:          req.Notes,
	})
	if err != nil {
		// The guard reports refusal as a result, not a bare error, so the
		// registration flow can show the balance alongside the message.
		if result != nil && errors.Is(err, balancedomain.ErrInsufficientSlots) {
			c.JSON(http.StatusConflict, result)
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type adjustBalanceRequest struct {
	ChapterID int64  `json:"chapter_id"`
	Delta     int    `json:"delta"`
	Notes     string `json:"notes"`
}

func (s *Server) AdjustCoordinatorBalance(c *gin.Context) {
	coordinatorID, ok := parseIDParam(c, "coordinator_id")
	if !ok {
		return
	}

	var req adjustBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	balance, err := s.balanceSvc.Adjust(c.Request.Context(), balancedomain.AdjustRequest{
		CoordinatorID: coordinatorID,
		ChapterID:     snowflakeID(req.ChapterID),
		Delta:         req.Delta,
		Notes:         req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, balance)
}
