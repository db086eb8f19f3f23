package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	purchasedomain "github.com/chapterhq/examslots/internal/purchase/domain"
)

func (s *Server) InitiatePurchase(c *gin.Context) {
	var req purchasedomain.InitiatePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if req.CoordinatorID == 0 || req.ChapterID == 0 || req.SlotPackageID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.purchaseSvc.InitiatePurchase(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) GetPurchaseByReference(c *gin.Context) {
	reference := strings.TrimSpace(c.Param("reference"))
	if reference == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	purchase, err := s.purchaseSvc.GetByReference(c.Request.Context(), reference)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, purchase)
}

func (s *Server) ListCoordinatorPurchases(c *gin.Context) {
	coordinatorID, ok := parseIDParam(c, "coordinator_id")
	if !ok {
		return
	}

	purchases, err := s.purchaseSvc.ListPurchases(c.Request.Context(), coordinatorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"purchases": purchases})
}
