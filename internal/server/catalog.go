package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListChapterPackages(c *gin.Context) {
	chapterID, ok := parseIDParam(c, "chapter_id")
	if !ok {
		return
	}

	offers, err := s.catalogSvc.ListActivePackagesForChapter(c.Request.Context(), chapterID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"packages": offers})
}
