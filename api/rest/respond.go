package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/challengeplans/server/apperr"
)

// fail maps service errors to HTTP status codes. Unclassified errors are
// reported as 500 without leaking their text.
func fail(c *gin.Context, err error) {
	switch {
	case apperr.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperr.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case apperr.IsConflict(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
