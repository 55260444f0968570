package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	mw "github.com/challengeplans/server/middleware"
	"github.com/challengeplans/server/model"
)

// NotificationHandler handles notification inbox REST endpoints.
type NotificationHandler struct {
	db *gorm.DB
}

// NewNotificationHandler creates a NotificationHandler.
func NewNotificationHandler(db *gorm.DB) *NotificationHandler {
	return &NotificationHandler{db: db}
}

// List handles GET /api/notifications?unread=true&limit=20.
func (h *NotificationHandler) List(c *gin.Context) {
	limit := 20
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}
	q := h.db.Where("user_id = ?", mw.GetUserID(c))
	if c.Query("unread") == "true" {
		q = q.Where("read = ?", false)
	}
	var out []model.Notification
	if err := q.Order("id DESC").Limit(limit).Find(&out).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": out})
}

// MarkRead handles POST /api/notifications/:id/read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	now := time.Now()
	res := h.db.Model(&model.Notification{}).
		Where("id = ? AND user_id = ?", id, mw.GetUserID(c)).
		Updates(map[string]interface{}{"read": true, "read_at": now})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "read"})
}

// MarkAllRead handles POST /api/notifications/read-all.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	now := time.Now()
	res := h.db.Model(&model.Notification{}).
		Where("user_id = ? AND read = ?", mw.GetUserID(c), false).
		Updates(map[string]interface{}{"read": true, "read_at": now})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": res.RowsAffected})
}
