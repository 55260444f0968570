package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	mw "github.com/challengeplans/server/middleware"
	"github.com/challengeplans/server/model"
	"github.com/challengeplans/server/progress"
)

// ProfileHandler serves the authenticated user's own data: score,
// participations, achievements, rewards, and progress history.
type ProfileHandler struct {
	db       *gorm.DB
	progress *progress.Service
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(db *gorm.DB, p *progress.Service) *ProfileHandler {
	return &ProfileHandler{db: db, progress: p}
}

// Me handles GET /api/me.
func (h *ProfileHandler) Me(c *gin.Context) {
	var user model.User
	if err := h.db.First(&user, mw.GetUserID(c)).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":           user.ID,
		"email":        user.Email,
		"display_name": user.DisplayName,
		"role":         user.Role,
		"score":        user.Score,
	})
}

// Participations handles GET /api/me/participations.
func (h *ProfileHandler) Participations(c *gin.Context) {
	var out []model.Participation
	err := h.db.Where("user_id = ?", mw.GetUserID(c)).
		Order("joined_at DESC").Find(&out).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"participations": out})
}

// Achievements handles GET /api/me/achievements.
func (h *ProfileHandler) Achievements(c *gin.Context) {
	var out []model.Achievement
	err := h.db.Where("user_id = ?", mw.GetUserID(c)).
		Order("created_at DESC").Find(&out).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"achievements": out})
}

// Rewards handles GET /api/me/rewards.
func (h *ProfileHandler) Rewards(c *gin.Context) {
	userID := mw.GetUserID(c)
	var grants []model.UserReward
	if err := h.db.Where("user_id = ?", userID).Order("granted_at DESC").Find(&grants).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	ids := make([]int64, 0, len(grants))
	for _, g := range grants {
		ids = append(ids, g.RewardID)
	}
	rewards := map[int64]model.Reward{}
	if len(ids) > 0 {
		var defs []model.Reward
		if err := h.db.Where("id IN ?", ids).Find(&defs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		for _, d := range defs {
			rewards[d.ID] = d
		}
	}

	type entry struct {
		model.UserReward
		Name string `json:"name"`
		Kind string `json:"kind"`
	}
	out := make([]entry, len(grants))
	for i, g := range grants {
		out[i] = entry{UserReward: g, Name: rewards[g.RewardID].Name, Kind: rewards[g.RewardID].Kind}
	}
	c.JSON(http.StatusOK, gin.H{"rewards": out})
}

// History handles GET /api/me/challenges/:id/history.
func (h *ProfileHandler) History(c *gin.Context) {
	challengeID, ok := pathID(c, "id")
	if !ok {
		return
	}
	limit := 50
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 200 {
		limit = l
	}
	var out []model.ProgressHistory
	err := h.db.Where("user_id = ? AND challenge_id = ?", mw.GetUserID(c), challengeID).
		Order("id DESC").Limit(limit).Find(&out).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": out})
}
