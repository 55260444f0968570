package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/challengeplans/server/challenge"
	"github.com/challengeplans/server/model"
	"github.com/challengeplans/server/progress"
)

// AdminHandler handles administrative REST endpoints: progress overrides,
// reward catalog management, and on-demand sweeps.
type AdminHandler struct {
	db         *gorm.DB
	progress   *progress.Service
	challenges *challenge.Service
	logger     *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(db *gorm.DB, p *progress.Service, ch *challenge.Service, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{db: db, progress: p, challenges: ch, logger: logger}
}

type overrideRequest struct {
	UserID      int64 `json:"user_id" binding:"required,min=1"`
	ChallengeID int64 `json:"challenge_id" binding:"required,min=1"`
	Progress    *int  `json:"progress" binding:"required"`
}

// OverrideProgress handles POST /api/admin/progress. It feeds the manual
// value through the same boundary-transition pipeline as task completion.
func (h *AdminHandler) OverrideProgress(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.progress.OverrideProgress(c.Request.Context(), req.UserID, req.ChallengeID, *req.Progress)
	if err != nil {
		fail(c, err)
		return
	}
	h.logger.Info("progress override applied",
		zap.Int64("user_id", req.UserID),
		zap.Int64("challenge_id", req.ChallengeID),
		zap.Int("progress", *req.Progress))
	c.JSON(http.StatusOK, gin.H{"message": "overridden"})
}

type rewardRequest struct {
	Name      string `json:"name" binding:"required,min=1,max=64"`
	Kind      string `json:"kind" binding:"required,oneof=badge points level"`
	Value     int    `json:"value" binding:"min=0"`
	Criterion string `json:"criterion" binding:"max=256"`
}

// CreateReward handles POST /api/admin/rewards.
func (h *AdminHandler) CreateReward(c *gin.Context) {
	var req rewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rw := model.Reward{Name: req.Name, Kind: req.Kind, Value: req.Value, Criterion: req.Criterion}
	if err := h.db.Create(&rw).Error; err != nil {
		if isUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "reward name already exists"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	c.JSON(http.StatusCreated, rw)
}

type ruleRequest struct {
	Name          string `json:"name" binding:"max=64"`
	Event         string `json:"event" binding:"required,oneof=complete_reto subir_apunte crear_plan"`
	RewardID      int64  `json:"reward_id" binding:"required,min=1"`
	PointOverride *int   `json:"point_override"`
}

// CreateRule handles POST /api/admin/reward-rules.
func (h *AdminHandler) CreateRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var rw model.Reward
	if err := h.db.First(&rw, req.RewardID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "reward not found"})
		return
	}
	rule := model.RewardRule{
		Name:          req.Name,
		Event:         req.Event,
		RewardID:      req.RewardID,
		PointOverride: req.PointOverride,
		Active:        true,
	}
	if err := h.db.Create(&rule).Error; err != nil {
		if isUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "rule for this event and reward already exists"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// SetRuleActive handles POST /api/admin/reward-rules/:id/active.
func (h *AdminHandler) SetRuleActive(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res := h.db.Model(&model.RewardRule{}).Where("id = ?", id).Update("active", *req.Active)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

// Sweep handles POST /api/admin/sweep: finish expired challenges now
// instead of waiting for the scheduler tick.
func (h *AdminHandler) Sweep(c *gin.Context) {
	n, err := h.challenges.SweepExpired(c.Request.Context(), time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"swept": n})
}
