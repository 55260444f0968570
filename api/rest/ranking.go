package rest

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/challengeplans/server/cache"
	"github.com/challengeplans/server/model"
)

// RankingHandler handles the score leaderboard REST endpoints.
type RankingHandler struct {
	db     *gorm.DB
	cache  cache.Cache
	logger *zap.Logger
}

// NewRankingHandler creates a RankingHandler.
func NewRankingHandler(db *gorm.DB, c cache.Cache, logger *zap.Logger) *RankingHandler {
	return &RankingHandler{db: db, cache: c, logger: logger}
}

const rankingZKey = "ranking:score"
const rankingTop = 100

// RankEntry is one row in the leaderboard.
type RankEntry struct {
	Rank        int    `json:"rank"`
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Score       int    `json:"score"`
}

// Top returns the top users sorted by score.
// GET /api/ranking?limit=20
func (h *RankingHandler) Top(c *gin.Context) {
	limit := 20
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= rankingTop {
		limit = l
	}

	// Try cached ranking from sorted set.
	ctx := c.Request.Context()
	members, err := h.cache.ZRevRange(ctx, rankingZKey, 0, int64(limit-1))
	if err == nil && len(members) > 0 {
		entries := make([]RankEntry, 0, len(members))
		for i, m := range members {
			userID, err := strconv.ParseInt(m, 10, 64)
			if err != nil {
				continue
			}
			score, _ := h.cache.ZScore(ctx, rankingZKey, m)
			entries = append(entries, RankEntry{
				Rank:   i + 1,
				UserID: userID,
				Score:  int(score),
			})
		}
		h.enrichNames(entries)
		c.JSON(http.StatusOK, gin.H{"ranking": entries})
		return
	}

	// Fall back to DB query.
	var users []model.User
	h.db.Select("id, display_name, score").
		Order("score DESC").
		Limit(limit).
		Find(&users)

	entries := make([]RankEntry, len(users))
	for i, u := range users {
		entries[i] = RankEntry{
			Rank:        i + 1,
			UserID:      u.ID,
			DisplayName: u.DisplayName,
			Score:       u.Score,
		}
		// Refresh cache entry.
		_ = h.cache.ZAdd(ctx, rankingZKey, float64(u.Score), strconv.FormatInt(u.ID, 10))
	}
	c.JSON(http.StatusOK, gin.H{"ranking": entries})
}

// Refresh handles POST /api/admin/ranking/refresh.
func (h *RankingHandler) Refresh(c *gin.Context) {
	n, err := h.RefreshRanking(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"refreshed": n})
}

// RefreshRanking rebuilds the ranking sorted set from the DB. Called
// periodically by the scheduler and on demand by the admin endpoint.
func (h *RankingHandler) RefreshRanking(ctx context.Context) (int, error) {
	var users []model.User
	if err := h.db.WithContext(ctx).Select("id, score").
		Order("score DESC").Limit(rankingTop).Find(&users).Error; err != nil {
		return 0, err
	}
	for _, u := range users {
		_ = h.cache.ZAdd(ctx, rankingZKey, float64(u.Score), strconv.FormatInt(u.ID, 10))
	}
	return len(users), nil
}

// UpdateUserScore refreshes a single user's leaderboard entry. Wired to
// the score-changed event so the cached ranking tracks grants and reverts.
func (h *RankingHandler) UpdateUserScore(ctx context.Context, userID int64) error {
	var user model.User
	if err := h.db.WithContext(ctx).Select("id, score").First(&user, userID).Error; err != nil {
		return err
	}
	return h.cache.ZAdd(ctx, rankingZKey, float64(user.Score), strconv.FormatInt(user.ID, 10))
}

func (h *RankingHandler) enrichNames(entries []RankEntry) {
	if len(entries) == 0 {
		return
	}
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.UserID
	}
	var users []model.User
	h.db.Select("id, display_name, score").Where("id IN ?", ids).Find(&users)
	nameMap := make(map[int64]model.User, len(users))
	for _, u := range users {
		nameMap[u.ID] = u
	}
	for i := range entries {
		if u, ok := nameMap[entries[i].UserID]; ok {
			entries[i].DisplayName = u.DisplayName
			entries[i].Score = u.Score
		}
	}
}
