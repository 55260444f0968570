package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/challengeplans/server/cache"
	"github.com/challengeplans/server/challenge"
	"github.com/challengeplans/server/config"
	"github.com/challengeplans/server/content"
	"github.com/challengeplans/server/events"
	"github.com/challengeplans/server/history"
	mw "github.com/challengeplans/server/middleware"
	"github.com/challengeplans/server/model"
	"github.com/challengeplans/server/notify"
	"github.com/challengeplans/server/progress"
	"github.com/challengeplans/server/reward"
	"github.com/challengeplans/server/testutil"
)

var testSec = config.SecurityConfig{JWTSecret: "rest-test-secret", JWTTTL: time.Hour}

type harness struct {
	router     *gin.Engine
	db         *gorm.DB
	cache      cache.Cache
	dispatcher *notify.Dispatcher
}

// newHarness builds the full API router against an in-memory DB and
// local cache, mirroring the wiring in main.
func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	dispatcher := notify.New(db, pubsub, 64, logger)
	t.Cleanup(func() { dispatcher.Stop(context.Background()) })

	bus := events.NewBus()
	rewards := reward.NewEngine(db, logger)
	hist := history.NewService(logger)
	progressSvc := progress.NewService(db, rewards, hist, dispatcher, bus, logger)
	challengeSvc := challenge.NewService(db, dispatcher, bus, logger)
	contentSvc := content.NewService(db, rewards, dispatcher, logger)

	authH := NewAuthHandler(db, c, testSec)
	challengeH := NewChallengeHandler(challengeSvc, progressSvc)
	taskH := NewTaskHandler(challengeSvc, progressSvc)
	profileH := NewProfileHandler(db, progressSvc)
	contentH := NewContentHandler(contentSvc)
	notifH := NewNotificationHandler(db)
	rankH := NewRankingHandler(db, c, logger)
	adminH := NewAdminHandler(db, progressSvc, challengeSvc, logger)

	auth := mw.Auth(testSec, c)
	r := gin.New()
	api := r.Group("/api")
	{
		api.POST("/auth/register", authH.Register)
		api.POST("/auth/login", authH.Login)
		api.POST("/auth/logout", auth, authH.Logout)

		chG := api.Group("/challenges", auth)
		chG.GET("", challengeH.List)
		chG.POST("", challengeH.Create)
		chG.GET("/mine", challengeH.ListMine)
		chG.GET("/:id", challengeH.Get)
		chG.POST("/:id/activate", challengeH.Activate)
		chG.POST("/:id/join", challengeH.Join)
		chG.POST("/:id/leave", challengeH.Leave)
		chG.POST("/:id/tasks", taskH.Create)

		taskG := api.Group("/tasks", auth)
		taskG.PUT("/:id", taskH.Update)
		taskG.DELETE("/:id", taskH.Delete)
		taskG.POST("/:id/assign", taskH.Assign)
		taskG.POST("/:id/completion", taskH.SetCompletion)

		meG := api.Group("/me", auth)
		meG.GET("", profileH.Me)
		meG.GET("/participations", profileH.Participations)
		meG.GET("/achievements", profileH.Achievements)
		meG.GET("/rewards", profileH.Rewards)
		meG.GET("/challenges/:id/history", profileH.History)

		noteG := api.Group("/notes", auth)
		noteG.GET("", contentH.ListNotes)
		noteG.POST("", contentH.CreateNote)
		noteG.POST("/:id/publish", contentH.PublishNote)
		noteG.POST("/:id/rating", contentH.RateNote)

		planG := api.Group("/plans", auth)
		planG.GET("", contentH.ListPlans)
		planG.POST("", contentH.CreatePlan)
		planG.POST("/:id/publish", contentH.PublishPlan)

		notifG := api.Group("/notifications", auth)
		notifG.GET("", notifH.List)
		notifG.POST("/:id/read", notifH.MarkRead)
		notifG.POST("/read-all", notifH.MarkAllRead)

		api.GET("/ranking", auth, rankH.Top)

		adminG := api.Group("/admin", auth, mw.RequireAdmin())
		adminG.POST("/progress", adminH.OverrideProgress)
		adminG.POST("/rewards", adminH.CreateReward)
		adminG.POST("/reward-rules", adminH.CreateRule)
		adminG.POST("/reward-rules/:id/active", adminH.SetRuleActive)
		adminG.POST("/sweep", adminH.Sweep)
	}

	return &harness{router: r, db: db, cache: c, dispatcher: dispatcher}
}

// register creates a user through the API and returns its token and ID.
func (h *harness) register(t *testing.T, email, name string) (string, int64) {
	t.Helper()
	w := h.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"email":        email,
		"display_name": name,
		"password":     "secret123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Token  string `json:"token"`
		UserID int64  `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token, resp.UserID
}

// registerAdmin promotes a freshly registered user to admin and re-issues
// a token carrying the admin role.
func (h *harness) registerAdmin(t *testing.T, email, name string) (string, int64) {
	t.Helper()
	_, id := h.register(t, email, name)
	require.NoError(t, h.db.Model(&model.User{}).Where("id = ?", id).
		Update("role", model.RoleAdmin).Error)
	token, err := mw.GenerateToken(id, model.RoleAdmin, testSec.JWTSecret, testSec.JWTTTL)
	require.NoError(t, err)
	require.NoError(t, h.cache.Set(context.Background(), "session:"+token, "admin", time.Hour))
	return token, id
}

func (h *harness) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}
