package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	apirest "github.com/challengeplans/server/api/rest"
	"github.com/challengeplans/server/api/sse"
	"github.com/challengeplans/server/cache"
	"github.com/challengeplans/server/challenge"
	"github.com/challengeplans/server/config"
	"github.com/challengeplans/server/content"
	"github.com/challengeplans/server/events"
	"github.com/challengeplans/server/history"
	mw "github.com/challengeplans/server/middleware"
	"github.com/challengeplans/server/notify"
	"github.com/challengeplans/server/progress"
	"github.com/challengeplans/server/reward"
	"github.com/challengeplans/server/scheduler"
	"github.com/challengeplans/server/testutil"
)

// TestServer wraps a real HTTP server with every subsystem wired together.
type TestServer struct {
	DB         *gorm.DB
	Cache      cache.Cache
	PubSub     cache.PubSub
	Dispatcher *notify.Dispatcher
	Challenges *challenge.Service
	Progress   *progress.Service
	Scheduler  *scheduler.Scheduler
	Server     *httptest.Server
	URL        string
	Sec        config.SecurityConfig
}

// NewTestServer creates a fully wired server for integration testing.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()
	sec := config.SecurityConfig{JWTSecret: "integration-secret", JWTTTL: time.Hour,
		RateLimitRPS: 1000, RateLimitBurst: 2000}

	dispatcher := notify.New(db, pubsub, 64, logger)
	t.Cleanup(func() { dispatcher.Stop(context.Background()) })

	// ---- Services ----
	bus := events.NewBus()
	rewards := reward.NewEngine(db, logger)
	hist := history.NewService(logger)
	progressSvc := progress.NewService(db, rewards, hist, dispatcher, bus, logger)
	challengeSvc := challenge.NewService(db, dispatcher, bus, logger)
	contentSvc := content.NewService(db, rewards, dispatcher, logger)

	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	// ---- Handlers ----
	authH := apirest.NewAuthHandler(db, c, sec)
	challengeH := apirest.NewChallengeHandler(challengeSvc, progressSvc)
	taskH := apirest.NewTaskHandler(challengeSvc, progressSvc)
	profileH := apirest.NewProfileHandler(db, progressSvc)
	contentH := apirest.NewContentHandler(contentSvc)
	notifH := apirest.NewNotificationHandler(db)
	rankH := apirest.NewRankingHandler(db, c, logger)
	adminH := apirest.NewAdminHandler(db, progressSvc, challengeSvc, logger)
	sseH := sse.NewHandler(pubsub, c, sec, logger)

	bus.Register(events.ScoreChanged, 10, "ranking", func(ctx context.Context, event string, data interface{}) error {
		payload, ok := data.(events.ScorePayload)
		if !ok {
			return nil
		}
		return rankH.UpdateUserScore(ctx, payload.UserID)
	})

	// ---- Router ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	auth := mw.Auth(sec, c)
	api := r.Group("/api")
	{
		api.POST("/auth/register", authH.Register)
		api.POST("/auth/login", authH.Login)
		api.POST("/auth/logout", auth, authH.Logout)

		chG := api.Group("/challenges", auth)
		chG.GET("", challengeH.List)
		chG.POST("", challengeH.Create)
		chG.GET("/:id", challengeH.Get)
		chG.POST("/:id/activate", challengeH.Activate)
		chG.POST("/:id/join", challengeH.Join)
		chG.POST("/:id/leave", challengeH.Leave)
		chG.POST("/:id/tasks", taskH.Create)

		taskG := api.Group("/tasks", auth)
		taskG.POST("/:id/completion", taskH.SetCompletion)
		taskG.POST("/:id/assign", taskH.Assign)

		meG := api.Group("/me", auth)
		meG.GET("", profileH.Me)
		meG.GET("/achievements", profileH.Achievements)
		meG.GET("/rewards", profileH.Rewards)
		meG.GET("/challenges/:id/history", profileH.History)

		noteG := api.Group("/notes", auth)
		noteG.POST("", contentH.CreateNote)
		noteG.POST("/:id/publish", contentH.PublishNote)
		noteG.POST("/:id/rating", contentH.RateNote)

		notifG := api.Group("/notifications", auth)
		notifG.GET("", notifH.List)

		api.GET("/ranking", auth, rankH.Top)

		adminG := api.Group("/admin", auth, mw.RequireAdmin())
		adminG.POST("/progress", adminH.OverrideProgress)
		adminG.POST("/sweep", adminH.Sweep)
	}
	r.GET("/sse", sseH.ServeSSE)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &TestServer{
		DB:         db,
		Cache:      c,
		PubSub:     pubsub,
		Dispatcher: dispatcher,
		Challenges: challengeSvc,
		Progress:   progressSvc,
		Scheduler:  sched,
		Server:     srv,
		URL:        srv.URL,
		Sec:        sec,
	}
}

// Register creates a user via the API and returns its token and ID.
func (ts *TestServer) Register(t *testing.T, email, name string) (string, int64) {
	t.Helper()
	status, body := ts.Do(t, http.MethodPost, "/api/auth/register", "", map[string]interface{}{
		"email": email, "display_name": name, "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	var resp struct {
		Token  string `json:"token"`
		UserID int64  `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Token, resp.UserID
}

// Do performs an HTTP request against the test server.
func (ts *TestServer) Do(t *testing.T, method, path, token string, body interface{}) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

// SSEURL returns the SSE endpoint URL for the given token.
func (ts *TestServer) SSEURL(token string) string {
	return fmt.Sprintf("%s/sse?token=%s", ts.URL, token)
}
