package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/challengeplans/server/challenge"
	mw "github.com/challengeplans/server/middleware"
	"github.com/challengeplans/server/progress"
)

// TaskHandler handles task REST endpoints.
type TaskHandler struct {
	challenges *challenge.Service
	progress   *progress.Service
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(ch *challenge.Service, p *progress.Service) *TaskHandler {
	return &TaskHandler{challenges: ch, progress: p}
}

type taskRequest struct {
	Title   string     `json:"title" binding:"required,min=1,max=128"`
	Points  int        `json:"points" binding:"min=0"`
	DueDate *time.Time `json:"due_date"`
	Type    string     `json:"type" binding:"max=32"`
}

// Create handles POST /api/challenges/:id/tasks.
func (h *TaskHandler) Create(c *gin.Context) {
	challengeID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if !h.requireCreator(c, challengeID) {
		return
	}
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, err := h.challenges.AddTask(c.Request.Context(), challengeID, challenge.TaskInput{
		Title:   req.Title,
		Points:  req.Points,
		DueDate: req.DueDate,
		Type:    req.Type,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

// Update handles PUT /api/tasks/:id.
func (h *TaskHandler) Update(c *gin.Context) {
	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.challenges.UpdateTask(c.Request.Context(), taskID, challenge.TaskInput{
		Title:   req.Title,
		Points:  req.Points,
		DueDate: req.DueDate,
		Type:    req.Type,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

// Delete handles DELETE /api/tasks/:id.
func (h *TaskHandler) Delete(c *gin.Context) {
	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.challenges.DeleteTask(c.Request.Context(), taskID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

type assignRequest struct {
	AssigneeID int64 `json:"assignee_id" binding:"required,min=1"`
}

// Assign handles POST /api/tasks/:id/assign.
func (h *TaskHandler) Assign(c *gin.Context) {
	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.challenges.AssignTask(c.Request.Context(), taskID, req.AssigneeID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "assigned"})
}

type completeRequest struct {
	Completed *bool `json:"completed" binding:"required"`
}

// SetCompletion handles POST /api/tasks/:id/completion. The body's
// completed flag selects marking or unmarking; both directions go through
// the same progress pipeline.
func (h *TaskHandler) SetCompletion(c *gin.Context) {
	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := mw.GetUserID(c)
	if err := h.progress.SetTaskCompletion(c.Request.Context(), userID, taskID, *req.Completed); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

func (h *TaskHandler) requireCreator(c *gin.Context, challengeID int64) bool {
	ch, err := h.challenges.Get(c.Request.Context(), challengeID)
	if err != nil {
		fail(c, err)
		return false
	}
	if ch.CreatorID != mw.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the creator"})
		return false
	}
	return true
}
