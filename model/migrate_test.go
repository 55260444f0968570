package model_test

import (
	"testing"
	"time"

	"github.com/challengeplans/server/model"
	"github.com/challengeplans/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)

	// User
	user := &model.User{Email: "ana@example.com", DisplayName: "Ana", PasswordHash: "hash"}
	require.NoError(t, db.Create(user).Error)
	assert.Greater(t, user.ID, int64(0))

	var found model.User
	require.NoError(t, db.First(&found, user.ID).Error)
	assert.Equal(t, "ana@example.com", found.Email)

	// Challenge
	ch := &model.Challenge{
		CreatorID: user.ID,
		Title:     "30 días de cálculo",
		State:     model.ChallengeStateActive,
		StartDate: time.Now(),
		EndDate:   time.Now().Add(30 * 24 * time.Hour),
	}
	require.NoError(t, db.Create(ch).Error)
	assert.Greater(t, ch.ID, int64(0))

	// Task
	task := &model.Task{ChallengeID: ch.ID, Title: "Derivadas", Points: 10}
	require.NoError(t, db.Create(task).Error)

	// Participation
	p := &model.Participation{UserID: user.ID, ChallengeID: ch.ID}
	require.NoError(t, db.Create(p).Error)

	// TaskCompletion
	tc := &model.TaskCompletion{UserID: user.ID, TaskID: task.ID}
	require.NoError(t, db.Create(tc).Error)

	// Reward + rule + grant
	reward := &model.Reward{Name: "Finisher", Kind: model.RewardKindPoints, Value: 50}
	require.NoError(t, db.Create(reward).Error)
	rule := &model.RewardRule{Name: "complete", Event: model.EventCompleteReto, RewardID: reward.ID, Active: true}
	require.NoError(t, db.Create(rule).Error)
	ur := &model.UserReward{UserID: user.ID, RewardID: reward.ID, SourceEvent: model.EventCompleteReto, ChallengeID: &ch.ID}
	require.NoError(t, db.Create(ur).Error)

	// Achievement + history + notification
	a := &model.Achievement{UserID: user.ID, Type: model.AchievementCompletarReto, ChallengeID: &ch.ID, Description: "Completó el reto"}
	require.NoError(t, db.Create(a).Error)
	h := &model.ProgressHistory{UserID: user.ID, ChallengeID: ch.ID, PreviousProgress: 75, NewProgress: 100, Event: model.ProgressEventCompleted}
	require.NoError(t, db.Create(h).Error)
	n := &model.Notification{UserID: user.ID, Title: "Reto completado", Type: model.NotifyChallengeCompleted}
	require.NoError(t, db.Create(n).Error)

	// Note + rating + plan
	note := &model.Note{AuthorID: user.ID, Title: "Apuntes de álgebra", Public: true}
	require.NoError(t, db.Create(note).Error)
	rating := &model.NoteRating{UserID: user.ID, NoteID: note.ID, Score: 5}
	require.NoError(t, db.Create(rating).Error)
	plan := &model.StudyPlan{OwnerID: user.ID, Title: "Plan de parciales", Public: true}
	require.NoError(t, db.Create(plan).Error)
}

func TestParticipation_CompositeKey(t *testing.T) {
	db := testutil.SetupTestDB(t)

	user := &model.User{Email: "b@example.com", DisplayName: "B", PasswordHash: "x"}
	require.NoError(t, db.Create(user).Error)
	ch := &model.Challenge{CreatorID: user.ID, Title: "Reto", StartDate: time.Now(), EndDate: time.Now().Add(time.Hour)}
	require.NoError(t, db.Create(ch).Error)

	require.NoError(t, db.Create(&model.Participation{UserID: user.ID, ChallengeID: ch.ID}).Error)
	// Duplicate join must violate the composite primary key.
	err := db.Create(&model.Participation{UserID: user.ID, ChallengeID: ch.ID}).Error
	assert.Error(t, err)
}
