package aggregate

import (
	"gorm.io/gorm"

	"github.com/challengeplans/server/model"
)

// The recalculators re-derive denormalized counters from their source rows
// in a single UPDATE statement. They are never adjusted by deltas, so a
// missed or replayed event cannot make the counter drift.

// RefreshChallengeTotalPoints recomputes Challenge.total_points as the sum
// of the challenge's current task points.
func RefreshChallengeTotalPoints(tx *gorm.DB, challengeID int64) error {
	return tx.Model(&model.Challenge{}).
		Where("id = ?", challengeID).
		Update("total_points", gorm.Expr(
			"(SELECT COALESCE(SUM(points), 0) FROM tasks WHERE challenge_id = ?)", challengeID)).
		Error
}

// RefreshParticipantCount recomputes Challenge.participant_count from the
// challenge's current participation rows.
func RefreshParticipantCount(tx *gorm.DB, challengeID int64) error {
	return tx.Model(&model.Challenge{}).
		Where("id = ?", challengeID).
		Update("participant_count", gorm.Expr(
			"(SELECT COUNT(*) FROM participations WHERE challenge_id = ?)", challengeID)).
		Error
}

// RefreshNoteRating recomputes a note's average rating and rating count
// from its current rating rows.
func RefreshNoteRating(tx *gorm.DB, noteID int64) error {
	return tx.Model(&model.Note{}).
		Where("id = ?", noteID).
		Updates(map[string]interface{}{
			"average_rating": gorm.Expr(
				"(SELECT COALESCE(AVG(score), 0) FROM note_ratings WHERE note_id = ?)", noteID),
			"rating_count": gorm.Expr(
				"(SELECT COUNT(*) FROM note_ratings WHERE note_id = ?)", noteID),
		}).Error
}
