package model

import "gorm.io/gorm"

// allModels lists every model to be auto-migrated.
var allModels = []interface{}{
	&User{},
	&Challenge{},
	&Task{},
	&TaskCompletion{},
	&Participation{},
	&Reward{},
	&RewardRule{},
	&UserReward{},
	&Achievement{},
	&ProgressHistory{},
	&Notification{},
	&Note{},
	&NoteRating{},
	&StudyPlan{},
}

// AutoMigrate creates or updates all tables in the given database.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(allModels...)
}
