package model

import "time"

// Note is a shared study note. AverageRating and RatingCount are
// denormalized from NoteRating rows.
type Note struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AuthorID      int64     `gorm:"index:idx_note_author;not null" json:"author_id"`
	Title         string    `gorm:"size:128;not null" json:"title"`
	Content       string    `gorm:"type:text" json:"content"`
	Public        bool      `gorm:"default:false" json:"public"`
	AverageRating float64   `gorm:"default:0" json:"average_rating"`
	RatingCount   int       `gorm:"default:0" json:"rating_count"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NoteRating is one user's rating of a note, 1 to 5.
type NoteRating struct {
	UserID    int64     `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	NoteID    int64     `gorm:"primaryKey;autoIncrement:false" json:"note_id"`
	Score     int       `gorm:"not null" json:"score"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
