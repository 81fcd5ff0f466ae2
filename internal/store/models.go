package store

import "time"

// GORM models used by the Postgres-backed store.
type UserModel struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	Username     string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	Name         string    `gorm:"not null"`
	Email        string    `gorm:"uniqueIndex;not null"`
	Role         string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

type DocumentModel struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	Name       string    `gorm:"not null"`
	Type       string    `gorm:"not null"`
	Size       int64     `gorm:"not null"`
	Path       string    `gorm:"not null"`
	UserID     int64     `gorm:"not null;index"`
	Starred    bool      `gorm:"not null;default:false"`
	CreatedAt  time.Time `gorm:"not null"`
	ModifiedAt time.Time `gorm:"not null"`
}

type ActivityModel struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	Type       string `gorm:"not null"`
	DocumentID *int64 `gorm:"index"`
	UserID     int64  `gorm:"not null;index"`
	Details    string
	CreatedAt  time.Time `gorm:"not null;index"`
}

type IngestionModel struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	DocumentID  int64  `gorm:"not null;index"`
	UserID      int64  `gorm:"not null"`
	Status      string `gorm:"not null"`
	Logs        string
	CreatedAt   time.Time `gorm:"not null;index"`
	CompletedAt *time.Time
}
