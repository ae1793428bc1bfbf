package models

import (
	"time"
)

type User struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Username   string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"username"`
	Password   string     `gorm:"type:varchar(255);not null" json:"-"`
	ExpiryDate *time.Time `gorm:"column:expiry_date" json:"expiresAt"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Expired reports whether the account is past its expiry date at now.
// Accounts without an expiry date never expire.
func (u *User) Expired(now time.Time) bool {
	return u.ExpiryDate != nil && now.After(*u.ExpiryDate)
}

// VideoWatchLog is append-only: rows are created by a watch submission and
// never updated.
type VideoWatchLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;index" json:"user_id"`
	VideoTitle   string    `gorm:"type:varchar(255);not null" json:"video_title"`
	VideoURL     string    `gorm:"type:text;not null" json:"video_url"`
	WatchSeconds uint      `gorm:"not null;default:0" json:"watch_seconds"`
	WatchedAt    time.Time `gorm:"not null;autoCreateTime" json:"watched_at"`

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (VideoWatchLog) TableName() string {
	return "video_watch_logs"
}
