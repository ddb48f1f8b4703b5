// Package room is the room registry: code allocation, TTL, content
// overwrite and cascade deletion.
package room

import (
	"time"

	"github.com/google/uuid"
)

type Room struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Code      string    `gorm:"type:varchar(16);uniqueIndex;not null" json:"code"`
	Content   string    `gorm:"type:text;not null;default:''" json:"content"`
	Revision  int64     `gorm:"not null;default:0" json:"revision"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
}

func (Room) TableName() string { return "rooms" }

// Expired reports whether the room's TTL has elapsed at now.
func (r *Room) Expired(now time.Time) bool { return !now.Before(r.ExpiresAt) }

// TimeRemaining is the countdown shown to clients, floored at zero.
func TimeRemaining(r *Room, now time.Time) time.Duration {
	d := r.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
