// Package attachment manages files bound to a room: metadata rows in
// Postgres, bodies in the blob store under the room's key prefix.
package attachment

import (
	"time"

	"github.com/google/uuid"
)

type Attachment struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RoomCode   string    `gorm:"type:varchar(16);index;not null" json:"room_code"`
	FileName   string    `gorm:"type:text;not null" json:"file_name"`
	StorageKey string    `gorm:"type:text;uniqueIndex;not null" json:"storage_key"`
	SizeBytes  int64     `gorm:"not null" json:"size_bytes"`
	MimeType   string    `gorm:"type:text;not null" json:"mime_type"`
	UploadedAt time.Time `gorm:"index;not null" json:"uploaded_at"`
}

func (Attachment) TableName() string { return "room_attachments" }
