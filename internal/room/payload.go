package room

import (
	"time"

	"github.com/google/uuid"
)

type CreateRoomRequest struct {
	TTLHours int `json:"ttl_hours"`
}

type UpdateContentRequest struct {
	Content string `json:"content"`
}

type RoomResponse struct {
	ID                   uuid.UUID `json:"id"`
	Code                 string    `json:"code"`
	Content              string    `json:"content"`
	Revision             int64     `json:"revision"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
	ExpiresAt            time.Time `json:"expires_at"`
	TimeRemainingSeconds int64     `json:"time_remaining_seconds"`
}

func NewRoomResponse(r *Room, now time.Time) RoomResponse {
	return RoomResponse{
		ID:                   r.ID,
		Code:                 r.Code,
		Content:              r.Content,
		Revision:             r.Revision,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
		ExpiresAt:            r.ExpiresAt,
		TimeRemainingSeconds: int64(TimeRemaining(r, now) / time.Second),
	}
}
