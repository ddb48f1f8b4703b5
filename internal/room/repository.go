package room

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/venkatram-2005/Quick-Share/internal/apperr"
	"github.com/venkatram-2005/Quick-Share/internal/shared/db"
)

// ErrCodeTaken is returned by Create when the code already exists.
var ErrCodeTaken = errors.New("room code taken")

type Repository interface {
	Create(ctx context.Context, room *Room) error
	GetByCode(ctx context.Context, code string) (*Room, error)
	// UpdateContent overwrites content on a room that is still live at now,
	// bumping its revision in the same statement.
	UpdateContent(ctx context.Context, code, content string, now time.Time) (*Room, error)
	Delete(ctx context.Context, code string) (bool, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]Room, error)
}

type repository struct {
	store *db.Store
}

func NewRepository(store *db.Store) Repository {
	return &repository{store: store}
}

func (r *repository) Create(ctx context.Context, room *Room) error {
	err := r.store.Primary(ctx).Create(room).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrCodeTaken
	}
	return apperr.FromStore("room.create", err)
}

func (r *repository) GetByCode(ctx context.Context, code string) (*Room, error) {
	var room Room
	if err := r.store.Primary(ctx).Where("code = ?", code).Take(&room).Error; err != nil {
		return nil, apperr.FromStore("room.get", err)
	}
	return &room, nil
}

func (r *repository) UpdateContent(ctx context.Context, code, content string, now time.Time) (*Room, error) {
	var room Room
	res := r.store.Primary(ctx).
		Model(&room).
		Clauses(clause.Returning{}).
		Where("code = ? AND expires_at > ?", code, now).
		Updates(map[string]any{
			"content":    content,
			"revision":   gorm.Expr("revision + 1"),
			"updated_at": now,
		})
	if res.Error != nil {
		return nil, apperr.FromStore("room.update_content", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound("room.update_content", apperr.ReasonNotFound, "room not found")
	}
	return &room, nil
}

func (r *repository) Delete(ctx context.Context, code string) (bool, error) {
	res := r.store.Primary(ctx).Where("code = ?", code).Delete(&Room{})
	if res.Error != nil {
		return false, apperr.FromStore("room.delete", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListExpired may be served by a replica; a lagging answer only delays
// the sweep.
func (r *repository) ListExpired(ctx context.Context, now time.Time, limit int) ([]Room, error) {
	var rooms []Room
	err := r.store.Base.WithContext(ctx).
		Where("expires_at <= ?", now).
		Order("expires_at").
		Limit(limit).
		Find(&rooms).Error
	if err != nil {
		return nil, apperr.FromStore("room.list_expired", err)
	}
	return rooms, nil
}
