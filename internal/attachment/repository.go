package attachment

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/venkatram-2005/Quick-Share/internal/apperr"
	"github.com/venkatram-2005/Quick-Share/internal/shared/db"
)

type Repository interface {
	Create(ctx context.Context, a *Attachment) error
	Get(ctx context.Context, id uuid.UUID) (*Attachment, error)
	ListByRoom(ctx context.Context, code string) ([]Attachment, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	// DeleteByRoom removes every row for code and returns what was removed.
	DeleteByRoom(ctx context.Context, code string) ([]Attachment, error)
	KeyExists(ctx context.Context, key string) (bool, error)
	RoomCodes(ctx context.Context) ([]string, error)
}

type repository struct {
	store *db.Store
}

func NewRepository(store *db.Store) Repository {
	return &repository{store: store}
}

func (r *repository) Create(ctx context.Context, a *Attachment) error {
	return apperr.FromStore("attachment.create", r.store.Primary(ctx).Create(a).Error)
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Attachment, error) {
	var a Attachment
	if err := r.store.Primary(ctx).Where("id = ?", id).Take(&a).Error; err != nil {
		return nil, apperr.FromStore("attachment.get", err)
	}
	return &a, nil
}

func (r *repository) ListByRoom(ctx context.Context, code string) ([]Attachment, error) {
	var out []Attachment
	err := r.store.Base.WithContext(ctx).
		Where("room_code = ?", code).
		Order("uploaded_at DESC, id DESC").
		Find(&out).Error
	if err != nil {
		return nil, apperr.FromStore("attachment.list", err)
	}
	return out, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.store.Primary(ctx).Where("id = ?", id).Delete(&Attachment{})
	if res.Error != nil {
		return false, apperr.FromStore("attachment.delete", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) DeleteByRoom(ctx context.Context, code string) ([]Attachment, error) {
	var removed []Attachment
	err := r.store.Primary(ctx).
		Clauses(clause.Returning{}).
		Where("room_code = ?", code).
		Delete(&removed).Error
	if err != nil {
		return nil, apperr.FromStore("attachment.delete_by_room", err)
	}
	return removed, nil
}

func (r *repository) KeyExists(ctx context.Context, key string) (bool, error) {
	var n int64
	err := r.store.Primary(ctx).Model(&Attachment{}).Where("storage_key = ?", key).Count(&n).Error
	if err != nil {
		return false, apperr.FromStore("attachment.key_exists", err)
	}
	return n > 0, nil
}

func (r *repository) RoomCodes(ctx context.Context) ([]string, error) {
	var codes []string
	err := r.store.Primary(ctx).Model(&Attachment{}).Distinct().Pluck("room_code", &codes).Error
	if err != nil {
		return nil, apperr.FromStore("attachment.room_codes", err)
	}
	return codes, nil
}
