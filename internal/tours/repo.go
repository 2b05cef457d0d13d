package tours

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/venturetrips/venture-backend/pkg/db/models"
	pkgerrors "github.com/venturetrips/venture-backend/pkg/errors"
)

// Repository reads the tour catalog. Tours are owned by the catalog service;
// this side only ever reads them.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Tour, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Tour, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a tour repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Tour, error) {
	var tour models.Tour
	err := r.db.WithContext(ctx).First(&tour, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tour not found")
		}
		return nil, err
	}
	return &tour, nil
}

// FindByIDForUpdate locks the tour row until the surrounding transaction
// commits. Admission control serializes on this lock.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Tour, error) {
	q := r.db.WithContext(ctx)
	// sqlite has no FOR UPDATE; its single-writer transaction covers the
	// same window.
	if q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var tour models.Tour
	err := q.First(&tour, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tour not found")
		}
		return nil, err
	}
	return &tour, nil
}
