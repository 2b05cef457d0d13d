package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/venturetrips/venture-backend/pkg/db/models"
	"github.com/venturetrips/venture-backend/pkg/enums"
	pkgerrors "github.com/venturetrips/venture-backend/pkg/errors"
)

// Service defines operations that record and look up ledger transactions.
type Service interface {
	// Record validates and appends a ledger row. Callers running inside a
	// database transaction pass it via tx; passing nil uses the base handle.
	Record(ctx context.Context, tx *gorm.DB, input RecordTransactionInput) (*models.Transaction, error)
	// FindSettlement returns the existing row for an idempotency key, or nil.
	FindSettlement(ctx context.Context, bookingID uuid.UUID, txnType enums.TransactionType, code string) (*models.Transaction, error)
	// Confirm flips a pending row to confirmed. It fails with a state
	// conflict when the row is already terminal.
	Confirm(ctx context.Context, tx *gorm.DB, txnID uuid.UUID) error
	ListForBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Transaction, error)
	FindForPayout(ctx context.Context, payoutID uuid.UUID) (*models.Transaction, error)
}

// RecordTransactionInput captures the immutable data a ledger row requires.
type RecordTransactionInput struct {
	BookingID       *uuid.UUID
	PayoutID        *uuid.UUID
	Type            enums.TransactionType
	Status          enums.TransactionStatus
	Code            string
	Gateway         string
	PayerID         *uuid.UUID
	PayeeID         *uuid.UUID
	ActorID         *uuid.UUID
	AmountCents     int64
	CommissionCents int64
	NetCents        int64
	Currency        string
}

type service struct {
	repo Repository
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordTransactionInput) (*models.Transaction, error) {
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction type")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction status")
	}
	if input.Code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction code is required")
	}
	if input.Currency == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction currency is required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction amount must be positive")
	}
	if input.Type != enums.TransactionTypePayout && input.BookingID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id is required for charge and refund rows")
	}
	if input.Type == enums.TransactionTypeCharge && input.NetCents != input.AmountCents-input.CommissionCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge net must equal amount minus commission")
	}

	txn := &models.Transaction{
		ID:              uuid.New(),
		BookingID:       input.BookingID,
		PayoutID:        input.PayoutID,
		Type:            input.Type,
		Status:          input.Status,
		Code:            input.Code,
		Gateway:         input.Gateway,
		PayerID:         input.PayerID,
		PayeeID:         input.PayeeID,
		ActorID:         input.ActorID,
		AmountCents:     input.AmountCents,
		CommissionCents: input.CommissionCents,
		NetCents:        input.NetCents,
		Currency:        input.Currency,
	}

	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}
	if err := repo.Create(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *service) Confirm(ctx context.Context, tx *gorm.DB, txnID uuid.UUID) error {
	if txnID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}
	err := repo.UpdateStatus(ctx, txnID, enums.TransactionStatusPending, enums.TransactionStatusConfirmed)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction is not pending")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm transaction")
	}
	return nil
}

func (s *service) FindSettlement(ctx context.Context, bookingID uuid.UUID, txnType enums.TransactionType, code string) (*models.Transaction, error) {
	if bookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id is required")
	}
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction code is required")
	}
	return s.repo.FindByBookingTypeCode(ctx, bookingID, txnType, code)
}

func (s *service) ListForBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Transaction, error) {
	if bookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id is required")
	}
	return s.repo.ListByBookingID(ctx, bookingID)
}

func (s *service) FindForPayout(ctx context.Context, payoutID uuid.UUID) (*models.Transaction, error) {
	if payoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id is required")
	}
	return s.repo.FindByPayoutID(ctx, payoutID)
}
