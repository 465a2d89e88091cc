package receipts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/db"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

// Receipt is what the shopper sees in their order history.
type Receipt struct {
	VisitID         uuid.UUID
	UserID          string
	OrderID         string
	ItemDescriptor  string
	Amount          decimal.Decimal
	Currency        string
	Email           string
	PaymentMethodID string
	Last4           string
	ShippingLine    string
	PaidAt          time.Time
}

type ServiceParams struct {
	Repo     Repository
	Currency string
	Logger   *logger.Logger
}

type Service struct {
	repo     Repository
	currency string
	logger   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "receipts repository required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "inr"
	}
	return &Service{repo: params.Repo, currency: currency, logger: params.Logger}, nil
}

// Record stores r. Recording the same visit twice is a no-op.
func (s *Service) Record(ctx context.Context, r Receipt) error {
	if r.VisitID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "visit id is required")
	}
	if !r.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "receipt amount must be positive")
	}
	currency := strings.ToLower(strings.TrimSpace(r.Currency))
	if currency == "" {
		currency = s.currency
	}
	paidAt := r.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now()
	}

	_, err := s.repo.Create(ctx, &models.Receipt{
		VisitID:         r.VisitID,
		UserID:          r.UserID,
		OrderID:         r.OrderID,
		OrderedItem:     r.ItemDescriptor,
		AmountCents:     r.Amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart(),
		Currency:        currency,
		Email:           r.Email,
		PaymentMethodID: r.PaymentMethodID,
		CardLast4:       r.Last4,
		ShippingAddress: r.ShippingLine,
		PaidAt:          paidAt.UTC(),
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			s.logger.Debug(s.logger.WithField(ctx, "visit_id", r.VisitID.String()), "receipt already recorded")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record receipt")
	}
	return nil
}

// History returns the newest receipts of a shopper first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]Receipt, error) {
	rows, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list receipts")
	}
	out := make([]Receipt, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromModel(row))
	}
	return out, nil
}

// ForVisit returns the receipt of one visit.
func (s *Service) ForVisit(ctx context.Context, visitID uuid.UUID) (*Receipt, error) {
	row, err := s.repo.FindByVisitID(ctx, visitID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "receipt not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find receipt")
	}
	r := fromModel(*row)
	return &r, nil
}

func fromModel(row models.Receipt) Receipt {
	return Receipt{
		VisitID:         row.VisitID,
		UserID:          row.UserID,
		OrderID:         row.OrderID,
		ItemDescriptor:  row.OrderedItem,
		Amount:          decimal.New(row.AmountCents, -2),
		Currency:        row.Currency,
		Email:           row.Email,
		PaymentMethodID: row.PaymentMethodID,
		Last4:           row.CardLast4,
		ShippingLine:    row.ShippingAddress,
		PaidAt:          row.PaidAt,
	}
}
