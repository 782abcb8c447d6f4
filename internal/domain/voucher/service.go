package voucher

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/bistro/internal/domain/auth"
)

// DefaultPageSize is used when ListParams.Limit is not positive.
const DefaultPageSize = 8

// Service administers vouchers and answers interactive code checks.
type Service struct {
	repo      Repository
	validator *Validator
	now       func() time.Time
}

// NewService creates a voucher Service.
func NewService(repo Repository, validator *Validator) *Service {
	return &Service{repo: repo, validator: validator, now: time.Now}
}

// Check validates code for the calling customer. The result is advisory:
// checkout validates again.
func (s *Service) Check(ctx context.Context, p auth.Principal, code string) (*Voucher, error) {
	return s.validator.ByCode(ctx, code, p.UserID)
}

// Create registers a new active voucher.
func (s *Service) Create(ctx context.Context, p auth.Principal, in Input) (*Voucher, error) {
	if err := p.Require(auth.ManageVouchers); err != nil {
		return nil, err
	}
	in, err := in.Normalize()
	if err != nil {
		return nil, err
	}

	v := &Voucher{
		ID:         uuid.New().String(),
		Code:       in.Code,
		Type:       in.Type,
		Amount:     in.Amount,
		ExpiresAt:  in.ExpiresAt,
		UsageLimit: in.UsageLimit,
		Active:     true,
		CreatedAt:  s.now(),
	}
	if err := s.repo.Create(ctx, v); err != nil {
		if errors.Is(err, ErrCodeTaken) {
			return nil, ErrCodeTaken
		}
		return nil, errors.Wrap(err, "create voucher")
	}
	return v, nil
}

// Update replaces the editable fields of an existing voucher.
func (s *Service) Update(ctx context.Context, p auth.Principal, id string, in Input) (*Voucher, error) {
	if err := p.Require(auth.ManageVouchers); err != nil {
		return nil, err
	}
	in, err := in.Normalize()
	if err != nil {
		return nil, err
	}

	v, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err)
	}
	v.Code = in.Code
	v.Type = in.Type
	v.Amount = in.Amount
	v.ExpiresAt = in.ExpiresAt
	v.UsageLimit = in.UsageLimit

	if err := s.repo.Update(ctx, v); err != nil {
		switch {
		case errors.Is(err, ErrCodeTaken):
			return nil, ErrCodeTaken
		case errors.Is(err, ErrNotFound):
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "update voucher")
	}
	return v, nil
}

// Deactivate soft-deletes a voucher. Orders keep referencing it.
func (s *Service) Deactivate(ctx context.Context, p auth.Principal, id string) error {
	if err := p.Require(auth.ManageVouchers); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return errors.Wrap(err, "deactivate voucher")
	}
	return nil
}

// List returns a page of vouchers and the total number matching params.
func (s *Service) List(ctx context.Context, p auth.Principal, params ListParams) ([]Voucher, int, error) {
	if err := p.Require(auth.ManageVouchers); err != nil {
		return nil, 0, err
	}
	if params.Limit <= 0 {
		params.Limit = DefaultPageSize
	}
	if params.Skip < 0 {
		params.Skip = 0
	}
	vs, total, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list vouchers")
	}
	return vs, total, nil
}
