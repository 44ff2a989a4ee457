package service

import (
	"context"
	"fmt"
	"time"

	"vidpay/internal/core/domain"
	"vidpay/internal/core/ports"
	"vidpay/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EntitlementServiceImpl answers access checks against purchases and
// rentals. Purchases win: they never expire, so a concurrent rental on the
// same content adds nothing.
type EntitlementServiceImpl struct {
	rentalRepo   ports.RentalRepository
	purchaseRepo ports.PurchaseRepository
	log          zerolog.Logger
}

// NewEntitlementService creates a new EntitlementServiceImpl.
func NewEntitlementService(rentalRepo ports.RentalRepository, purchaseRepo ports.PurchaseRepository, log zerolog.Logger) *EntitlementServiceImpl {
	return &EntitlementServiceImpl{
		rentalRepo:   rentalRepo,
		purchaseRepo: purchaseRepo,
		log:          log,
	}
}

// HasAccess resolves whether a user can watch a piece of content right now.
func (s *EntitlementServiceImpl) HasAccess(ctx context.Context, userID, contentID uuid.UUID, contentType domain.ContentType) (*domain.Access, error) {
	if !contentType.IsValid() {
		return nil, apperror.Validation(fmt.Sprintf("unknown content type %q", contentType))
	}

	purchase, err := s.purchaseRepo.Find(ctx, userID, contentID, contentType)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check purchase: %w", err))
	}
	if purchase != nil {
		return &domain.Access{HasAccess: true, AccessType: domain.AccessTypePurchase}, nil
	}

	rental, err := s.rentalRepo.FindActive(ctx, userID, contentID, contentType, time.Now().UTC())
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check rental: %w", err))
	}
	if rental != nil {
		expires := rental.ExpiresAt
		return &domain.Access{HasAccess: true, AccessType: domain.AccessTypeRental, ExpiresAt: &expires}, nil
	}

	return &domain.Access{HasAccess: false}, nil
}

// ExpireOverdueRentals flips rentals past their expiry to the expired
// status. Run periodically by the sweeper in cmd/api; access checks never
// depend on it because FindActive filters on expires_at.
func (s *EntitlementServiceImpl) ExpireOverdueRentals(ctx context.Context) (int64, error) {
	n, err := s.rentalRepo.ExpireOverdue(ctx, time.Now().UTC())
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("expire overdue rentals: %w", err))
	}
	if n > 0 {
		s.log.Info().Int64("expired", n).Msg("overdue rentals swept")
	}
	return n, nil
}
