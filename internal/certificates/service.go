package certificates

import (
	"context"
	"strings"
	"time"

	"goldenbook-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service issues capital contribution certificates for filled bids.
type Service struct {
	DB *gorm.DB
}

// Issue creates a certificate for a filled bid. One certificate per bid:
// reissuing for the same bid returns the existing certificate, which keeps
// settlement retries safe.
func (s *Service) Issue(ctx context.Context, userID, roundID, bidID uuid.UUID, amount int64, rate float64) (*domain.Certificate, error) {
	var cert *domain.Certificate
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		cert, err = s.IssueTx(tx, userID, roundID, bidID, amount, rate)
		return err
	})
	return cert, err
}

// IssueTx is Issue inside the caller's transaction.
func (s *Service) IssueTx(tx *gorm.DB, userID, roundID, bidID uuid.UUID, amount int64, rate float64) (*domain.Certificate, error) {
	var existing domain.Certificate
	err := tx.Where("bid_id = ?", bidID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	cert := domain.Certificate{
		UserID:            userID,
		RoundID:           roundID,
		BidID:             bidID,
		Amount:            amount,
		Rate:              rate,
		CertificateNumber: certificateNumber(bidID),
		Status:            "issued",
		IssuedAt:          time.Now(),
	}
	if err := tx.Create(&cert).Error; err != nil {
		return nil, err
	}
	return &cert, nil
}

// certificateNumber derives the printable number from the bid id, so reissue
// attempts always produce the same number.
func certificateNumber(bidID uuid.UUID) string {
	return "GB-CERT-" + strings.ToUpper(strings.ReplaceAll(bidID.String(), "-", "")[:12])
}

// ListUserCertificates returns a user's certificates, newest first.
func (s *Service) ListUserCertificates(ctx context.Context, userID uuid.UUID) ([]domain.Certificate, error) {
	var certs []domain.Certificate
	if err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order(`"createdAt" DESC`).
		Find(&certs).Error; err != nil {
		return nil, err
	}
	return certs, nil
}
