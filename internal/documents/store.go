package documents

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"goldenbook-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrDocumentNotFound = errors.New("Document not found")

// Store is a content-addressed JSON document store backing allocation tables
// and bid receipts. Documents are append-only: the same payload always maps
// to the same row via its sha256 hash.
type Store struct {
	DB *gorm.DB
}

// Put stores payload under its content hash and returns the document.
// Storing an identical payload again returns the existing row.
func (s *Store) Put(ctx context.Context, kind string, payload interface{}) (*domain.AuctionDocument, error) {
	var doc *domain.AuctionDocument
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		doc, err = s.PutTx(tx, kind, payload)
		return err
	})
	return doc, err
}

// PutTx is Put inside the caller's transaction (clearing writes the
// allocation document atomically with the clear result).
func (s *Store) PutTx(tx *gorm.DB, kind string, payload interface{}) (*domain.AuctionDocument, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(b)
	hash := hex.EncodeToString(sum[:])

	var existing domain.AuctionDocument
	err = tx.Where("hash = ?", hash).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	doc := domain.AuctionDocument{
		Kind:    kind,
		Hash:    hash,
		Payload: datatypes.JSON(b),
	}
	if err := tx.Create(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// Get returns a document by id.
func (s *Store) Get(ctx context.Context, docID uuid.UUID) (*domain.AuctionDocument, error) {
	var doc domain.AuctionDocument
	err := s.DB.WithContext(ctx).Where("doc_id = ?", docID).First(&doc).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
