package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/pkg/logger"
)

// Service provides product catalogue operations.
type Service struct {
	repo Repository
}

// NewService creates a new catalogue service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateInput holds fields for creating a product.
type CreateInput struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	Unit       string `json:"unit"`
	Serialized bool   `json:"serialized"`
}

// Create registers a new product.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Product, error) {
	input.Code = strings.TrimSpace(input.Code)
	input.Name = strings.TrimSpace(input.Name)
	if input.Code == "" {
		return nil, apperror.NewValidation("product code is required")
	}
	if input.Name == "" {
		return nil, apperror.NewValidation("product name is required")
	}
	if input.Unit == "" {
		input.Unit = "pcs"
	}

	product := &Product{
		ID:         id.New(),
		Code:       input.Code,
		Name:       input.Name,
		Unit:       input.Unit,
		Serialized: input.Serialized,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	logger.Info(ctx, "product created",
		"product_id", product.ID,
		"code", product.Code,
		"serialized", product.Serialized,
	)

	return product, nil
}

// Get returns a product by id.
func (s *Service) Get(ctx context.Context, productID id.ID) (*Product, error) {
	return s.repo.GetByID(ctx, productID)
}

// List returns products with pagination.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Product, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}
