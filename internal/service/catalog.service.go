package service

import (
	"context"
	"fmt"
	"slices"

	"bike-storefront/internal/domain"
	"bike-storefront/internal/query"
	"bike-storefront/internal/repo"

	"github.com/google/uuid"
)

type CatalogService interface {
	ListBikes(ctx context.Context, params map[string]string) (*Page[domain.Bike], error)
	GetBike(ctx context.Context, id uuid.UUID) (*domain.Bike, error)
	AddBike(ctx context.Context, bike *domain.Bike) error
}

type catalogService struct {
	bikeRepo repo.BikeRepo
}

func NewCatalogService(bikeRepo repo.BikeRepo) CatalogService {
	return &catalogService{bikeRepo: bikeRepo}
}

func (s *catalogService) ListBikes(ctx context.Context, params map[string]string) (*Page[domain.Bike], error) {
	b := query.NewBuilder(repo.BikeResource, params).Apply()
	bikes, total, err := s.bikeRepo.List(ctx, b)
	if err != nil {
		return nil, err
	}
	logWarnings(ctx, repo.BikeResource.Table, b.Warnings())
	return &Page[domain.Bike]{Items: bikes, Meta: b.Meta(total), Warnings: b.Warnings(), Fields: b.Selected()}, nil
}

func (s *catalogService) GetBike(ctx context.Context, id uuid.UUID) (*domain.Bike, error) {
	return s.bikeRepo.FindById(ctx, id)
}

func (s *catalogService) AddBike(ctx context.Context, bike *domain.Bike) error {
	switch {
	case bike.Name == "" || bike.Brand == "" || bike.Model == "":
		return fmt.Errorf("%w: name, brand and model are required", domain.ErrValidation)
	case !slices.Contains(domain.BikeCategories, bike.Category):
		return fmt.Errorf("%w: category %q", domain.ErrValidation, bike.Category)
	case !slices.Contains(domain.RiderTypes, bike.RiderType):
		return fmt.Errorf("%w: riderType %q", domain.ErrValidation, bike.RiderType)
	case bike.Price.IsNegative() || bike.Quantity < 0:
		return fmt.Errorf("%w: price and quantity must not be negative", domain.ErrValidation)
	}
	return s.bikeRepo.Create(ctx, nil, bike)
}
