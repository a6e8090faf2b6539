package service

import (
	"context"
	"errors"

	"github.com/platformx/platformx/internal/model"
	"github.com/platformx/platformx/internal/repository"
)

// relatedDatasetsLimit is how many same-category listings a dataset page shows.
const relatedDatasetsLimit = 4

// MarketplaceStore is the persistence MarketplaceService reads from.
type MarketplaceStore interface {
	ListMarketplaceCategories(ctx context.Context) ([]string, error)
	ListMarketplaceDatasets(ctx context.Context, q repository.MarketplaceQuery) ([]*model.MarketplaceDataset, int64, error)
	GetMarketplaceDataset(ctx context.Context, id string) (*model.MarketplaceDataset, error)
	ListRelatedMarketplaceDatasets(ctx context.Context, ds *model.MarketplaceDataset, limit int) ([]*model.MarketplaceDataset, error)
	GetMarketplaceContent(ctx context.Context, datasetID string) (*model.MarketplaceContent, error)
}

// MarketplaceService serves dataset listings and raw data.
type MarketplaceService struct {
	store MarketplaceStore
}

// NewMarketplaceService creates a MarketplaceService.
func NewMarketplaceService(store MarketplaceStore) *MarketplaceService {
	return &MarketplaceService{store: store}
}

// FiltersAndSortOptions is what the listing page needs to render its controls.
type FiltersAndSortOptions struct {
	Filters     []string           `json:"filters"`
	SortOptions []model.SortOption `json:"sortOptions"`
}

// FiltersAndSortOptions returns the category filters, "All" first, and the sort whitelist.
func (s *MarketplaceService) FiltersAndSortOptions(ctx context.Context) (*FiltersAndSortOptions, error) {
	cats, err := s.store.ListMarketplaceCategories(ctx)
	if err != nil {
		return nil, err
	}
	return &FiltersAndSortOptions{
		Filters:     append([]string{model.FilterAll}, cats...),
		SortOptions: model.SortOptions,
	}, nil
}

// ListingsInput is one marketplace search.
type ListingsInput struct {
	Search string
	Filter string
	Sort   string
	Offset int
	Limit  int
}

// Listings searches the marketplace.
func (s *MarketplaceService) Listings(ctx context.Context, in ListingsInput) (*Page[*model.MarketplaceDataset], error) {
	key := in.Sort
	if key == "" {
		key = model.DefaultSortOption
	}
	sort, ok := model.FindSortOption(key)
	if !ok {
		return nil, ErrInvalidSortOption
	}

	offset, limit := repository.ListPage(in.Offset, in.Limit)
	datasets, total, err := s.store.ListMarketplaceDatasets(ctx, repository.MarketplaceQuery{
		Search:   in.Search,
		Category: in.Filter,
		Sort:     sort,
		Offset:   offset,
		Limit:    limit,
	})
	if err != nil {
		return nil, err
	}
	if datasets == nil {
		datasets = []*model.MarketplaceDataset{}
	}
	return &Page[*model.MarketplaceDataset]{Data: datasets, TotalCount: total, Offset: offset, Limit: limit}, nil
}

// DatasetView is a listing with a few related listings.
type DatasetView struct {
	Dataset *model.MarketplaceDataset   `json:"dataset"`
	Related []*model.MarketplaceDataset `json:"relatedDatasets"`
}

// ViewDataset returns a listing and up to four others from its category.
func (s *MarketplaceService) ViewDataset(ctx context.Context, id string) (*DatasetView, error) {
	ds, err := s.store.GetMarketplaceDataset(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrMarketplaceDatasetNotFound) {
			return nil, ErrMarketplaceDatasetNotFound
		}
		return nil, err
	}

	related, err := s.store.ListRelatedMarketplaceDatasets(ctx, ds, relatedDatasetsLimit)
	if err != nil {
		return nil, err
	}
	if related == nil {
		related = []*model.MarketplaceDataset{}
	}
	return &DatasetView{Dataset: ds, Related: related}, nil
}

// Content returns the raw records behind a listing.
func (s *MarketplaceService) Content(ctx context.Context, id string) (*model.MarketplaceContent, error) {
	content, err := s.store.GetMarketplaceContent(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrMarketplaceDatasetNotFound) {
			return nil, ErrMarketplaceDatasetNotFound
		}
		return nil, err
	}
	return content, nil
}
