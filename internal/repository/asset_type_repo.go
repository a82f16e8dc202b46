// internal/repository/asset_type_repo.go
package repository

import (
	"context"

	"closedloop-wallet/internal/domain"
)

// AssetTypeRepository defines the interface for the asset type registry.
type AssetTypeRepository interface {
	CreateAssetType(ctx context.Context, q DBExecutor, assetType *domain.AssetType) error
	GetAssetTypeByID(ctx context.Context, q DBExecutor, id int64) (*domain.AssetType, error)
	GetAssetTypeBySymbol(ctx context.Context, q DBExecutor, symbol string) (*domain.AssetType, error)
	ListAssetTypes(ctx context.Context, q DBExecutor) ([]domain.AssetType, error)
}
