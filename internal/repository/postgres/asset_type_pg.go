// internal/repository/postgres/asset_type_pg.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"closedloop-wallet/internal/domain"
	"closedloop-wallet/internal/repository"
	"closedloop-wallet/internal/util"
	"closedloop-wallet/pkg/db"
)

// AssetTypeRepository implements repository.AssetTypeRepository for PostgreSQL.
type AssetTypeRepository struct{}

// NewAssetTypeRepository creates a new AssetTypeRepository.
func NewAssetTypeRepository() repository.AssetTypeRepository {
	return &AssetTypeRepository{}
}

// CreateAssetType inserts a new asset type.
func (r *AssetTypeRepository) CreateAssetType(ctx context.Context, q repository.DBExecutor, assetType *domain.AssetType) error {
	query := `INSERT INTO asset_types (name, symbol) VALUES ($1, $2) RETURNING id`
	if err := q.QueryRowContext(ctx, query, assetType.Name, assetType.Symbol).Scan(&assetType.ID); err != nil {
		if db.IsUniqueViolation(err, "") {
			return fmt.Errorf("failed to create asset type %s: %w", assetType.Symbol, util.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create asset type: %w", err)
	}
	return nil
}

// GetAssetTypeByID retrieves an asset type by ID.
func (r *AssetTypeRepository) GetAssetTypeByID(ctx context.Context, q repository.DBExecutor, id int64) (*domain.AssetType, error) {
	var assetType domain.AssetType
	err := q.GetContext(ctx, &assetType, `SELECT id, name, symbol FROM asset_types WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.ErrAssetTypeNotFound
		}
		return nil, fmt.Errorf("failed to get asset type by ID %d: %w", id, err)
	}
	return &assetType, nil
}

// GetAssetTypeBySymbol retrieves an asset type by its symbol.
func (r *AssetTypeRepository) GetAssetTypeBySymbol(ctx context.Context, q repository.DBExecutor, symbol string) (*domain.AssetType, error) {
	var assetType domain.AssetType
	err := q.GetContext(ctx, &assetType, `SELECT id, name, symbol FROM asset_types WHERE symbol = $1`, symbol)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.ErrAssetTypeNotFound
		}
		return nil, fmt.Errorf("failed to get asset type by symbol %s: %w", symbol, err)
	}
	return &assetType, nil
}

// ListAssetTypes returns every asset type ordered by ID.
func (r *AssetTypeRepository) ListAssetTypes(ctx context.Context, q repository.DBExecutor) ([]domain.AssetType, error) {
	assetTypes := []domain.AssetType{}
	if err := q.SelectContext(ctx, &assetTypes, `SELECT id, name, symbol FROM asset_types ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list asset types: %w", err)
	}
	return assetTypes, nil
}
