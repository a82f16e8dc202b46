// internal/domain/asset_type.go
package domain

import (
	"fmt"
	"strings"
)

// AssetType is a tradeable unit such as an in-game currency. Static reference data.
type AssetType struct {
	ID     int64  `db:"id" json:"id"`
	Name   string `db:"name" json:"name"`
	Symbol string `db:"symbol" json:"symbol"`
}

// NewAssetType creates an AssetType with a normalised upper-case symbol.
func NewAssetType(name, symbol string) (*AssetType, error) {
	name = strings.TrimSpace(name)
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if name == "" || symbol == "" {
		return nil, fmt.Errorf("asset type name and symbol are required")
	}
	return &AssetType{Name: name, Symbol: symbol}, nil
}
