package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Category string

const (
	CategoryBeer    Category = "beer"
	CategoryWine    Category = "wine"
	CategoryWhiskey Category = "whiskey"
	CategoryVodka   Category = "vodka"
	CategoryRum     Category = "rum"
	CategoryGin     Category = "gin"
	CategoryTequila Category = "tequila"
	CategoryBrandy  Category = "brandy"
	CategoryLiqueur Category = "liqueur"
	CategoryOther   Category = "other"
)

var categories = map[Category]struct{}{
	CategoryBeer: {}, CategoryWine: {}, CategoryWhiskey: {}, CategoryVodka: {}, CategoryRum: {},
	CategoryGin: {}, CategoryTequila: {}, CategoryBrandy: {}, CategoryLiqueur: {}, CategoryOther: {},
}

func (c Category) Valid() bool {
	_, ok := categories[c]
	return ok
}

type StockStatus string

const (
	StockStatusInStock    StockStatus = "in_stock"
	StockStatusLowStock   StockStatus = "low_stock"
	StockStatusOutOfStock StockStatus = "out_of_stock"
)

const DefaultReorderLevel = 10

// Product is a sellable unit. VolumeML is the volume of one unit and Price is
// in minor currency units.
type Product struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	Name           string       `json:"name" gorm:"size:255;not null;index"`
	Barcode        string       `json:"barcode" gorm:"size:64;not null;uniqueIndex"`
	Category       Category     `json:"category" gorm:"type:varchar(32);not null;index:idx_products_category_active,priority:1"`
	Brand          string       `json:"brand,omitempty" gorm:"size:255"`
	Description    string       `json:"description,omitempty" gorm:"type:text"`
	VolumeML       int64        `json:"volume_ml" gorm:"not null"`
	AlcoholContent float64      `json:"alcohol_content" gorm:"not null"`
	Price          int64        `json:"price" gorm:"not null"`
	Stock          int64        `json:"stock" gorm:"not null;check:chk_products_stock,stock >= 0"`
	ReorderLevel   int64        `json:"reorder_level" gorm:"not null"`
	IsActive       bool         `json:"is_active" gorm:"not null;index:idx_products_category_active,priority:2"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }

func (p Product) StockStatus() StockStatus {
	switch {
	case p.Stock <= 0:
		return StockStatusOutOfStock
	case p.Stock <= p.ReorderLevel:
		return StockStatusLowStock
	default:
		return StockStatusInStock
	}
}
