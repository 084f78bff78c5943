package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/quotaguard/internal/clock"
	"github.com/smallbiznis/quotaguard/internal/config"
	"github.com/smallbiznis/quotaguard/internal/product/domain"
	"github.com/smallbiznis/quotaguard/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("product.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	barcode := strings.TrimSpace(req.Barcode)
	if barcode == "" {
		return nil, domain.ErrInvalidBarcode
	}
	category, err := parseCategory(req.Category)
	if err != nil {
		return nil, err
	}
	volumeML, err := normalizeVolume(req.Volume, req.VolumeUnit)
	if err != nil {
		return nil, err
	}
	if req.AlcoholContent < 0 || req.AlcoholContent > 100 {
		return nil, domain.ErrInvalidAlcoholContent
	}
	if req.Price < 0 {
		return nil, domain.ErrInvalidPrice
	}
	if req.Stock < 0 {
		return nil, domain.ErrInvalidStock
	}
	reorderLevel := int64(domain.DefaultReorderLevel)
	if req.ReorderLevel != nil {
		reorderLevel = *req.ReorderLevel
	}

	now := s.clock.Now()
	p := &domain.Product{
		ID:             s.genID.Generate(),
		Name:           name,
		Barcode:        barcode,
		Category:       category,
		Brand:          strings.TrimSpace(req.Brand),
		Description:    strings.TrimSpace(req.Description),
		VolumeML:       volumeML,
		AlcoholContent: req.AlcoholContent,
		Price:          req.Price,
		Stock:          req.Stock,
		ReorderLevel:   reorderLevel,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, s.db, p); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateBarcode
		}
		return nil, err
	}

	s.log.Info("product created",
		zap.String("product_id", p.ID.String()),
		zap.String("barcode", p.Barcode),
		zap.Int64("volume_ml", p.VolumeML),
	)
	resp := toResponse(p)
	return &resp, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req domain.UpdateRequest) (*domain.Response, error) {
	fields := map[string]any{"updated_at": s.clock.Now()}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		fields["name"] = name
	}
	if req.Category != nil {
		category, err := parseCategory(*req.Category)
		if err != nil {
			return nil, err
		}
		fields["category"] = category
	}
	if req.Brand != nil {
		fields["brand"] = strings.TrimSpace(*req.Brand)
	}
	if req.Description != nil {
		fields["description"] = strings.TrimSpace(*req.Description)
	}
	if req.AlcoholContent != nil {
		if *req.AlcoholContent < 0 || *req.AlcoholContent > 100 {
			return nil, domain.ErrInvalidAlcoholContent
		}
		fields["alcohol_content"] = *req.AlcoholContent
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return nil, domain.ErrInvalidPrice
		}
		fields["price"] = *req.Price
	}
	if req.ReorderLevel != nil {
		fields["reorder_level"] = *req.ReorderLevel
	}

	if err := s.repo.Update(ctx, s.db, id, fields); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Deactivate hides the product from sale; history keeps referencing it.
func (s *Service) Deactivate(ctx context.Context, id snowflake.ID) error {
	return s.repo.Update(ctx, s.db, id, map[string]any{
		"is_active":  false,
		"updated_at": s.clock.Now(),
	})
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Response, error) {
	items, err := s.repo.List(ctx, s.db, req)
	if err != nil {
		return nil, err
	}
	return toResponses(items), nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Response, error) {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toResponse(&p)
	return &resp, nil
}

func (s *Service) GetProduct(ctx context.Context, id snowflake.ID) (domain.Product, error) {
	if id == 0 {
		return domain.Product{}, domain.ErrNotFound
	}
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Product{}, err
	}
	if item == nil {
		return domain.Product{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) GetProducts(ctx context.Context, ids []snowflake.ID) (map[snowflake.ID]domain.Product, error) {
	items, err := s.repo.FindByIDs(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[snowflake.ID]domain.Product, len(items))
	for _, item := range items {
		out[item.ID] = item
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, domain.ErrNotFound
		}
	}
	return out, nil
}

func (s *Service) GetByBarcode(ctx context.Context, barcode string) (*domain.Response, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return nil, domain.ErrInvalidBarcode
	}
	item, err := s.repo.FindByBarcode(ctx, s.db, barcode)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	resp := toResponse(item)
	return &resp, nil
}

func (s *Service) ListLowStock(ctx context.Context) ([]domain.Response, error) {
	items, err := s.repo.ListLowStock(ctx, s.db)
	if err != nil {
		return nil, err
	}
	return toResponses(items), nil
}

func parseCategory(value string) (domain.Category, error) {
	category := domain.Category(slug.Make(value))
	if !category.Valid() {
		return "", domain.ErrInvalidCategory
	}
	return category, nil
}

// normalizeVolume converts a per-unit volume to milliliters. Liters is the
// default unit.
func normalizeVolume(volume float64, unit string) (int64, error) {
	if volume <= 0 {
		return 0, domain.ErrInvalidVolume
	}
	var ml int64
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "ml":
		ml = config.LitersToML(volume / 1000)
	case "l", "":
		ml = config.LitersToML(volume)
	default:
		return 0, domain.ErrInvalidVolume
	}
	if ml <= 0 {
		return 0, domain.ErrInvalidVolume
	}
	return ml, nil
}

func toResponses(items []domain.Product) []domain.Response {
	resp := make([]domain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	return resp
}

func toResponse(p *domain.Product) domain.Response {
	return domain.Response{
		ID:             p.ID.String(),
		Name:           p.Name,
		Barcode:        p.Barcode,
		Category:       p.Category,
		Brand:          p.Brand,
		Description:    p.Description,
		VolumeML:       p.VolumeML,
		VolumeLiters:   config.MLToLiters(p.VolumeML),
		AlcoholContent: p.AlcoholContent,
		Price:          p.Price,
		Stock:          p.Stock,
		ReorderLevel:   p.ReorderLevel,
		StockStatus:    p.StockStatus(),
		IsActive:       p.IsActive,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}
