package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tealeg/xlsx"

	"github.com/darcho/darcho/app/models"
	"github.com/darcho/darcho/app/repositories"
	"github.com/darcho/darcho/pkg/logger"
	"github.com/darcho/darcho/pkg/orm"
	"github.com/darcho/darcho/pkg/storage"
)

// Viewer is who is asking. The zero Viewer is an anonymous visitor.
type Viewer struct {
	UserID uint
	Role   string
}

func (v Viewer) owns(p *models.Product) bool {
	return v.Role == models.RoleFarmer && v.UserID == p.FarmerID
}

type ProductService struct {
	products *repositories.ProductRepository
	carts    *repositories.CartRepository
	users    *repositories.UserRepository
}

func NewProductService() *ProductService {
	return &ProductService{
		products: repositories.NewProductRepository(),
		carts:    repositories.NewCartRepository(),
		users:    repositories.NewUserRepository(),
	}
}

type ProductInput struct {
	Name         string  `json:"name" validate:"required,notblank,max=255"`
	Variety      string  `json:"variety" validate:"omitempty,max=128"`
	Region       string  `json:"region" validate:"required,max=64"`
	Process      string  `json:"process" validate:"required,oneof=washed natural honey"`
	Grade        int     `json:"grade" validate:"required,gte=1,lte=5"`
	AltitudeM    int     `json:"altitude_m" validate:"gte=0,lte=4000"`
	HarvestYear  int     `json:"harvest_year" validate:"omitempty,gte=2000,lte=2100"`
	CuppingScore float64 `json:"cupping_score" validate:"gte=0,lte=100"`
	PricePerKg   float64 `json:"price_per_kg" validate:"required,gt=0"`
	QuantityKg   float64 `json:"quantity_kg" validate:"gte=0"`
	MinOrderKg   float64 `json:"min_order_kg" validate:"omitempty,gte=1"`
	Description  string  `json:"description" validate:"omitempty,max=5000"`
	Status       string  `json:"status" validate:"omitempty,oneof=active inactive"`
}

// ProductUpdate is a partial update; nil fields are left alone.
type ProductUpdate struct {
	Name         *string  `json:"name" validate:"omitempty,notblank,max=255"`
	Variety      *string  `json:"variety" validate:"omitempty,max=128"`
	Region       *string  `json:"region" validate:"omitempty,notblank,max=64"`
	Process      *string  `json:"process" validate:"omitempty,oneof=washed natural honey"`
	Grade        *int     `json:"grade" validate:"omitempty,gte=1,lte=5"`
	AltitudeM    *int     `json:"altitude_m" validate:"omitempty,gte=0,lte=4000"`
	HarvestYear  *int     `json:"harvest_year" validate:"omitempty,gte=2000,lte=2100"`
	CuppingScore *float64 `json:"cupping_score" validate:"omitempty,gte=0,lte=100"`
	PricePerKg   *float64 `json:"price_per_kg" validate:"omitempty,gt=0"`
	QuantityKg   *float64 `json:"quantity_kg" validate:"omitempty,gte=0"`
	MinOrderKg   *float64 `json:"min_order_kg" validate:"omitempty,gte=1"`
	Description  *string  `json:"description" validate:"omitempty,max=5000"`
	Status       *string  `json:"status" validate:"omitempty,oneof=active inactive"`
}

// List is the public catalogue. A farmer filtering by their own id also
// sees inactive and sold-out lots.
func (s *ProductService) List(ctx context.Context, v Viewer, f repositories.ProductFilter, page, limit int) ([]models.Product, orm.Pagination, error) {
	f.IncludeUnavailable = f.FarmerID != 0 && v.Role == models.RoleFarmer && v.UserID == f.FarmerID
	products, p, err := s.products.Search(ctx, f, page, limit)
	if err != nil {
		return nil, p, err
	}
	for i := range products {
		withImageURL(&products[i])
	}
	return products, p, nil
}

// ListForFarmer is the farmer's own inventory, every status included.
func (s *ProductService) ListForFarmer(ctx context.Context, farmerID uint, f repositories.ProductFilter, page, limit int) ([]models.Product, orm.Pagination, error) {
	f.FarmerID = farmerID
	return s.List(ctx, Viewer{UserID: farmerID, Role: models.RoleFarmer}, f, page, limit)
}

// Get returns one product. Inactive lots are hidden from everyone but their
// owner and admins.
func (s *ProductService) Get(ctx context.Context, v Viewer, id uint) (models.Product, error) {
	p, err := s.products.FindCached(ctx, id)
	if err != nil {
		return models.Product{}, notFound(err, "product")
	}
	if p.Status != models.ProductActive && !v.owns(&p) && v.Role != models.RoleAdmin {
		return models.Product{}, fmt.Errorf("%w: product", ErrNotFound)
	}
	withImageURL(&p)
	return p, nil
}

// Create lists a new lot. Only approved farmers may sell.
func (s *ProductService) Create(ctx context.Context, farmerID uint, in ProductInput) (models.Product, error) {
	if err := check(in); err != nil {
		return models.Product{}, err
	}
	farmer, err := s.users.FindByID(ctx, farmerID)
	if err != nil {
		return models.Product{}, notFound(err, "farmer")
	}
	if !farmer.IsActive() {
		return models.Product{}, fmt.Errorf("%w: farmer account is not approved yet", ErrForbidden)
	}

	p := models.Product{
		FarmerID:     farmerID,
		Name:         strings.TrimSpace(in.Name),
		Variety:      in.Variety,
		Region:       in.Region,
		Process:      in.Process,
		Grade:        in.Grade,
		AltitudeM:    in.AltitudeM,
		HarvestYear:  in.HarvestYear,
		CuppingScore: in.CuppingScore,
		PricePerKg:   models.Round2(in.PricePerKg),
		QuantityKg:   models.Round2(in.QuantityKg),
		MinOrderKg:   in.MinOrderKg,
		Description:  in.Description,
		Status:       in.Status,
	}
	if p.MinOrderKg == 0 {
		p.MinOrderKg = 1
	}
	if p.Status == "" {
		p.Status = models.ProductActive
	}
	if err := s.products.Create(ctx, &p); err != nil {
		return models.Product{}, err
	}
	logger.WithCtx(ctx).Info("product: created", "product_id", p.ID, "farmer_id", farmerID)
	return p, nil
}

// owned loads a product and checks the farmer owns it.
func (s *ProductService) owned(ctx context.Context, farmerID, id uint) (models.Product, error) {
	p, err := s.products.Find(ctx, id)
	if err != nil {
		return models.Product{}, notFound(err, "product")
	}
	if p.FarmerID != farmerID {
		return models.Product{}, fmt.Errorf("%w: product belongs to another farmer", ErrForbidden)
	}
	return p, nil
}

// Update applies a partial change to the farmer's product. Only the columns
// the caller set are written, under a row lock, so a checkout committing
// alongside keeps its stock decrement.
func (s *ProductService) Update(ctx context.Context, farmerID, id uint, in ProductUpdate) (models.Product, error) {
	if err := check(in); err != nil {
		return models.Product{}, err
	}
	changes := in.changes()

	var p models.Product
	err := orm.Transaction(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.products.FindForUpdate(ctx, id)
		if err != nil {
			return notFound(err, "product")
		}
		if p.FarmerID != farmerID {
			return fmt.Errorf("%w: product belongs to another farmer", ErrForbidden)
		}
		if len(changes) == 0 {
			return nil
		}
		if err := s.products.UpdateFields(ctx, id, changes); err != nil {
			return err
		}
		p, err = s.products.Find(ctx, id)
		return err
	})
	if err != nil {
		return models.Product{}, err
	}
	s.products.Forget(ctx, p.ID)
	withImageURL(&p)
	return p, nil
}

// changes maps the set fields to their columns.
func (in ProductUpdate) changes() map[string]any {
	m := map[string]any{}
	if in.Name != nil {
		m["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Variety != nil {
		m["variety"] = *in.Variety
	}
	if in.Region != nil {
		m["region"] = *in.Region
	}
	if in.Process != nil {
		m["process"] = *in.Process
	}
	if in.Description != nil {
		m["description"] = *in.Description
	}
	if in.Status != nil {
		m["status"] = *in.Status
	}
	if in.Grade != nil {
		m["grade"] = *in.Grade
	}
	if in.AltitudeM != nil {
		m["altitude_m"] = *in.AltitudeM
	}
	if in.HarvestYear != nil {
		m["harvest_year"] = *in.HarvestYear
	}
	if in.CuppingScore != nil {
		m["cupping_score"] = *in.CuppingScore
	}
	if in.PricePerKg != nil {
		m["price_per_kg"] = models.Round2(*in.PricePerKg)
	}
	if in.QuantityKg != nil {
		m["quantity_kg"] = models.Round2(*in.QuantityKg)
	}
	if in.MinOrderKg != nil {
		m["min_order_kg"] = *in.MinOrderKg
	}
	return m
}

// Delete soft-deletes the farmer's product and drops it from carts and
// favorites.
func (s *ProductService) Delete(ctx context.Context, farmerID, id uint) error {
	if _, err := s.owned(ctx, farmerID, id); err != nil {
		return err
	}
	return s.remove(ctx, id)
}

// Remove is the admin moderation delete.
func (s *ProductService) Remove(ctx context.Context, id uint) error {
	if _, err := s.products.Find(ctx, id); err != nil {
		return notFound(err, "product")
	}
	return s.remove(ctx, id)
}

func (s *ProductService) remove(ctx context.Context, id uint) error {
	err := orm.Transaction(ctx, func(ctx context.Context) error {
		if _, err := s.products.Delete(ctx, id); err != nil {
			return err
		}
		return s.carts.ForgetProduct(ctx, id)
	})
	if err != nil {
		return err
	}
	s.products.Forget(ctx, id)
	logger.WithCtx(ctx).Info("product: deleted", "product_id", id)
	return nil
}

// UploadImage stores a new image for the product and deletes the old one.
func (s *ProductService) UploadImage(ctx context.Context, farmerID, id uint, size int64, r io.Reader) (models.Product, error) {
	p, err := s.owned(ctx, farmerID, id)
	if err != nil {
		return models.Product{}, err
	}

	img, err := storage.DetectImage(size, r)
	if err != nil {
		if errors.Is(err, storage.ErrImageTooLarge) || errors.Is(err, storage.ErrUnsupportedType) || errors.Is(err, storage.ErrEmptyFile) {
			return models.Product{}, fieldError("image", strings.TrimPrefix(err.Error(), "storage: "))
		}
		return models.Product{}, err
	}

	disk := storage.Default()
	path := storage.ProductImagePath(p.ID, img.Ext)
	if err := disk.Put(ctx, path, img.Reader, img.ContentType); err != nil {
		return models.Product{}, err
	}

	old := p.ImagePath
	if _, err := orm.DB(ctx).Model(&models.Product{}).Where("id = ?", p.ID).Update("image_path", path); err != nil {
		_ = disk.Delete(ctx, path)
		return models.Product{}, err
	}
	p.ImagePath = path
	s.products.Forget(ctx, p.ID)

	if old != "" {
		if err := disk.Delete(ctx, old); err != nil {
			logger.WithCtx(ctx).Warn("product: old image not deleted", "path", old, "error", err)
		}
	}
	withImageURL(&p)
	return p, nil
}

var exportHeader = []string{
	"ID", "Name", "Variety", "Region", "Process", "Grade", "Altitude (m)", "Harvest year",
	"Cupping score", "Price per kg", "Stock (kg)", "Min order (kg)", "Status", "Created", "Updated",
}

// Export writes the farmer's products as an xlsx workbook.
func (s *ProductService) Export(ctx context.Context, farmerID uint, w io.Writer) error {
	products, err := s.products.ForFarmer(ctx, farmerID)
	if err != nil {
		return err
	}

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Products")
	if err != nil {
		return fmt.Errorf("export: add sheet: %w", err)
	}
	header := sheet.AddRow()
	for _, h := range exportHeader {
		header.AddCell().SetString(h)
	}
	for _, p := range products {
		row := sheet.AddRow()
		row.AddCell().SetInt(int(p.ID))
		row.AddCell().SetString(p.Name)
		row.AddCell().SetString(p.Variety)
		row.AddCell().SetString(p.Region)
		row.AddCell().SetString(p.Process)
		row.AddCell().SetInt(p.Grade)
		row.AddCell().SetInt(p.AltitudeM)
		row.AddCell().SetInt(p.HarvestYear)
		row.AddCell().SetFloat(p.CuppingScore)
		row.AddCell().SetFloat(p.PricePerKg)
		row.AddCell().SetFloat(p.QuantityKg)
		row.AddCell().SetFloat(p.MinOrderKg)
		row.AddCell().SetString(p.Status)
		row.AddCell().SetString(p.CreatedAt.Format("2006-01-02 15:04:05"))
		row.AddCell().SetString(p.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return file.Write(w)
}

func withImageURL(p *models.Product) {
	if p.ImagePath != "" {
		p.ImageURL = storage.Default().URL(p.ImagePath)
	}
}
