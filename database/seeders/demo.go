package seeders

import (
	"context"

	"github.com/darcho/darcho/app/models"
	"github.com/darcho/darcho/app/repositories"
	"github.com/darcho/darcho/app/services"
	"github.com/darcho/darcho/config"
	"github.com/darcho/darcho/pkg/logger"
	"github.com/darcho/darcho/pkg/orm"
)

func init() {
	Register("admin", seedAdmin)
	Register("demo-accounts", seedAccounts)
	Register("demo-products", seedProducts)
}

const (
	demoFarmerEmail = "farmer@darcho.test"
	demoBuyerEmail  = "buyer@darcho.test"
	demoPassword    = "password123"
)

// exists reports whether email already has an account, so seeding twice is
// harmless.
func exists(ctx context.Context, email string) (models.User, bool, error) {
	u, err := repositories.NewUserRepository().FindByEmail(ctx, email)
	if err == nil {
		return u, true, nil
	}
	if orm.IsNotFound(err) {
		return models.User{}, false, nil
	}
	return models.User{}, false, err
}

func seedAdmin(ctx context.Context) error {
	email := config.Get("ADMIN_EMAIL", "admin@darcho.test")
	if _, ok, err := exists(ctx, email); err != nil || ok {
		return err
	}
	_, err := services.NewAdminService().CreateAdmin(ctx, services.AdminInput{
		Name:     "Darcho Admin",
		Email:    email,
		Password: config.Get("ADMIN_PASSWORD", demoPassword),
	})
	return err
}

func seedAccounts(ctx context.Context) error {
	if config.IsProduction() {
		logger.Warn("seeders: demo accounts skipped in production")
		return nil
	}
	authSvc := services.NewAuthService()

	if _, ok, err := exists(ctx, demoFarmerEmail); err != nil {
		return err
	} else if !ok {
		farmer, err := authSvc.Register(ctx, services.RegisterInput{
			Name:     "Abebe Kebede",
			Email:    demoFarmerEmail,
			Phone:    "+251911000001",
			Password: demoPassword,
			Role:     models.RoleFarmer,
			FarmProfile: services.FarmProfile{
				FarmName:       "Kochere Hills",
				Region:         "Yirgacheffe",
				Zone:           "Gedeo",
				AltitudeM:      2000,
				FarmSizeHa:     4.5,
				Certifications: "Organic",
			},
		})
		if err != nil {
			return err
		}
		if _, err := services.NewAdminService().ApproveFarmer(ctx, farmer.ID); err != nil {
			return err
		}
	}

	if _, ok, err := exists(ctx, demoBuyerEmail); err != nil || ok {
		return err
	}
	_, err := authSvc.Register(ctx, services.RegisterInput{
		Name:     "Sara Tesfaye",
		Email:    demoBuyerEmail,
		Password: demoPassword,
		Role:     models.RoleBuyer,
		BuyerProfile: services.BuyerProfile{
			CompanyName: "Addis Roasters",
			BuyerType:   models.BuyerRoaster,
			Country:     "Ethiopia",
			Address:     "Bole, Addis Ababa",
		},
	})
	return err
}

var demoLots = []services.ProductInput{
	{Name: "Kochere Grade 1 Washed", Variety: "Heirloom", Region: "Yirgacheffe", Process: models.ProcessWashed, Grade: 1, AltitudeM: 2000, HarvestYear: 2025, CuppingScore: 88.5, PricePerKg: 9.80, QuantityKg: 1200, MinOrderKg: 60},
	{Name: "Guji Natural", Variety: "Kurume", Region: "Guji", Process: models.ProcessNatural, Grade: 1, AltitudeM: 2100, HarvestYear: 2025, CuppingScore: 89, PricePerKg: 10.50, QuantityKg: 800, MinOrderKg: 60},
	{Name: "Sidamo Honey", Variety: "Heirloom", Region: "Sidamo", Process: models.ProcessHoney, Grade: 2, AltitudeM: 1850, HarvestYear: 2025, CuppingScore: 86, PricePerKg: 8.20, QuantityKg: 500, MinOrderKg: 30},
}

func seedProducts(ctx context.Context) error {
	if config.IsProduction() {
		return nil
	}
	farmer, ok, err := exists(ctx, demoFarmerEmail)
	if err != nil || !ok {
		return err
	}
	svc := services.NewProductService()
	_, page, err := svc.ListForFarmer(ctx, farmer.ID, repositories.ProductFilter{}, 1, 1)
	if err != nil {
		return err
	}
	if page.Total > 0 {
		return nil
	}
	for _, lot := range demoLots {
		if _, err := svc.Create(ctx, farmer.ID, lot); err != nil {
			return err
		}
	}
	return nil
}
