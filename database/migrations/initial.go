package migrations

import (
	"gorm.io/gorm"

	"github.com/darcho/darcho/app/models"
	"github.com/darcho/darcho/pkg/migration"
	"github.com/darcho/darcho/pkg/queue"
)

func init() {
	migration.Register("20260301000000_create_users_tables", &createUsersTables{})
	migration.Register("20260301000001_create_products_table", &createProductsTable{})
	migration.Register("20260301000002_create_cart_and_favorites_tables", &createCartTables{})
	migration.Register("20260301000003_create_orders_tables", &createOrdersTables{})
	migration.Register("20260301000004_create_messages_table", &createMessagesTable{})
	migration.Register("20260301000005_create_notifications_table", &createNotificationsTable{})
	migration.Register("20260301000006_create_failed_jobs_table", &createFailedJobsTable{})
}

// autoMigrate creates tables for models and drops them in reverse order.
type autoMigrate struct{ models []any }

func (m autoMigrate) Up(db *gorm.DB) error { return db.AutoMigrate(m.models...) }

func (m autoMigrate) Down(db *gorm.DB) error {
	for i := len(m.models) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(m.models[i]); err != nil {
			return err
		}
	}
	return nil
}

type createUsersTables struct{}

func (createUsersTables) Up(db *gorm.DB) error {
	return autoMigrate{[]any{&models.User{}, &models.Farmer{}, &models.Buyer{}}}.Up(db)
}

func (createUsersTables) Down(db *gorm.DB) error {
	return autoMigrate{[]any{&models.User{}, &models.Farmer{}, &models.Buyer{}}}.Down(db)
}

type createProductsTable struct{}

func (createProductsTable) Up(db *gorm.DB) error { return db.AutoMigrate(&models.Product{}) }

func (createProductsTable) Down(db *gorm.DB) error {
	return db.Migrator().DropTable(&models.Product{})
}

type createCartTables struct{}

func (createCartTables) Up(db *gorm.DB) error {
	return db.AutoMigrate(&models.CartItem{}, &models.Favorite{})
}

func (createCartTables) Down(db *gorm.DB) error {
	return db.Migrator().DropTable(&models.Favorite{}, &models.CartItem{})
}

type createOrdersTables struct{}

func (createOrdersTables) Up(db *gorm.DB) error {
	return db.AutoMigrate(&models.Order{}, &models.OrderItem{})
}

func (createOrdersTables) Down(db *gorm.DB) error {
	return db.Migrator().DropTable(&models.OrderItem{}, &models.Order{})
}

type createMessagesTable struct{}

func (createMessagesTable) Up(db *gorm.DB) error { return db.AutoMigrate(&models.Message{}) }

func (createMessagesTable) Down(db *gorm.DB) error {
	return db.Migrator().DropTable(&models.Message{})
}

type createNotificationsTable struct{}

func (createNotificationsTable) Up(db *gorm.DB) error {
	return db.AutoMigrate(&models.Notification{})
}

func (createNotificationsTable) Down(db *gorm.DB) error {
	return db.Migrator().DropTable(&models.Notification{})
}

type createFailedJobsTable struct{}

func (createFailedJobsTable) Up(db *gorm.DB) error {
	return db.AutoMigrate(&queue.FailedJobRecord{})
}

func (createFailedJobsTable) Down(db *gorm.DB) error {
	return db.Migrator().DropTable(&queue.FailedJobRecord{})
}
