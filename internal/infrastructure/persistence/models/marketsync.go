package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StoreCredentialModel is the persistence model for store credentials.
// Rows are deactivated, never deleted.
type StoreCredentialModel struct {
	BaseModel
	Marketplace   integration.Marketplace `gorm:"type:varchar(20);not null;index:idx_credential_store,priority:1"`
	PartnerID     string                  `gorm:"type:varchar(64);not null"`
	PartnerSecret string                  `gorm:"type:varchar(255);not null"`
	StoreID       string                  `gorm:"type:varchar(64);not null;index:idx_credential_store,priority:2"`
	StoreName     string                  `gorm:"type:varchar(255)"`
	AccessToken   string                  `gorm:"type:text"`
	RefreshToken  string                  `gorm:"type:text"`
	ExpiresAt     time.Time
	IsActive      bool `gorm:"not null;default:true;index"`
}

// TableName returns the table name for GORM
func (StoreCredentialModel) TableName() string {
	return integration.TableStoreCredentials
}

// OrderModel is the persistence model for normalized marketplace orders
type OrderModel struct {
	ID             uuid.UUID               `gorm:"type:uuid;primary_key"`
	Marketplace    integration.Marketplace `gorm:"type:varchar(20);not null;uniqueIndex:idx_order_key,priority:1"`
	OrderID        string                  `gorm:"type:varchar(64);not null;uniqueIndex:idx_order_key,priority:2"`
	StoreID        string                  `gorm:"type:varchar(64);not null;uniqueIndex:idx_order_key,priority:3;index"`
	Status         integration.OrderStatus `gorm:"type:varchar(20);not null;index"`
	PlatformStatus string                  `gorm:"type:varchar(40);not null"`
	OrderCreatedAt time.Time               `gorm:"index"`
	OrderUpdatedAt time.Time
	TotalAmount    decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Currency       string          `gorm:"type:varchar(8)"`
	BuyerRef       string          `gorm:"type:varchar(255)"`
	HasRefund      bool            `gorm:"not null;default:false"`
	RawPayload     string          `gorm:"type:text"`
	SyncedAt       time.Time
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return integration.TableOrders
}

// FinancialModel is the persistence model for categorized fee records,
// one per order
type FinancialModel struct {
	ID          uuid.UUID               `gorm:"type:uuid;primary_key"`
	Marketplace integration.Marketplace `gorm:"type:varchar(20);not null;uniqueIndex:idx_financial_key,priority:1"`
	OrderID     string                  `gorm:"type:varchar(64);not null;uniqueIndex:idx_financial_key,priority:2"`
	StoreID     string                  `gorm:"type:varchar(64);not null;uniqueIndex:idx_financial_key,priority:3;index"`

	SaleFee       decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	ShippingFee   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	ManagementFee decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	OtherFee      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Commission    decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	TotalFees     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Tax           decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Discount      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	FinancingFee  decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`

	GrossAmount      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	NetAmount        decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	RawChargeTotal   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	RawDiscountTotal decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Currency         string          `gorm:"type:varchar(8)"`

	PaymentStatus      string `gorm:"type:varchar(40)"`
	MoneyReleaseStatus string `gorm:"type:varchar(40)"`
	MoneyReleaseDate   *time.Time

	SaleDate      *time.Time
	SalesChannel  string `gorm:"type:varchar(100)"`
	PayerNickname string `gorm:"type:varchar(255)"`
	StateName     string `gorm:"type:varchar(100)"`
	OperationID   string `gorm:"type:varchar(64)"`
	ItemID        string `gorm:"type:varchar(64)"`
	ItemTitle     string `gorm:"type:varchar(255)"`
	ItemQuantity  int    `gorm:"not null;default:0"`
	ShippingID    string `gorm:"type:varchar(64)"`
	DocumentID    string `gorm:"type:varchar(64)"`

	HasFinancialData bool   `gorm:"not null;default:false"`
	PayloadDigest    string `gorm:"type:varchar(64)"`
	LastUpdated      time.Time
	RawPayload       string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (FinancialModel) TableName() string {
	return integration.TableFinancials
}

// AllModels returns every model managed by AutoMigrate
func AllModels() []any {
	return []any{
		&StoreCredentialModel{},
		&OrderModel{},
		&FinancialModel{},
	}
}

// ForTable returns an empty model for a table name
func ForTable(table string) (any, bool) {
	switch table {
	case integration.TableStoreCredentials:
		return &StoreCredentialModel{}, true
	case integration.TableOrders:
		return &OrderModel{}, true
	case integration.TableFinancials:
		return &FinancialModel{}, true
	default:
		return nil, false
	}
}

// AutoMigrate creates or updates the sync tables and their indexes
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
