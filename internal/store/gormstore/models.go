package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account represents the credit_accounts table.
type Account struct {
	AccountID             string     `gorm:"type:uuid;primaryKey"`
	UserID                string     `gorm:"not null;index:idx_credit_accounts_user,unique"`
	PurchasedBalance      int64      `gorm:"not null;default:0;check:chk_credit_accounts_purchased,purchased_balance >= 0"`
	PurchasedConsumed     int64      `gorm:"not null;default:0;check:chk_credit_accounts_purchased_consumed,purchased_consumed >= 0"`
	LifetimePurchased     int64      `gorm:"not null;default:0;check:chk_credit_accounts_lifetime_purchased,lifetime_purchased >= 0"`
	SubscriptionAllowance int64      `gorm:"not null;default:0;check:chk_credit_accounts_allowance,subscription_allowance >= 0"`
	SubscriptionConsumed  int64      `gorm:"not null;default:0;check:chk_credit_accounts_consumed,subscription_consumed >= 0 AND subscription_consumed <= subscription_allowance"`
	CycleResetAt          *time.Time `gorm:""`
	Version               int64      `gorm:"not null;default:0"`
	CreatedAt             time.Time  `gorm:"not null"`
	UpdatedAt             time.Time  `gorm:"not null"`
}

func (Account) TableName() string { return "credit_accounts" }

func (account *Account) BeforeCreate(tx *gorm.DB) error {
	if account.AccountID == "" {
		account.AccountID = uuid.NewString()
	}
	return nil
}

// LedgerEntry mirrors the credit_ledger_entries table.
type LedgerEntry struct {
	EntryID               string         `gorm:"type:uuid;primaryKey"`
	AccountID             string         `gorm:"type:uuid;not null;index:idx_credit_ledger_account_created,priority:1"`
	Kind                  string         `gorm:"not null"`
	Amount                int64          `gorm:"not null"`
	PurchasedBalanceAfter int64          `gorm:"not null"`
	Description           string         `gorm:""`
	ReferenceKind         string         `gorm:""`
	ReferenceID           string         `gorm:"index:idx_credit_ledger_reference"`
	Metadata              datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt             time.Time      `gorm:"not null;index:idx_credit_ledger_account_created,priority:2"`
}

func (LedgerEntry) TableName() string { return "credit_ledger_entries" }

func (entry *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// UsageRecord mirrors the credit_usage_records table.
type UsageRecord struct {
	RecordID         string         `gorm:"type:uuid;primaryKey"`
	AccountID        string         `gorm:"type:uuid;not null;index:idx_credit_usage_account_event,unique,priority:1"`
	EventID          string         `gorm:"not null;index:idx_credit_usage_account_event,unique,priority:2"`
	CreditsConsumed  int64          `gorm:"not null"`
	FromSubscription int64          `gorm:"not null"`
	FromPurchased    int64          `gorm:"not null"`
	CostBreakdown    datatypes.JSON `gorm:"type:jsonb;not null"`
	Processing       datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt        time.Time      `gorm:"not null;index:idx_credit_usage_account_created"`
}

func (UsageRecord) TableName() string { return "credit_usage_records" }

func (record *UsageRecord) BeforeCreate(tx *gorm.DB) error {
	if record.RecordID == "" {
		record.RecordID = uuid.NewString()
	}
	return nil
}
