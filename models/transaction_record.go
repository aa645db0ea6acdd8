package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Уровни обработки транзакции
const (
	TierEdge    = "edge"
	TierCloud   = "cloud"
	TierFlagged = "flagged"
	TierNone    = "none"
)

// Статусы транзакции
const (
	StatusCommitted = "committed"
	StatusRejected  = "rejected"
)

// TransactionRecord представляет запись о подтвержденном платеже.
// Первичный ключ — внешний reference id платежного шлюза: повторные
// доставки одного подтверждения обновляют существующую запись.
type TransactionRecord struct {
	ReferenceID      string          `gorm:"primaryKey;column:reference_id;size:100"`
	Amount           decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null"`
	Type             string          `gorm:"column:type;not null;size:20"` // Transfer, Payment, Withdrawal, Deposit
	Status           string          `gorm:"column:status;not null;size:20"`
	Tier             string          `gorm:"column:tier;not null;size:20;default:'none'"`
	Confidence       float64         `gorm:"column:confidence;not null;default:0"`
	LatencyMs        float64         `gorm:"column:latency_ms;not null;default:0"`
	OldBalance       decimal.Decimal `gorm:"column:old_balance;type:decimal(20,2);not null"`
	NewBalance       decimal.Decimal `gorm:"column:new_balance;type:decimal(20,2);not null"`
	CustomerID       string          `gorm:"column:customer_id;size:150;index"`
	DeviceID         *string         `gorm:"column:device_id;size:50;index"`
	PaymentMethod    string          `gorm:"column:payment_method;size:50"`
	RecipientAccount string          `gorm:"column:recipient_account;size:100"`
	Reference        string          `gorm:"column:reference;size:100"`
	IsFraud          bool            `gorm:"column:is_fraud;not null;default:false"`
	Degraded         bool            `gorm:"column:degraded;not null;default:false"`
	Timestamp        time.Time       `gorm:"column:timestamp;not null;index"`
	CreatedAt        time.Time       `gorm:"column:created_at;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;default:CURRENT_TIMESTAMP"`
}

func (TransactionRecord) TableName() string {
	return "transaction_records"
}
