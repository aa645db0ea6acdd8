package services

import (
	"context"
	"errors"
	"time"

	"bankedge/models"

	"github.com/shopspring/decimal"
)

// Ошибки слоя хранения
var (
	ErrAccountNotFound = errors.New("учетная запись не найдена")
	ErrRecordNotFound  = errors.New("запись о транзакции не найдена")
	ErrDeviceNotFound  = errors.New("устройство не найдено")
)

// AccountStore предоставляет доступ к учетным записям.
// Баланс изменяется только через LedgerService.
type AccountStore interface {
	GetByIdentity(ctx context.Context, identity string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) error
	UpdateBalance(ctx context.Context, identity string, balance decimal.Decimal) error
	TouchLogin(ctx context.Context, identity string, at time.Time) error
}

// RecordFilter задает условия выборки записей о транзакциях
type RecordFilter struct {
	CustomerID string
	DeviceID   string
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// RecordStore предоставляет доступ к записям о транзакциях.
// Save выполняет вставку или обновление по reference id; сериализацию
// конкурентных вызовов по одному reference id обеспечивает TransactionStore.
type RecordStore interface {
	Get(ctx context.Context, referenceID string) (*models.TransactionRecord, error)
	Save(ctx context.Context, record *models.TransactionRecord) error
	List(ctx context.Context, filter RecordFilter) ([]models.TransactionRecord, int64, error)
	CountForCustomer(ctx context.Context, customerID string, from, before time.Time) (int64, error)
}

// DeviceStore предоставляет доступ к справочнику edge-устройств
type DeviceStore interface {
	Get(ctx context.Context, id string) (*models.EdgeDevice, error)
	List(ctx context.Context) ([]models.EdgeDevice, error)
	Save(ctx context.Context, device *models.EdgeDevice) error
}
