package database

import (
	"context"
	"errors"
	"time"

	"bankedge/models"
	"bankedge/services"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormAccountStore реализует хранилище учетных записей поверх gorm
type GormAccountStore struct {
	db *gorm.DB
}

// NewGormAccountStore создает новый экземпляр GormAccountStore
func NewGormAccountStore(db *gorm.DB) *GormAccountStore {
	return &GormAccountStore{db: db}
}

// GetByIdentity ищет учетную запись по identity
func (s *GormAccountStore) GetByIdentity(ctx context.Context, identity string) (*models.Account, error) {
	var account models.Account
	err := s.db.WithContext(ctx).Where("identity = ?", identity).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// Create сохраняет новую учетную запись
func (s *GormAccountStore) Create(ctx context.Context, account *models.Account) error {
	return s.db.WithContext(ctx).Create(account).Error
}

// UpdateBalance обновляет баланс учетной записи
func (s *GormAccountStore) UpdateBalance(ctx context.Context, identity string, balance decimal.Decimal) error {
	result := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("identity = ?", identity).
		Update("balance", balance)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return services.ErrAccountNotFound
	}
	return nil
}

// TouchLogin обновляет отметку последнего входа
func (s *GormAccountStore) TouchLogin(ctx context.Context, identity string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Account{}).
		Where("identity = ?", identity).
		Update("last_login", at).Error
}

// GormRecordStore реализует хранилище записей транзакций поверх gorm
type GormRecordStore struct {
	db *gorm.DB
}

// NewGormRecordStore создает новый экземпляр GormRecordStore
func NewGormRecordStore(db *gorm.DB) *GormRecordStore {
	return &GormRecordStore{db: db}
}

// Get возвращает запись по reference id
func (s *GormRecordStore) Get(ctx context.Context, referenceID string) (*models.TransactionRecord, error) {
	var record models.TransactionRecord
	err := s.db.WithContext(ctx).Where("reference_id = ?", referenceID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

// Save сохраняет запись; повторная доставка того же reference id
// перезаписывает существующую строку целиком
func (s *GormRecordStore) Save(ctx context.Context, record *models.TransactionRecord) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "reference_id"}},
		UpdateAll: true,
	}).Create(record).Error
}

// List возвращает записи по фильтру, новые первыми, и общее число
// записей под фильтром без учета пагинации
func (s *GormRecordStore) List(ctx context.Context, filter services.RecordFilter) ([]models.TransactionRecord, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.TransactionRecord{})

	if filter.CustomerID != "" {
		query = query.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.DeviceID != "" {
		query = query.Where("device_id = ?", filter.DeviceID)
	}
	if !filter.From.IsZero() {
		query = query.Where("timestamp >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("timestamp < ?", filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var records []models.TransactionRecord
	if err := query.Order("timestamp DESC").Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// CountForCustomer считает записи клиента в полуоткрытом окне [from, before)
func (s *GormRecordStore) CountForCustomer(ctx context.Context, customerID string, from, before time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.TransactionRecord{}).
		Where("customer_id = ?", customerID).
		Where("timestamp >= ? AND timestamp < ?", from, before).
		Count(&count).Error
	return count, err
}

// GormDeviceStore реализует хранилище edge-устройств поверх gorm
type GormDeviceStore struct {
	db *gorm.DB
}

// NewGormDeviceStore создает новый экземпляр GormDeviceStore
func NewGormDeviceStore(db *gorm.DB) *GormDeviceStore {
	return &GormDeviceStore{db: db}
}

// Get возвращает устройство по id
func (s *GormDeviceStore) Get(ctx context.Context, deviceID string) (*models.EdgeDevice, error) {
	var device models.EdgeDevice
	err := s.db.WithContext(ctx).Where("id = ?", deviceID).First(&device).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrDeviceNotFound
		}
		return nil, err
	}
	return &device, nil
}

// List возвращает все устройства
func (s *GormDeviceStore) List(ctx context.Context) ([]models.EdgeDevice, error) {
	var devices []models.EdgeDevice
	if err := s.db.WithContext(ctx).Order("id").Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}

// Save создает или обновляет устройство
func (s *GormDeviceStore) Save(ctx context.Context, device *models.EdgeDevice) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(device).Error
}
