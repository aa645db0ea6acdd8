package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"bankedge/models"

	"github.com/shopspring/decimal"
)

// MemoryAccountStore хранит учетные записи в памяти (демо-режим и тесты)
type MemoryAccountStore struct {
	mu       sync.RWMutex
	accounts map[string]*models.Account
	nextID   uint
}

// NewMemoryAccountStore создает новый MemoryAccountStore
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		accounts: make(map[string]*models.Account),
		nextID:   1,
	}
}

func (s *MemoryAccountStore) GetByIdentity(ctx context.Context, identity string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, exists := s.accounts[identity]
	if !exists {
		return nil, ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (s *MemoryAccountStore) Create(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account.Identity]; exists {
		return errors.New("учетная запись с таким identity уже существует")
	}
	account.ID = s.nextID
	s.nextID++
	account.CreatedAt = time.Now()
	account.UpdatedAt = account.CreatedAt
	copied := *account
	s.accounts[account.Identity] = &copied
	return nil
}

func (s *MemoryAccountStore) UpdateBalance(ctx context.Context, identity string, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, exists := s.accounts[identity]
	if !exists {
		return ErrAccountNotFound
	}
	account.Balance = balance
	account.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryAccountStore) TouchLogin(ctx context.Context, identity string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, exists := s.accounts[identity]
	if !exists {
		return ErrAccountNotFound
	}
	account.LastLogin = &at
	return nil
}

// MemoryRecordStore хранит записи о транзакциях в памяти (демо-режим и тесты)
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]*models.TransactionRecord
}

// NewMemoryRecordStore создает новый MemoryRecordStore
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		records: make(map[string]*models.TransactionRecord),
	}
}

func (s *MemoryRecordStore) Get(ctx context.Context, referenceID string) (*models.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.records[referenceID]
	if !exists {
		return nil, ErrRecordNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *MemoryRecordStore) Save(ctx context.Context, record *models.TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, exists := s.records[record.ReferenceID]; exists {
		record.CreatedAt = existing.CreatedAt
	} else {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	copied := *record
	s.records[record.ReferenceID] = &copied
	return nil
}

func (s *MemoryRecordStore) List(ctx context.Context, filter RecordFilter) ([]models.TransactionRecord, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []models.TransactionRecord
	for _, record := range s.records {
		if filter.CustomerID != "" && record.CustomerID != filter.CustomerID {
			continue
		}
		if filter.DeviceID != "" && (record.DeviceID == nil || *record.DeviceID != filter.DeviceID) {
			continue
		}
		if !filter.From.IsZero() && record.Timestamp.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !record.Timestamp.Before(filter.To) {
			continue
		}
		matched = append(matched, *record)
	}

	// Сортируем по убыванию времени, как в выдаче транзакций
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	total := int64(len(matched))
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []models.TransactionRecord{}, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *MemoryRecordStore) CountForCustomer(ctx context.Context, customerID string, from, before time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, record := range s.records {
		if record.CustomerID != customerID {
			continue
		}
		// Полуинтервал [from, before): текущее событие в счетчик не попадает
		if record.Timestamp.Before(from) || !record.Timestamp.Before(before) {
			continue
		}
		count++
	}
	return count, nil
}

// MemoryDeviceStore хранит справочник устройств в памяти (демо-режим и тесты)
type MemoryDeviceStore struct {
	mu      sync.RWMutex
	devices map[string]*models.EdgeDevice
}

// NewMemoryDeviceStore создает новый MemoryDeviceStore
func NewMemoryDeviceStore() *MemoryDeviceStore {
	return &MemoryDeviceStore{
		devices: make(map[string]*models.EdgeDevice),
	}
}

func (s *MemoryDeviceStore) Get(ctx context.Context, id string) (*models.EdgeDevice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	device, exists := s.devices[id]
	if !exists {
		return nil, ErrDeviceNotFound
	}
	copied := *device
	return &copied, nil
}

func (s *MemoryDeviceStore) List(ctx context.Context) ([]models.EdgeDevice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := make([]models.EdgeDevice, 0, len(s.devices))
	for _, device := range s.devices {
		devices = append(devices, *device)
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].ID < devices[j].ID
	})
	return devices, nil
}

func (s *MemoryDeviceStore) Save(ctx context.Context, device *models.EdgeDevice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *device
	s.devices[device.ID] = &copied
	return nil
}
