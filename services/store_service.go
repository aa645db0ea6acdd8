package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bankedge/models"
	"bankedge/utils"
)

// TransactionStore владеет записями о транзакциях. Upsert по одному
// reference id сериализуется сам с собой: конкурирующие повторные доставки
// одного события не создают расходящихся записей.
type TransactionStore struct {
	records RecordStore
	locks   *utils.KeyedMutex
}

// NewTransactionStore создает новый экземпляр TransactionStore
func NewTransactionStore(records RecordStore) *TransactionStore {
	return &TransactionStore{
		records: records,
		locks:   utils.NewKeyedMutex(),
	}
}

// Upsert вставляет запись при первом появлении reference id и обновляет
// существующую при повторных подтверждениях. Один reference id никогда
// не порождает двух записей.
func (s *TransactionStore) Upsert(ctx context.Context, record *models.TransactionRecord) error {
	if record == nil || record.ReferenceID == "" {
		return errors.New("запись должна содержать reference id")
	}

	s.locks.Lock(record.ReferenceID)
	defer s.locks.Unlock(record.ReferenceID)

	if err := s.records.Save(ctx, record); err != nil {
		return fmt.Errorf("ошибка при сохранении записи %s: %w", record.ReferenceID, err)
	}
	return nil
}

// Get возвращает запись по reference id
func (s *TransactionStore) Get(ctx context.Context, referenceID string) (*models.TransactionRecord, error) {
	return s.records.Get(ctx, referenceID)
}

// List возвращает записи по фильтру (identity, устройство, интервал времени)
func (s *TransactionStore) List(ctx context.Context, filter RecordFilter) ([]models.TransactionRecord, int64, error) {
	return s.records.List(ctx, filter)
}

// RollingCount возвращает количество транзакций identity в скользящем окне
// [before-window, before). Полуинтервал гарантирует, что событие с
// timestamp == before само в счетчик не попадает.
func (s *TransactionStore) RollingCount(ctx context.Context, customerID string, before time.Time, window time.Duration) (int64, error) {
	if customerID == "" {
		return 0, nil
	}
	from := before.Add(-window)
	count, err := s.records.CountForCustomer(ctx, customerID, from, before)
	if err != nil {
		return 0, fmt.Errorf("ошибка при подсчете транзакций %s: %w", customerID, err)
	}
	return count, nil
}
