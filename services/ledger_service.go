package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"bankedge/utils"

	"github.com/shopspring/decimal"
)

// Ошибки леджера
var (
	ErrInsufficientFunds = errors.New("недостаточно средств на счете")
	ErrInvalidAmount     = errors.New("сумма операции должна быть больше нуля")
)

// Состояния резервирования
const (
	reservationHeld = iota
	reservationCommitted
	reservationReleased
)

// Reservation — удержание суммы на балансе, обратимое до фиксации.
// Снимки OldBalance/NewBalance заполняются при Commit.
type Reservation struct {
	Identity   string
	Amount     decimal.Decimal
	OldBalance decimal.Decimal
	NewBalance decimal.Decimal

	state int
}

// Committed сообщает, была ли резервация зафиксирована
func (r *Reservation) Committed() bool {
	return r.state == reservationCommitted
}

// LedgerService выполняет атомарные операции с балансами.
// Единственная точка изменения балансов: проверка достаточности и удержание
// выполняются в одной критической секции на identity, поэтому гонка
// "проверил-потом-списал" исключена. Операции над разными identity идут
// полностью параллельно.
type LedgerService struct {
	accounts AccountStore
	locks    *utils.KeyedMutex

	mu    sync.Mutex
	holds map[string]decimal.Decimal // сумма активных удержаний по identity
}

// NewLedgerService создает новый экземпляр LedgerService
func NewLedgerService(accounts AccountStore) *LedgerService {
	return &LedgerService{
		accounts: accounts,
		locks:    utils.NewKeyedMutex(),
		holds:    make(map[string]decimal.Decimal),
	}
}

// Reserve удерживает amount на балансе identity.
// Доступный остаток = сохраненный баланс минус активные удержания.
func (s *LedgerService) Reserve(ctx context.Context, identity string, amount decimal.Decimal) (*Reservation, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	s.locks.Lock(identity)
	defer s.locks.Unlock(identity)

	account, err := s.accounts.GetByIdentity(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("ошибка при поиске учетной записи %s: %w", identity, err)
	}

	held := s.heldFor(identity)
	available := account.Balance.Sub(held)
	if available.LessThan(amount) {
		return nil, ErrInsufficientFunds
	}

	s.addHold(identity, amount)

	return &Reservation{
		Identity:   identity,
		Amount:     amount,
		OldBalance: account.Balance,
		NewBalance: account.Balance.Sub(amount),
		state:      reservationHeld,
	}, nil
}

// Commit списывает зарезервированную сумму с баланса. Повторный вызов — no-op.
func (s *LedgerService) Commit(ctx context.Context, res *Reservation) error {
	if res == nil {
		return errors.New("резервация не задана")
	}

	s.locks.Lock(res.Identity)
	defer s.locks.Unlock(res.Identity)

	switch res.state {
	case reservationCommitted:
		return nil
	case reservationReleased:
		return errors.New("резервация уже освобождена")
	}

	account, err := s.accounts.GetByIdentity(ctx, res.Identity)
	if err != nil {
		return fmt.Errorf("ошибка при поиске учетной записи %s: %w", res.Identity, err)
	}

	oldBalance := account.Balance
	newBalance := oldBalance.Sub(res.Amount)
	if err := s.accounts.UpdateBalance(ctx, res.Identity, newBalance); err != nil {
		return fmt.Errorf("ошибка при списании средств: %w", err)
	}

	s.addHold(res.Identity, res.Amount.Neg())
	res.OldBalance = oldBalance
	res.NewBalance = newBalance
	res.state = reservationCommitted
	return nil
}

// Release освобождает резервацию. До фиксации баланс не изменялся, поэтому
// достаточно снять удержание; после фиксации сумма возвращается на баланс
// (компенсация при невозможности записать итог события). Идемпотентен.
func (s *LedgerService) Release(ctx context.Context, res *Reservation) error {
	if res == nil {
		return nil
	}

	s.locks.Lock(res.Identity)
	defer s.locks.Unlock(res.Identity)

	switch res.state {
	case reservationReleased:
		return nil
	case reservationHeld:
		s.addHold(res.Identity, res.Amount.Neg())
		res.state = reservationReleased
		return nil
	}

	// Компенсация уже зафиксированного списания
	account, err := s.accounts.GetByIdentity(ctx, res.Identity)
	if err != nil {
		return fmt.Errorf("ошибка при поиске учетной записи %s: %w", res.Identity, err)
	}
	if err := s.accounts.UpdateBalance(ctx, res.Identity, account.Balance.Add(res.Amount)); err != nil {
		return fmt.Errorf("ошибка при возврате средств: %w", err)
	}
	res.state = reservationReleased
	return nil
}

// Balance возвращает сохраненный баланс identity
func (s *LedgerService) Balance(ctx context.Context, identity string) (decimal.Decimal, error) {
	account, err := s.accounts.GetByIdentity(ctx, identity)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

func (s *LedgerService) heldFor(identity string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holds[identity]
}

func (s *LedgerService) addHold(identity string, delta decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := s.holds[identity].Add(delta)
	if total.IsZero() {
		delete(s.holds, identity)
	} else {
		s.holds[identity] = total
	}
}
