package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"bankedge/models"
	"bankedge/utils"

	"github.com/shopspring/decimal"
)

// AccountService предоставляет методы для работы с учетными записями.
// Баланс здесь только задается при создании; дальнейшие изменения — через LedgerService.
type AccountService struct {
	accounts AccountStore
}

// CreateAccountRequest представляет данные для создания учетной записи
type CreateAccountRequest struct {
	Identity       string          `json:"identity" validate:"required,min=3,max=150"`
	Password       string          `json:"password" validate:"required,min=8"`
	Role           string          `json:"role" validate:"required,oneof=admin superadmin"`
	InitialBalance decimal.Decimal `json:"initialBalance"`
}

// AccountDTO представляет учетную запись в ответах API
type AccountDTO struct {
	ID       uint   `json:"id"`
	Identity string `json:"identity"`
	Role     string `json:"role"`
	Balance  string `json:"balance"`
}

// NewAccountService создает новый экземпляр AccountService
func NewAccountService(accounts AccountStore) *AccountService {
	return &AccountService{accounts: accounts}
}

// CreateAccount создает новую учетную запись с начальным балансом
func (s *AccountService) CreateAccount(ctx context.Context, req CreateAccountRequest) (*models.Account, error) {
	identity := strings.ToLower(strings.TrimSpace(req.Identity))

	// Проверяем, существует ли учетная запись с таким identity
	if _, err := s.accounts.GetByIdentity(ctx, identity); err == nil {
		return nil, errors.New("учетная запись с таким identity уже существует")
	} else if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	if req.InitialBalance.IsNegative() {
		return nil, errors.New("начальный баланс не может быть отрицательным")
	}

	// Хешируем пароль
	hashedPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	account := &models.Account{
		Identity: identity,
		Password: hashedPassword,
		Role:     req.Role,
		Balance:  req.InitialBalance,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}

	return account, nil
}

// FindByIdentity ищет учетную запись по identity (игнорируя регистр и пробелы)
func (s *AccountService) FindByIdentity(ctx context.Context, identity string) (*models.Account, error) {
	return s.accounts.GetByIdentity(ctx, strings.ToLower(strings.TrimSpace(identity)))
}

// TouchLogin обновляет отметку последнего входа
func (s *AccountService) TouchLogin(ctx context.Context, identity string) error {
	return s.accounts.TouchLogin(ctx, strings.ToLower(strings.TrimSpace(identity)), time.Now())
}

// ToDTO конвертирует модель в DTO
func (s *AccountService) ToDTO(account *models.Account) AccountDTO {
	return AccountDTO{
		ID:       account.ID,
		Identity: account.Identity,
		Role:     account.Role,
		Balance:  account.Balance.StringFixed(2),
	}
}
