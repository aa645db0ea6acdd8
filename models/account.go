package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Роли пользователей
const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// Account представляет учетную запись с балансом
type Account struct {
	ID        uint            `gorm:"primaryKey;autoIncrement"`
	Identity  string          `gorm:"column:identity;unique;not null;size:150;index"`
	Password  string          `gorm:"column:password;not null;size:100"`
	Role      string          `gorm:"column:role;not null;size:50;default:'admin'"`
	Balance   decimal.Decimal `gorm:"column:balance;type:decimal(20,2);not null;default:0.0"`
	LastLogin *time.Time      `gorm:"column:last_login"`
	CreatedAt time.Time       `gorm:"column:created_at;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time       `gorm:"column:updated_at;default:CURRENT_TIMESTAMP"`
}

func (Account) TableName() string {
	return "accounts"
}

// BeforeCreate хук для валидации перед созданием
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if len(a.Identity) < 3 || len(a.Identity) > 150 {
		return errors.New("identity must be between 3 and 150 characters")
	}
	if a.Role != RoleAdmin && a.Role != RoleSuperAdmin {
		return errors.New("role must be admin or superadmin")
	}
	return nil
}
