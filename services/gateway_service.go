package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Статусы подтверждения платежа на стороне шлюза
const (
	GatewayStatusSucceeded = "succeeded"
	GatewayStatusFailed    = "failed"
)

// ErrGatewayUnavailable возвращается, когда шлюз не смог подтвердить платеж
var ErrGatewayUnavailable = errors.New("платежный шлюз недоступен")

// GatewayConfirmation — подтверждение платежа, полученное от шлюза
type GatewayConfirmation struct {
	ReferenceID      string
	Status           string
	Amount           decimal.Decimal
	PaymentMethod    string
	RecipientAccount string
	Reference        string
}

// PaymentGateway поставляет подтверждения платежей. Ядро не инициирует
// авторизацию — только реагирует на события подтверждения.
type PaymentGateway interface {
	RetrieveConfirmation(ctx context.Context, referenceID string) (*GatewayConfirmation, error)
}

// SimulatedGateway — детерминированная реализация шлюза для демо-контура.
// Обслуживает reference id с префиксом pi_sim_; суффикс _fail моделирует
// отклоненный платеж.
type SimulatedGateway struct{}

// NewSimulatedGateway создает новый экземпляр SimulatedGateway
func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{}
}

// RetrieveConfirmation возвращает подтверждение для симулированного reference id
func (g *SimulatedGateway) RetrieveConfirmation(ctx context.Context, referenceID string) (*GatewayConfirmation, error) {
	if !strings.HasPrefix(referenceID, "pi_sim_") {
		return nil, fmt.Errorf("неизвестный reference id: %s", referenceID)
	}

	status := GatewayStatusSucceeded
	if strings.HasSuffix(referenceID, "_fail") {
		status = GatewayStatusFailed
	}

	return &GatewayConfirmation{
		ReferenceID:   referenceID,
		Status:        status,
		PaymentMethod: "card",
	}, nil
}

// NewSimulatedReference генерирует reference id для симулированного платежа
func NewSimulatedReference() string {
	return "pi_sim_" + uuid.NewString()
}
