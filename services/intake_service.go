package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bankedge/models"
	"bankedge/utils"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Стадии обработки события подтверждения
const (
	StageReceived         = "received"
	StageLocationResolved = "location_resolved"
	StageBalanceReserved  = "balance_reserved"
	StageTierDecided      = "tier_decided"
	StageCommitted        = "committed"
	StageRecorded         = "recorded"
)

// IntakeError — фатальная ошибка обработки события. Содержит reference id
// и достигнутую стадию, чтобы вызывающий мог безопасно повторить событие целиком.
type IntakeError struct {
	ReferenceID string
	Stage       string
	Err         error
}

func (e *IntakeError) Error() string {
	return fmt.Sprintf("обработка события %s прервана на стадии %s: %v", e.ReferenceID, e.Stage, e.Err)
}

func (e *IntakeError) Unwrap() error {
	return e.Err
}

// ConfirmationEvent — входящее событие подтверждения платежа
type ConfirmationEvent struct {
	ReferenceID      string          `json:"referenceId" validate:"required,min=3,max=100"`
	Identity         string          `json:"identity" validate:"required,min=3,max=150"`
	Amount           decimal.Decimal `json:"amount"`
	Type             string          `json:"type" validate:"required,oneof=Transfer Payment Withdrawal Deposit"`
	RecipientAccount string          `json:"recipientAccount" validate:"omitempty,max=100"`
	Reference        string          `json:"reference" validate:"omitempty,max=100"`
	PaymentMethod    string          `json:"paymentMethod" validate:"omitempty,max=50"`
	// DeclaredLocation принимается от шлюза, но для авторизационно значимых
	// решений не используется: локация выводится заново из identity.
	DeclaredLocation string     `json:"declaredLocation" validate:"omitempty,max=50"`
	LatencyMs        *float64   `json:"latencyMs" validate:"omitempty"`
	Timestamp        time.Time  `json:"timestamp"`
}

// ConfirmationResult — итог обработки одного события
type ConfirmationResult struct {
	ReferenceID string          `json:"referenceId"`
	Status      string          `json:"status"`
	Tier        string          `json:"tier"`
	NewBalance  decimal.Decimal `json:"newBalance"`
	Confidence  float64         `json:"confidence"`
	Degraded    bool            `json:"degraded"`
	Duplicate   bool            `json:"duplicate"`
	DeviceID    *string         `json:"deviceId,omitempty"`
}

// IntakeNotifier рассылает уведомления об исходах событий.
// Реализуется EmailService.
type IntakeNotifier interface {
	SendFraudAlert(referenceID, customerID, amount string, confidence float64) error
	SendRejectionNotification(to, referenceID, reason string) error
}

// IntakeService — координатор приема платежных событий. Для каждого события
// выполняет машину состояний Received -> LocationResolved -> BalanceReserved ->
// TierDecided -> Committed|Rejected -> Recorded.
type IntakeService struct {
	identity *IdentityService
	ledger   *LedgerService
	engine   *PolicyEngine
	store    *TransactionStore
	email    IntakeNotifier
	validate *validator.Validate

	locks          *utils.KeyedMutex
	defaultLatency float64
	rollingWindow  time.Duration
}

// NewIntakeService создает новый экземпляр IntakeService.
// email может быть nil — тогда уведомления о фроде не отправляются.
func NewIntakeService(identity *IdentityService, ledger *LedgerService, engine *PolicyEngine,
	store *TransactionStore, email IntakeNotifier, defaultLatency float64, rollingWindow time.Duration) *IntakeService {
	return &IntakeService{
		identity:       identity,
		ledger:         ledger,
		engine:         engine,
		store:          store,
		email:          email,
		validate:       validator.New(),
		locks:          utils.NewKeyedMutex(),
		defaultLatency: defaultLatency,
		rollingWindow:  rollingWindow,
	}
}

// validateEvent валидирует входящее событие
func (s *IntakeService) validateEvent(event *ConfirmationEvent) error {
	if err := s.validate.Struct(event); err != nil {
		validationErrors := err.(validator.ValidationErrors)
		var errorMessages []string
		for _, e := range validationErrors {
			switch e.Tag() {
			case "required":
				errorMessages = append(errorMessages, "поле "+e.Field()+" обязательно")
			case "min":
				errorMessages = append(errorMessages, "поле "+e.Field()+" слишком короткое")
			case "max":
				errorMessages = append(errorMessages, "поле "+e.Field()+" слишком длинное")
			case "oneof":
				errorMessages = append(errorMessages, "поле "+e.Field()+" должно быть одним из: "+e.Param())
			}
		}
		return errors.New(strings.Join(errorMessages, "; "))
	}
	if !event.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if event.LatencyMs != nil && *event.LatencyMs < 0 {
		return errors.New("наблюдение задержки не может быть отрицательным")
	}
	return nil
}

// ProcessConfirmation обрабатывает одно событие подтверждения платежа.
// Повторная доставка уже записанного reference id возвращает сохраненный
// итог без повторного списания. Отмена контекста учитывается только до
// взятия резервации; после нее событие доводится до Recorded.
func (s *IntakeService) ProcessConfirmation(ctx context.Context, event ConfirmationEvent) (*ConfirmationResult, error) {
	start := time.Now()

	if err := s.validateEvent(&event); err != nil {
		return nil, &IntakeError{ReferenceID: event.ReferenceID, Stage: StageReceived, Err: err}
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Полная сериализация по reference id: конкурирующие доставки одного
	// события выполняются по очереди, вторая видит итог первой.
	s.locks.Lock(event.ReferenceID)
	defer s.locks.Unlock(event.ReferenceID)

	existing, err := s.store.Get(ctx, event.ReferenceID)
	if err == nil {
		result := resultFromRecord(existing)
		result.Duplicate = true
		utils.GetMetrics().RecordIntake(existing.Tier, existing.Status == models.StatusCommitted, true, existing.Degraded, time.Since(start))
		utils.LogInfo("Повторная доставка события %s, возвращен сохраненный итог", event.ReferenceID)
		return result, nil
	}
	if !errors.Is(err, ErrRecordNotFound) {
		return nil, &IntakeError{ReferenceID: event.ReferenceID, Stage: StageReceived, Err: err}
	}

	if err := ctx.Err(); err != nil {
		// Резервация еще не взята, событие можно безопасно бросить
		return nil, &IntakeError{ReferenceID: event.ReferenceID, Stage: StageReceived, Err: err}
	}

	// Received -> LocationResolved: отсутствие локации не фатально
	var deviceID *string
	if id, ok := s.identity.Resolve(event.Identity); ok {
		deviceID = &id
	} else {
		utils.LogDebug("Identity %s не привязан к локации", event.Identity)
	}

	// LocationResolved -> BalanceReserved
	reservation, err := s.ledger.Reserve(ctx, event.Identity, event.Amount)
	if errors.Is(err, ErrInsufficientFunds) {
		return s.recordRejection(ctx, event, deviceID, start)
	}
	if err != nil {
		return nil, &IntakeError{ReferenceID: event.ReferenceID, Stage: StageBalanceReserved, Err: err}
	}

	// Резервация взята: доводим событие до Recorded даже при отмене вызывающего
	ctx = context.WithoutCancel(ctx)

	// BalanceReserved -> TierDecided
	latency := s.defaultLatency
	if event.LatencyMs != nil {
		latency = *event.LatencyMs
	}

	count, err := s.store.RollingCount(ctx, event.Identity, event.Timestamp, s.rollingWindow)
	if err != nil {
		utils.LogError("Скользящий счетчик для %s недоступен: %v", event.Identity, err)
		count = 0
	}

	decision := s.engine.Decide(RoutingFeatures{
		Amount:      event.Amount,
		Type:        event.Type,
		LatencyMs:   latency,
		TxnCount30d: count,
	})

	record := &models.TransactionRecord{
		ReferenceID:      event.ReferenceID,
		Amount:           event.Amount,
		Type:             event.Type,
		Tier:             decision.Tier,
		Confidence:       decision.Confidence,
		LatencyMs:        latency,
		CustomerID:       event.Identity,
		DeviceID:         deviceID,
		PaymentMethod:    event.PaymentMethod,
		RecipientAccount: event.RecipientAccount,
		Reference:        event.Reference,
		Degraded:         decision.Degraded,
		Timestamp:        event.Timestamp,
	}

	// TierDecided -> Committed|Rejected
	if decision.Tier == models.TierFlagged {
		if err := s.ledger.Release(ctx, reservation); err != nil {
			return nil, &IntakeError{ReferenceID: event.ReferenceID, Stage: StageTierDecided, Err: err}
		}
		record.Status = models.StatusRejected
		record.IsFraud = true
		record.OldBalance = reservation.OldBalance
		record.NewBalance = reservation.OldBalance
		s.notifyFraud(record)
	} else {
		if err := s.ledger.Commit(ctx, reservation); err != nil {
			releaseErr := s.ledger.Release(ctx, reservation)
			if releaseErr != nil {
				utils.LogError("Не удалось освободить резервацию %s: %v", event.ReferenceID, releaseErr)
			}
			return nil, &IntakeError{ReferenceID: event.ReferenceID, Stage: StageCommitted, Err: err}
		}
		record.Status = models.StatusCommitted
		record.OldBalance = reservation.OldBalance
		record.NewBalance = reservation.NewBalance
	}

	// Финальная стадия Recorded: каждое событие оставляет ровно одну запись.
	// Отказ хранилища фатален: возвращаем/освобождаем резервацию, чтобы
	// снаружи не осталось частичного состояния, и отдаем ошибку на повтор.
	if err := s.store.Upsert(ctx, record); err != nil {
		if releaseErr := s.ledger.Release(ctx, reservation); releaseErr != nil {
			utils.LogError("Не удалось компенсировать списание %s: %v", event.ReferenceID, releaseErr)
		}
		utils.GetMetrics().RecordError(err)
		return nil, &IntakeError{ReferenceID: event.ReferenceID, Stage: StageRecorded, Err: err}
	}

	result := resultFromRecord(record)
	utils.GetMetrics().RecordIntake(record.Tier, record.Status == models.StatusCommitted, false, record.Degraded, time.Since(start))
	utils.LogOperation("intake "+event.ReferenceID, start, nil)
	return result, nil
}

// recordRejection фиксирует отказ по недостатку средств: классификация
// пропускается, уровень остается none, баланс не изменяется.
func (s *IntakeService) recordRejection(ctx context.Context, event ConfirmationEvent, deviceID *string, start time.Time) (*ConfirmationResult, error) {
	balance, err := s.ledger.Balance(ctx, event.Identity)
	if err != nil {
		return nil, &IntakeError{ReferenceID: event.ReferenceID, Stage: StageBalanceReserved, Err: err}
	}

	latency := s.defaultLatency
	if event.LatencyMs != nil {
		latency = *event.LatencyMs
	}

	record := &models.TransactionRecord{
		ReferenceID:      event.ReferenceID,
		Amount:           event.Amount,
		Type:             event.Type,
		Status:           models.StatusRejected,
		Tier:             models.TierNone,
		LatencyMs:        latency,
		OldBalance:       balance,
		NewBalance:       balance,
		CustomerID:       event.Identity,
		DeviceID:         deviceID,
		PaymentMethod:    event.PaymentMethod,
		RecipientAccount: event.RecipientAccount,
		Reference:        event.Reference,
		Timestamp:        event.Timestamp,
	}

	if err := s.store.Upsert(ctx, record); err != nil {
		utils.GetMetrics().RecordError(err)
		return nil, &IntakeError{ReferenceID: event.ReferenceID, Stage: StageRecorded, Err: err}
	}

	result := resultFromRecord(record)
	utils.GetMetrics().RecordIntake(record.Tier, false, false, false, time.Since(start))
	utils.LogInfo("Событие %s отклонено: недостаточно средств", event.ReferenceID)
	s.notifyRejection(event.Identity, event.ReferenceID, "недостаточно средств")
	return result, nil
}

// notifyRejection уведомляет владельца счета об отклоненном событии,
// не блокируя обработку
func (s *IntakeService) notifyRejection(identity, referenceID, reason string) {
	if s.email == nil {
		return
	}
	go func() {
		if err := s.email.SendRejectionNotification(identity, referenceID, reason); err != nil {
			utils.LogError("Ошибка отправки уведомления об отказе: %v", err)
		}
	}()
}

// notifyFraud отправляет уведомление о фроде, не блокируя обработку события
func (s *IntakeService) notifyFraud(record *models.TransactionRecord) {
	if s.email == nil {
		return
	}
	go func(referenceID, customerID, amount string, confidence float64) {
		if err := s.email.SendFraudAlert(referenceID, customerID, amount, confidence); err != nil {
			utils.LogError("Ошибка отправки уведомления о фроде: %v", err)
		}
	}(record.ReferenceID, record.CustomerID, record.Amount.StringFixed(2), record.Confidence)
}

func resultFromRecord(record *models.TransactionRecord) *ConfirmationResult {
	return &ConfirmationResult{
		ReferenceID: record.ReferenceID,
		Status:      record.Status,
		Tier:        record.Tier,
		NewBalance:  record.NewBalance,
		Confidence:  record.Confidence,
		Degraded:    record.Degraded,
		DeviceID:    record.DeviceID,
	}
}
