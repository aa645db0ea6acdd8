package controllers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bankedge/middleware"
	"bankedge/models"
	"bankedge/services"
	"bankedge/utils"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// PaymentController обрабатывает подтверждения платежей от шлюза
// и выдачу журнала транзакций
type PaymentController struct {
	gateway    services.PaymentGateway
	pool       *services.IntakePool
	store      *services.TransactionStore
	validator  *validator.Validate
	webhookKey []byte
}

// ConfirmRequest — запрос на обработку подтверждения платежа
type ConfirmRequest struct {
	ReferenceID      string          `json:"referenceId" validate:"required,min=3,max=100"`
	Amount           decimal.Decimal `json:"amount"`
	Type             string          `json:"type" validate:"required,oneof=Transfer Payment Withdrawal Deposit"`
	RecipientAccount string          `json:"recipientAccount" validate:"omitempty,max=100"`
	Reference        string          `json:"reference" validate:"omitempty,max=100"`
	DeclaredLocation string          `json:"declaredLocation" validate:"omitempty,max=50"`
	LatencyMs        *float64        `json:"latencyMs"`
}

// TransactionListResponse — страница журнала транзакций
type TransactionListResponse struct {
	Transactions []models.TransactionRecord `json:"transactions"`
	Total        int64                      `json:"total"`
	Limit        int                        `json:"limit"`
	Offset       int                        `json:"offset"`
}

// NewPaymentController создает новый экземпляр PaymentController
func NewPaymentController(gateway services.PaymentGateway, pool *services.IntakePool,
	store *services.TransactionStore, webhookKey string) *PaymentController {
	return &PaymentController{
		gateway:    gateway,
		pool:       pool,
		store:      store,
		validator:  validator.New(),
		webhookKey: []byte(webhookKey),
	}
}

// validateRequest валидирует DTO и возвращает ошибки валидации
func (c *PaymentController) validateRequest(dto interface{}) error {
	if err := c.validator.Struct(dto); err != nil {
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
	return nil
}

// ConfirmPayment обрабатывает запрос на подтверждение платежа.
// Подтверждение запрашивается у шлюза заново: статус из тела запроса
// доверия не имеет. Итог платежа определяется координатором приема.
func (c *PaymentController) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	identity, _, _, err := middleware.GetUserFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Проверяем HMAC-подпись, если шлюз сконфигурирован с ключом
	if len(c.webhookKey) > 0 {
		signature := r.Header.Get("X-Gateway-Signature")
		if !utils.ValidateHMAC(string(body), signature, c.webhookKey) {
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var req ConfirmRequest
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := c.validateRequest(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !req.Amount.IsPositive() {
		http.Error(w, "сумма должна быть положительной", http.StatusBadRequest)
		return
	}

	// Сверяемся со шлюзом по reference id
	confirmation, err := c.gateway.RetrieveConfirmation(r.Context(), req.ReferenceID)
	if err != nil {
		utils.LogError("Шлюз не подтвердил платеж %s: %v", req.ReferenceID, err)
		http.Error(w, "Payment verification failed", http.StatusBadGateway)
		return
	}
	if confirmation.Status != services.GatewayStatusSucceeded {
		http.Error(w, "Payment not confirmed by gateway", http.StatusPaymentRequired)
		return
	}

	event := services.ConfirmationEvent{
		ReferenceID:      req.ReferenceID,
		Identity:         identity,
		Amount:           req.Amount,
		Type:             req.Type,
		RecipientAccount: req.RecipientAccount,
		Reference:        req.Reference,
		PaymentMethod:    confirmation.PaymentMethod,
		DeclaredLocation: req.DeclaredLocation,
		LatencyMs:        req.LatencyMs,
		Timestamp:        time.Now(),
	}

	result, err := c.pool.Submit(r.Context(), event)
	if err != nil {
		var intakeErr *services.IntakeError
		if errors.As(err, &intakeErr) && intakeErr.Stage == services.StageReceived {
			http.Error(w, intakeErr.Err.Error(), http.StatusBadRequest)
			return
		}
		utils.LogError("Обработка платежа %s не удалась: %v", req.ReferenceID, err)
		http.Error(w, "Payment processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if result.Status == models.StatusRejected {
		w.WriteHeader(http.StatusUnprocessableEntity)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(result)
}

// GetTransactions возвращает журнал транзакций с пагинацией.
// admin видит только транзакции своей локации, superadmin — все.
func (c *PaymentController) GetTransactions(w http.ResponseWriter, r *http.Request) {
	_, role, location, err := middleware.GetUserFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	filter := services.RecordFilter{
		Limit:  50,
		Offset: 0,
	}

	query := r.URL.Query()
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil && limit > 0 && limit <= 200 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(query.Get("offset")); err == nil && offset >= 0 {
		filter.Offset = offset
	}
	if customer := query.Get("customerId"); customer != "" {
		filter.CustomerID = customer
	}

	// Ограничение видимости по локации
	if role != models.RoleSuperAdmin {
		if location == "" {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		filter.DeviceID = location
	} else if device := query.Get("deviceId"); device != "" {
		filter.DeviceID = device
	}

	records, total, err := c.store.List(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	response := TransactionListResponse{
		Transactions: records,
		Total:        total,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// GetTransaction возвращает одну запись по reference id
func (c *PaymentController) GetTransaction(w http.ResponseWriter, r *http.Request) {
	_, role, location, err := middleware.GetUserFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	referenceID := mux.Vars(r)["referenceId"]
	record, err := c.store.Get(r.Context(), referenceID)
	if err != nil {
		if errors.Is(err, services.ErrRecordNotFound) {
			http.Error(w, "Transaction not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// admin видит только записи своей локации
	if role != models.RoleSuperAdmin {
		if record.DeviceID == nil || *record.DeviceID != location {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(record)
}

// RegisterRoutes регистрирует маршруты контроллера на защищенном /api роутере
func (c *PaymentController) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/payments/confirm", c.ConfirmPayment).Methods("POST")
	router.HandleFunc("/transactions", c.GetTransactions).Methods("GET")
	router.HandleFunc("/transactions/{referenceId}", c.GetTransaction).Methods("GET")
}
