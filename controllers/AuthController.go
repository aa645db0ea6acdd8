package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"bankedge/config"
	"bankedge/services"
	"bankedge/utils"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
)

type AuthController struct {
	accounts *services.AccountService
	identity *services.IdentityService
	validate *validator.Validate
	config   *config.Config
}

type SignInRequest struct {
	Identity string `json:"identity" validate:"required,min=3,max=150"`
	Password string `json:"password" validate:"required,min=8"`
}

type SignInResponse struct {
	Token    string `json:"token"`
	Identity string `json:"identity"`
	Role     string `json:"role"`
	Location string `json:"userLocation,omitempty"`
}

// Claims — полезная нагрузка JWT токена. userLocation содержит id домашнего
// edge-устройства; для superadmin клейм пустой.
type Claims struct {
	Identity string `json:"identity"`
	Role     string `json:"role"`
	Location string `json:"userLocation,omitempty"`
	jwt.RegisteredClaims
}

func NewAuthController(accounts *services.AccountService, identity *services.IdentityService, cfg *config.Config) *AuthController {
	return &AuthController{
		accounts: accounts,
		identity: identity,
		validate: validator.New(),
		config:   cfg,
	}
}

// SignIn обрабатывает вход пользователя
func (c *AuthController) SignIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Валидация запроса
	if err := c.validate.Struct(req); err != nil {
		validationErrors := err.(validator.ValidationErrors)
		http.Error(w, validationErrors.Error(), http.StatusBadRequest)
		return
	}

	// Ищем учетную запись по identity
	account, err := c.accounts.FindByIdentity(r.Context(), req.Identity)
	if err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	// Проверяем пароль
	if !utils.VerifyPassword(req.Password, account.Password) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	// Привязка к локации выводится из identity, а не из запроса
	location := ""
	if deviceID, ok := c.identity.Resolve(account.Identity); ok {
		location = deviceID
	}

	tokenString, err := c.generateToken(account.Identity, account.Role, location)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	if err := c.accounts.TouchLogin(r.Context(), account.Identity); err != nil {
		utils.LogError("Не удалось обновить отметку входа %s: %v", account.Identity, err)
	}

	response := SignInResponse{
		Token:    tokenString,
		Identity: account.Identity,
		Role:     account.Role,
		Location: location,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// RegisterRoutes регистрирует публичные маршруты аутентификации
func (c *AuthController) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/auth/signIn", c.SignIn).Methods("POST")
}

// GetJWTKey возвращает ключ для JWT
func (c *AuthController) GetJWTKey() string {
	return c.config.JWT.SecretKey
}

// generateToken создает JWT токен
func (c *AuthController) generateToken(identity, role, location string) (string, error) {
	expirationTime := time.Now().Add(time.Duration(c.config.JWT.ExpiresIn) * time.Hour)
	claims := &Claims{
		Identity: identity,
		Role:     role,
		Location: location,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(c.config.JWT.SecretKey))
}
