package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bankedge/config"
	"bankedge/controllers"
	"bankedge/database"
	"bankedge/middleware"
	"bankedge/models"
	"bankedge/services"
	"bankedge/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// appStores — набор хранилищ, собранный по выбранному драйверу
type appStores struct {
	accounts services.AccountStore
	records  services.RecordStore
	devices  services.DeviceStore
	closer   func() error
}

// initStores собирает хранилища: postgres для постоянного контура,
// memory для демо-режима без базы данных
func initStores(cfg *config.Config) (*appStores, error) {
	if cfg.DB.Driver == "memory" {
		log.Println("Демо-режим: данные хранятся в памяти")
		return &appStores{
			accounts: services.NewMemoryAccountStore(),
			records:  services.NewMemoryRecordStore(),
			devices:  services.NewMemoryDeviceStore(),
		}, nil
	}

	db, err := database.NewDatabase(cfg)
	if err != nil {
		return nil, err
	}

	return &appStores{
		accounts: database.NewGormAccountStore(db.DB),
		records:  database.NewGormRecordStore(db.DB),
		devices:  database.NewGormDeviceStore(db.DB),
		closer:   db.Close,
	}, nil
}

// seedDirectory наполняет справочники: 16 edge-устройств, по одному admin
// на локацию и один superadmin. Существующие учетные записи не перезаписываются.
func seedDirectory(ctx context.Context, stores *appStores, identity *services.IdentityService) error {
	for _, device := range identity.SeedDevices() {
		if _, err := stores.devices.Get(ctx, device.ID); err == nil {
			continue
		}
		device.LastSync = time.Now()
		if err := stores.devices.Save(ctx, &device); err != nil {
			return fmt.Errorf("ошибка при создании устройства %s: %v", device.ID, err)
		}
	}

	accounts := services.NewAccountService(stores.accounts)
	initialBalance := decimal.NewFromInt(10000)

	seedAccount := func(identityName, role string) error {
		if _, err := accounts.FindByIdentity(ctx, identityName); err == nil {
			return nil
		}
		_, err := accounts.CreateAccount(ctx, services.CreateAccountRequest{
			Identity:       identityName,
			Password:       "BankEdge@2024",
			Role:           role,
			InitialBalance: initialBalance,
		})
		return err
	}

	for _, region := range []string{
		"johor", "kedah", "kelantan", "malacca", "negerisembilan", "pahang",
		"penang", "perak", "perlis", "sabah", "sarawak", "selangor",
		"terengganu", "kl", "labuan", "putrajaya",
	} {
		if err := seedAccount("admin."+region+"@bankedge.com", models.RoleAdmin); err != nil {
			return fmt.Errorf("ошибка при создании учетной записи региона %s: %v", region, err)
		}
	}

	if err := seedAccount("superadmin@bankedge.com", models.RoleSuperAdmin); err != nil {
		return fmt.Errorf("ошибка при создании superadmin: %v", err)
	}

	return nil
}

// newOpsRouter собирает служебный сервер: здоровье и метрики приема
func newOpsRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.RateLimit())
	router.Use(middleware.CORSMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, utils.GetMetrics().GetMetricsSnapshot())
	})

	return router
}

func main() {
	// Инициализируем конфигурацию
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// Инициализируем хранилища
	stores, err := initStores(cfg)
	if err != nil {
		log.Fatalf("Ошибка инициализации хранилищ: %v", err)
	}
	if stores.closer != nil {
		defer stores.closer()
	}

	// Справочник локаций и начальные данные
	identityService := services.NewIdentityService()
	if err := seedDirectory(context.Background(), stores, identityService); err != nil {
		log.Fatalf("Ошибка наполнения справочников: %v", err)
	}

	// Загружаем артефакт политики маршрутизации; отказ загрузки не фатален,
	// движок будет работать в деградированном режиме
	var policy services.RoutingPolicy
	if loaded, err := services.LoadRulePolicy(cfg.Policy.ArtifactPath); err != nil {
		log.Printf("Артефакт политики недоступен (%v), маршрутизация деградирована", err)
	} else {
		policy = loaded
		log.Printf("Политика маршрутизации загружена: версия %s", loaded.Version())
	}
	engine := services.NewPolicyEngine(policy)

	// Собираем сервисы ядра
	emailService := services.NewEmailService(cfg)
	ledger := services.NewLedgerService(stores.accounts)
	txStore := services.NewTransactionStore(stores.records)
	intake := services.NewIntakeService(
		identityService,
		ledger,
		engine,
		txStore,
		emailService,
		cfg.Intake.DefaultLatency,
		time.Duration(cfg.Intake.RollingWindowD)*24*time.Hour,
	)

	// Пул воркеров приема
	pool := services.NewIntakePool(intake, cfg.Intake.Workers, cfg.Intake.QueueSize)
	pool.Start()
	defer pool.Stop()

	// Мониторинг edge-устройств
	monitor := services.NewDeviceMonitorService(stores.devices)
	monitor.Start()
	defer monitor.Stop()

	// Создаем роутер
	router := mux.NewRouter()

	// Инициализируем контроллеры
	accountService := services.NewAccountService(stores.accounts)
	authController := controllers.NewAuthController(accountService, identityService, cfg)
	paymentController := controllers.NewPaymentController(
		services.NewSimulatedGateway(), pool, txStore, cfg.Gateway.WebhookKey)
	deviceController := controllers.NewDeviceController(stores.devices, monitor, identityService)

	// Публичные маршруты для аутентификации
	authController.RegisterRoutes(router)

	// Защищенные маршруты
	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(middleware.AuthMiddleware([]byte(authController.GetJWTKey())))
	protected.Use(middleware.LoggingMiddleware(utils.LogInfo))

	paymentController.RegisterRoutes(protected)
	deviceController.RegisterRoutes(protected)

	// Служебный сервер (health, metrics)
	opsRouter := newOpsRouter()
	go func() {
		opsPort := fmt.Sprintf(":%d", cfg.Server.OpsPort)
		log.Printf("Служебный сервер запущен на порту %s", opsPort)
		if err := opsRouter.Run(opsPort); err != nil {
			log.Printf("Служебный сервер остановлен: %v", err)
		}
	}()

	// Запускаем основной сервер
	port := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("Сервер запущен на порту %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Ошибка запуска сервера: %v", err)
		}
	}()

	// Ждем сигнал остановки, даем текущим событиям довестись до конца
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Остановка сервера...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Ошибка остановки сервера: %v", err)
	}
}
