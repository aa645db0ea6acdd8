package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config представляет конфигурацию приложения
type Config struct {
	Server struct {
		Port    int
		OpsPort int // порт служебного сервера (health, metrics)
	}
	DB struct {
		Driver   string // postgres или memory (демо-режим без БД)
		Host     string
		Port     int
		User     string
		Password string
		DBName   string
	}
	JWT struct {
		SecretKey string
		ExpiresIn int // в часах
	}
	SMTP struct {
		Host     string
		Port     int
		Username string
		Password string
		From     string
		AlertTo  string // адрес для уведомлений о фроде
	}
	Gateway struct {
		WebhookKey string // ключ HMAC-подписи событий шлюза
	}
	Policy struct {
		ArtifactPath string // путь к XML-артефакту политики маршрутизации
	}
	Intake struct {
		Workers         int     // размер пула воркеров приема
		QueueSize       int     // размер очереди событий
		DefaultLatency  float64 // задержка по умолчанию, если шлюз ее не передал (мс)
		RollingWindowD  int     // окно скользящего счетчика транзакций (дни)
	}
}

// NewConfig создает новый экземпляр конфигурации
func NewConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	// Настройки сервера
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("OPS_PORT", 8081)

	// Настройки базы данных
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "bankedge_db")

	// Настройки JWT
	v.SetDefault("JWT_SECRET_KEY", "your-secret-key-here")
	v.SetDefault("JWT_EXPIRES_IN", 24)

	// Настройки SMTP
	v.SetDefault("SMTP_HOST", "smtp.gmail.com")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "alerts@bankedge.com")
	v.SetDefault("SMTP_ALERT_TO", "fraud@bankedge.com")

	// Настройки платежного шлюза
	v.SetDefault("GATEWAY_WEBHOOK_KEY", "")

	// Настройки политики маршрутизации
	v.SetDefault("POLICY_ARTIFACT_PATH", "policy/offloading_policy.xml")

	// Настройки приема транзакций
	v.SetDefault("INTAKE_WORKERS", 8)
	v.SetDefault("INTAKE_QUEUE_SIZE", 64)
	v.SetDefault("INTAKE_DEFAULT_LATENCY_MS", 20.0)
	v.SetDefault("INTAKE_ROLLING_WINDOW_DAYS", 30)

	cfg := &Config{}
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.OpsPort = v.GetInt("OPS_PORT")

	cfg.DB.Driver = v.GetString("DB_DRIVER")
	cfg.DB.Host = v.GetString("DB_HOST")
	cfg.DB.Port = v.GetInt("DB_PORT")
	cfg.DB.User = v.GetString("DB_USER")
	cfg.DB.Password = v.GetString("DB_PASSWORD")
	cfg.DB.DBName = v.GetString("DB_NAME")

	cfg.JWT.SecretKey = v.GetString("JWT_SECRET_KEY")
	cfg.JWT.ExpiresIn = v.GetInt("JWT_EXPIRES_IN")

	cfg.SMTP.Host = v.GetString("SMTP_HOST")
	cfg.SMTP.Port = v.GetInt("SMTP_PORT")
	cfg.SMTP.Username = v.GetString("SMTP_USERNAME")
	cfg.SMTP.Password = v.GetString("SMTP_PASSWORD")
	cfg.SMTP.From = v.GetString("SMTP_FROM")
	cfg.SMTP.AlertTo = v.GetString("SMTP_ALERT_TO")

	cfg.Gateway.WebhookKey = v.GetString("GATEWAY_WEBHOOK_KEY")

	cfg.Policy.ArtifactPath = v.GetString("POLICY_ARTIFACT_PATH")

	cfg.Intake.Workers = v.GetInt("INTAKE_WORKERS")
	cfg.Intake.QueueSize = v.GetInt("INTAKE_QUEUE_SIZE")
	cfg.Intake.DefaultLatency = v.GetFloat64("INTAKE_DEFAULT_LATENCY_MS")
	cfg.Intake.RollingWindowD = v.GetInt("INTAKE_ROLLING_WINDOW_DAYS")

	if cfg.DB.Driver != "postgres" && cfg.DB.Driver != "memory" {
		return nil, fmt.Errorf("неизвестный драйвер базы данных: %s", cfg.DB.Driver)
	}
	if cfg.Intake.Workers < 1 {
		return nil, fmt.Errorf("размер пула воркеров должен быть не меньше 1")
	}

	return cfg, nil
}
