package services

import (
	"fmt"
	"time"

	"bankedge/config"

	"gopkg.in/gomail.v2"
)

// EmailService предоставляет методы для отправки email
type EmailService struct {
	dialer  *gomail.Dialer
	from    string
	alertTo string
}

// NewEmailService создает новый экземпляр EmailService
func NewEmailService(cfg *config.Config) *EmailService {
	dialer := gomail.NewDialer(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.Username,
		cfg.SMTP.Password,
	)

	return &EmailService{
		dialer:  dialer,
		from:    cfg.SMTP.From,
		alertTo: cfg.SMTP.AlertTo,
	}
}

// SendEmail отправляет email
func (s *EmailService) SendEmail(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("ошибка отправки email: %v", err)
	}

	return nil
}

// SendFraudAlert отправляет уведомление о транзакции, помеченной как фрод
func (s *EmailService) SendFraudAlert(referenceID, customerID, amount string, confidence float64) error {
	subject := "Подозрение на мошенническую транзакцию"
	body := fmt.Sprintf(`
		<h2>Транзакция помечена как подозрительная</h2>
		<p>Reference: %s</p>
		<p>Клиент: %s</p>
		<p>Сумма: %s</p>
		<p>Уверенность модели: %.2f</p>
		<p>Дата: %s</p>
	`, referenceID, customerID, amount, confidence, time.Now().Format("02.01.2006 15:04:05"))

	return s.SendEmail(s.alertTo, subject, body)
}

// SendRejectionNotification отправляет уведомление об отклоненной транзакции
func (s *EmailService) SendRejectionNotification(to, referenceID, reason string) error {
	subject := "Транзакция отклонена"
	body := fmt.Sprintf(`
		<h2>Транзакция отклонена</h2>
		<p>Reference: %s</p>
		<p>Причина: %s</p>
		<p>Дата: %s</p>
	`, referenceID, reason, time.Now().Format("02.01.2006 15:04:05"))

	return s.SendEmail(to, subject, body)
}
