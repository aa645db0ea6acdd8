package models

import (
	"time"
)

// Статусы edge-устройств
const (
	DeviceStatusOnline  = "online"
	DeviceStatusOffline = "offline"
)

// EdgeDevice представляет пограничный узел обработки транзакций
type EdgeDevice struct {
	ID       string `gorm:"primaryKey;size:50"`
	Name     string `gorm:"column:name;not null;size:100"`
	Location string `gorm:"column:location;not null;size:100"`
	Region   string `gorm:"column:region;size:50"`
	Status   string `gorm:"column:status;not null;size:20;default:'online'"`
	LastSync time.Time `gorm:"column:last_sync"`
}

func (EdgeDevice) TableName() string {
	return "edge_devices"
}
