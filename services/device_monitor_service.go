package services

import (
	"context"
	"time"

	"bankedge/models"
	"bankedge/utils"
)

// DeviceMonitorService следит за справочником edge-устройств: узлы, давно
// не синхронизировавшиеся, помечаются offline, чтобы панель устройств
// отражала реальное состояние парка.
type DeviceMonitorService struct {
	devices      DeviceStore
	staleAfter   time.Duration
	syncInterval time.Duration
	stop         chan struct{}
}

// NewDeviceMonitorService создает новый экземпляр DeviceMonitorService
func NewDeviceMonitorService(devices DeviceStore) *DeviceMonitorService {
	return &DeviceMonitorService{
		devices:      devices,
		staleAfter:   15 * time.Minute,
		syncInterval: time.Minute,
		stop:         make(chan struct{}),
	}
}

// Start запускает фоновый мониторинг устройств
func (s *DeviceMonitorService) Start() {
	ticker := time.NewTicker(s.syncInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.sweep(context.Background()); err != nil {
					utils.LogError("Ошибка при проверке устройств: %v", err)
				}
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop останавливает мониторинг
func (s *DeviceMonitorService) Stop() {
	close(s.stop)
}

// MarkSynced обновляет отметку синхронизации устройства
func (s *DeviceMonitorService) MarkSynced(ctx context.Context, deviceID string) error {
	device, err := s.devices.Get(ctx, deviceID)
	if err != nil {
		return err
	}
	device.LastSync = time.Now()
	device.Status = models.DeviceStatusOnline
	return s.devices.Save(ctx, device)
}

// sweep помечает offline устройства с устаревшей синхронизацией
func (s *DeviceMonitorService) sweep(ctx context.Context) error {
	devices, err := s.devices.List(ctx)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-s.staleAfter)
	for _, device := range devices {
		if device.Status == models.DeviceStatusOnline && !device.LastSync.IsZero() && device.LastSync.Before(cutoff) {
			device.Status = models.DeviceStatusOffline
			if err := s.devices.Save(ctx, &device); err != nil {
				return err
			}
			utils.LogInfo("Устройство %s переведено в offline: нет синхронизации с %v", device.ID, device.LastSync)
		}
	}
	return nil
}
