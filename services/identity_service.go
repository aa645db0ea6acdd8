package services

import (
	"strings"

	"bankedge/models"
)

// EdgeLocation описывает элемент статического справочника локаций
type EdgeLocation struct {
	DeviceID string
	Name     string
	Location string
	Region   string
}

// Каноническое соответствие код региона -> edge-устройство.
// Справочник неизменяемый, владеет им IdentityService.
var locationTable = map[string]EdgeLocation{
	"JOHOR":          {DeviceID: "edge-1", Name: "Edge Node Johor", Location: "Johor, Malaysia", Region: "State"},
	"KEDAH":          {DeviceID: "edge-2", Name: "Edge Node Kedah", Location: "Kedah, Malaysia", Region: "State"},
	"KELANTAN":       {DeviceID: "edge-3", Name: "Edge Node Kelantan", Location: "Kelantan, Malaysia", Region: "State"},
	"MALACCA":        {DeviceID: "edge-4", Name: "Edge Node Malacca", Location: "Malacca, Malaysia", Region: "State"},
	"NEGERISEMBILAN": {DeviceID: "edge-5", Name: "Edge Node NegeriSembilan", Location: "NegeriSembilan, Malaysia", Region: "State"},
	"PAHANG":         {DeviceID: "edge-6", Name: "Edge Node Pahang", Location: "Pahang, Malaysia", Region: "State"},
	"PENANG":         {DeviceID: "edge-7", Name: "Edge Node Penang", Location: "Penang, Malaysia", Region: "State"},
	"PERAK":          {DeviceID: "edge-8", Name: "Edge Node Perak", Location: "Perak, Malaysia", Region: "State"},
	"PERLIS":         {DeviceID: "edge-9", Name: "Edge Node Perlis", Location: "Perlis, Malaysia", Region: "State"},
	"SABAH":          {DeviceID: "edge-10", Name: "Edge Node Sabah", Location: "Sabah, Malaysia", Region: "State"},
	"SARAWAK":        {DeviceID: "edge-11", Name: "Edge Node Sarawak", Location: "Sarawak, Malaysia", Region: "State"},
	"SELANGOR":       {DeviceID: "edge-12", Name: "Edge Node Selangor", Location: "Selangor, Malaysia", Region: "State"},
	"TERENGGANU":     {DeviceID: "edge-13", Name: "Edge Node Terengganu", Location: "Terengganu, Malaysia", Region: "State"},
	"KL":             {DeviceID: "edge-14", Name: "Edge Node KL", Location: "KL, Malaysia", Region: "Federal Territory"},
	"LABUAN":         {DeviceID: "edge-15", Name: "Edge Node Labuan", Location: "Labuan, Malaysia", Region: "Federal Territory"},
	"PUTRAJAYA":      {DeviceID: "edge-16", Name: "Edge Node Putrajaya", Location: "Putrajaya, Malaysia", Region: "Federal Territory"},
}

// IdentityService сопоставляет identity вызывающего с домашним edge-устройством.
// Детерминированный, без побочных эффектов.
type IdentityService struct{}

// NewIdentityService создает новый экземпляр IdentityService
func NewIdentityService() *IdentityService {
	return &IdentityService{}
}

// Resolve возвращает id домашнего edge-устройства для identity вида
// admin.<region>@bankedge.com. Отсутствие привязки к локации (superadmin,
// identity без разбираемого региона) — не ошибка: ok == false.
func (s *IdentityService) Resolve(identity string) (string, bool) {
	region, ok := s.RegionCode(identity)
	if !ok {
		return "", false
	}
	location, exists := locationTable[region]
	if !exists {
		return "", false
	}
	return location.DeviceID, true
}

// RegionCode извлекает нормализованный код региона из identity.
// Формат: <role>.<region>@<domain>; сегмент региона приводится к верхнему регистру.
func (s *IdentityService) RegionCode(identity string) (string, bool) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "", false
	}

	prefix := identity
	if at := strings.Index(identity, "@"); at >= 0 {
		prefix = identity[:at]
	}

	parts := strings.Split(prefix, ".")
	if len(parts) < 2 {
		return "", false
	}

	region := strings.ToUpper(strings.TrimSpace(parts[1]))
	if region == "" {
		return "", false
	}
	return region, true
}

// Locations возвращает копию справочника локаций в стабильном порядке
func (s *IdentityService) Locations() []EdgeLocation {
	locations := make([]EdgeLocation, 0, len(locationTable))
	for _, region := range []string{
		"JOHOR", "KEDAH", "KELANTAN", "MALACCA", "NEGERISEMBILAN", "PAHANG",
		"PENANG", "PERAK", "PERLIS", "SABAH", "SARAWAK", "SELANGOR",
		"TERENGGANU", "KL", "LABUAN", "PUTRAJAYA",
	} {
		locations = append(locations, locationTable[region])
	}
	return locations
}

// SeedDevices наполняет справочник устройств статической таблицей локаций
func (s *IdentityService) SeedDevices() []models.EdgeDevice {
	locations := s.Locations()
	devices := make([]models.EdgeDevice, 0, len(locations))
	for _, loc := range locations {
		devices = append(devices, models.EdgeDevice{
			ID:       loc.DeviceID,
			Name:     loc.Name,
			Location: loc.Location,
			Region:   loc.Region,
			Status:   models.DeviceStatusOnline,
		})
	}
	return devices
}
