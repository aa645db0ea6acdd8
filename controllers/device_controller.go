package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"bankedge/middleware"
	"bankedge/models"
	"bankedge/services"

	"github.com/gorilla/mux"
)

// DeviceController обрабатывает запросы к справочнику edge-устройств
type DeviceController struct {
	devices  services.DeviceStore
	monitor  *services.DeviceMonitorService
	identity *services.IdentityService
}

// NewDeviceController создает новый экземпляр DeviceController
func NewDeviceController(devices services.DeviceStore, monitor *services.DeviceMonitorService,
	identity *services.IdentityService) *DeviceController {
	return &DeviceController{
		devices:  devices,
		monitor:  monitor,
		identity: identity,
	}
}

// GetDevices возвращает список edge-устройств.
// admin видит только устройство своей локации, superadmin — весь парк.
func (c *DeviceController) GetDevices(w http.ResponseWriter, r *http.Request) {
	_, role, location, err := middleware.GetUserFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	devices, err := c.devices.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if role != models.RoleSuperAdmin {
		filtered := make([]models.EdgeDevice, 0, 1)
		for _, device := range devices {
			if device.ID == location {
				filtered = append(filtered, device)
			}
		}
		devices = filtered
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(devices)
}

// SyncDevice обновляет отметку синхронизации устройства
func (c *DeviceController) SyncDevice(w http.ResponseWriter, r *http.Request) {
	_, role, location, err := middleware.GetUserFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	deviceID := mux.Vars(r)["id"]

	// admin может синхронизировать только свое устройство
	if role != models.RoleSuperAdmin && deviceID != location {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	if err := c.monitor.MarkSynced(r.Context(), deviceID); err != nil {
		if errors.Is(err, services.ErrDeviceNotFound) {
			http.Error(w, "Device not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Синхронизация выполнена",
	})
}

// GetLocations возвращает статический справочник локаций
func (c *DeviceController) GetLocations(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(c.identity.Locations())
}

// RegisterRoutes регистрирует маршруты контроллера на защищенном /api роутере
func (c *DeviceController) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/devices", c.GetDevices).Methods("GET")
	router.HandleFunc("/devices/{id}/sync", c.SyncDevice).Methods("POST")
	router.HandleFunc("/locations", c.GetLocations).Methods("GET")
}
