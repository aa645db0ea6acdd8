package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"bankedge/models"
	"bankedge/services"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDeviceFixture(t *testing.T) (*DeviceController, services.DeviceStore) {
	t.Helper()

	devices := services.NewMemoryDeviceStore()
	identity := services.NewIdentityService()
	for _, device := range identity.SeedDevices() {
		d := device
		require.NoError(t, devices.Save(context.Background(), &d))
	}

	monitor := services.NewDeviceMonitorService(devices)
	return NewDeviceController(devices, monitor, identity), devices
}

func TestGetDevicesScope(t *testing.T) {
	controller, _ := newDeviceFixture(t)

	t.Run("superadmin видит весь парк", func(t *testing.T) {
		req := authRequest("GET", "/api/devices", nil, "superadmin@bankedge.com", models.RoleSuperAdmin, "")
		rr := httptest.NewRecorder()
		controller.GetDevices(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var devices []models.EdgeDevice
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &devices))
		assert.Len(t, devices, 16)
	})

	t.Run("admin видит только свое устройство", func(t *testing.T) {
		req := authRequest("GET", "/api/devices", nil, "admin.johor@bankedge.com", models.RoleAdmin, "edge-1")
		rr := httptest.NewRecorder()
		controller.GetDevices(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var devices []models.EdgeDevice
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &devices))
		require.Len(t, devices, 1)
		assert.Equal(t, "edge-1", devices[0].ID)
	})
}

func TestSyncDevice(t *testing.T) {
	controller, devices := newDeviceFixture(t)

	router := mux.NewRouter()
	controller.RegisterRoutes(router.PathPrefix("/api").Subrouter())

	t.Run("admin синхронизирует свое устройство", func(t *testing.T) {
		req := authRequest("POST", "/api/devices/edge-1/sync", nil, "admin.johor@bankedge.com", models.RoleAdmin, "edge-1")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)

		device, err := devices.Get(context.Background(), "edge-1")
		require.NoError(t, err)
		assert.Equal(t, models.DeviceStatusOnline, device.Status)
		assert.False(t, device.LastSync.IsZero())
	})

	t.Run("чужое устройство запрещено", func(t *testing.T) {
		req := authRequest("POST", "/api/devices/edge-2/sync", nil, "admin.johor@bankedge.com", models.RoleAdmin, "edge-1")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("неизвестное устройство", func(t *testing.T) {
		req := authRequest("POST", "/api/devices/edge-99/sync", nil, "superadmin@bankedge.com", models.RoleSuperAdmin, "")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestGetLocations(t *testing.T) {
	controller, _ := newDeviceFixture(t)

	req := authRequest("GET", "/api/locations", nil, "superadmin@bankedge.com", models.RoleSuperAdmin, "")
	rr := httptest.NewRecorder()
	controller.GetLocations(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var locations []services.EdgeLocation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &locations))
	assert.Len(t, locations, 16)
}
