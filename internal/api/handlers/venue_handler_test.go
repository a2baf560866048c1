package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"oms/internal/models"
	"oms/internal/service"
)

// ============ VenueHandler Tests ============

func TestVenueHandler_ConnectVenue(t *testing.T) {
	t.Run("successfully connects venue", func(t *testing.T) {
		mockSvc := NewMockVenueService()
		handler := NewVenueHandler(mockSvc)

		jsonBody := []byte(`{"api_key": "key", "secret_key": "secret"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/venues/mock/connect", bytes.NewReader(jsonBody))
		req = mux.SetURLVars(req, map[string]string{"name": "mock"})
		w := httptest.NewRecorder()

		handler.ConnectVenue(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
		}
		if !mockSvc.venues["mock"].Connected {
			t.Error("expected venue to be connected")
		}
	})

	t.Run("returns 400 for unsupported venue", func(t *testing.T) {
		mockSvc := NewMockVenueService()
		handler := NewVenueHandler(mockSvc)

		jsonBody := []byte(`{"api_key": "key", "secret_key": "secret"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/venues/nyse/connect", bytes.NewReader(jsonBody))
		req = mux.SetURLVars(req, map[string]string{"name": "nyse"})
		w := httptest.NewRecorder()

		handler.ConnectVenue(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("returns 400 for missing api key", func(t *testing.T) {
		mockSvc := NewMockVenueService()
		handler := NewVenueHandler(mockSvc)

		jsonBody := []byte(`{"secret_key": "secret"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/venues/mock/connect", bytes.NewReader(jsonBody))
		req = mux.SetURLVars(req, map[string]string{"name": "mock"})
		w := httptest.NewRecorder()

		handler.ConnectVenue(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("returns 401 for invalid credentials", func(t *testing.T) {
		mockSvc := NewMockVenueService()
		mockSvc.connectErr = service.ErrInvalidCredentials
		handler := NewVenueHandler(mockSvc)

		jsonBody := []byte(`{"api_key": "bad", "secret_key": "bad"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/venues/mock/connect", bytes.NewReader(jsonBody))
		req = mux.SetURLVars(req, map[string]string{"name": "mock"})
		w := httptest.NewRecorder()

		handler.ConnectVenue(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
		}
	})
}

func TestVenueHandler_DisconnectVenue(t *testing.T) {
	t.Run("successfully disconnects venue", func(t *testing.T) {
		mockSvc := NewMockVenueService()
		mockSvc.venues["mock"] = &models.VenueAccount{Name: "mock", Connected: true}
		handler := NewVenueHandler(mockSvc)

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/venues/mock/connect", nil)
		req = mux.SetURLVars(req, map[string]string{"name": "mock"})
		w := httptest.NewRecorder()

		handler.DisconnectVenue(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		if mockSvc.venues["mock"].Connected {
			t.Error("expected venue to be disconnected")
		}
	})

	t.Run("returns 404 for non-connected venue", func(t *testing.T) {
		mockSvc := NewMockVenueService()
		handler := NewVenueHandler(mockSvc)

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/venues/mock/connect", nil)
		req = mux.SetURLVars(req, map[string]string{"name": "mock"})
		w := httptest.NewRecorder()

		handler.DisconnectVenue(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
	})

	t.Run("returns 409 when venue has active orders", func(t *testing.T) {
		mockSvc := NewMockVenueService()
		mockSvc.disconnectErr = service.ErrVenueHasActiveOrders
		handler := NewVenueHandler(mockSvc)

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/venues/mock/connect", nil)
		req = mux.SetURLVars(req, map[string]string{"name": "mock"})
		w := httptest.NewRecorder()

		handler.DisconnectVenue(w, req)

		if w.Code != http.StatusConflict {
			t.Errorf("expected status %d, got %d", http.StatusConflict, w.Code)
		}
	})
}

func TestVenueHandler_GetVenues(t *testing.T) {
	t.Run("returns venue list", func(t *testing.T) {
		mockSvc := NewMockVenueService()
		mockSvc.venues["mock"] = &models.VenueAccount{Name: "mock", Connected: true}
		handler := NewVenueHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/venues", nil)
		w := httptest.NewRecorder()

		handler.GetVenues(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		var venues []models.VenueAccount
		if err := json.NewDecoder(w.Body).Decode(&venues); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(venues) != 1 {
			t.Errorf("expected 1 venue, got %d", len(venues))
		}
	})

	t.Run("returns 500 on service error", func(t *testing.T) {
		mockSvc := NewMockVenueService()
		mockSvc.getErr = ErrMockDatabase
		handler := NewVenueHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/venues", nil)
		w := httptest.NewRecorder()

		handler.GetVenues(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}

func TestVenueHandler_GetVenue(t *testing.T) {
	t.Run("returns 404 for unknown venue", func(t *testing.T) {
		mockSvc := NewMockVenueService()
		handler := NewVenueHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/venues/mock", nil)
		req = mux.SetURLVars(req, map[string]string{"name": "mock"})
		w := httptest.NewRecorder()

		handler.GetVenue(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
	})
}
