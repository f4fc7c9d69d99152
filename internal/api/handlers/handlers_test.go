package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uitgo/trip-service/internal/config"
	"github.com/uitgo/trip-service/internal/domain/location"
	"github.com/uitgo/trip-service/internal/domain/trip"
	"github.com/uitgo/trip-service/internal/domain/vehicle"
	"github.com/uitgo/trip-service/internal/repository/memory"
	"github.com/uitgo/trip-service/internal/service/geo"
	"github.com/uitgo/trip-service/internal/service/lifecycle"
	"github.com/uitgo/trip-service/internal/service/pricing"
	"github.com/uitgo/trip-service/internal/service/stats"
)

var (
	benThanh   = location.Coordinates{Longitude: 106.698, Latitude: 10.772}
	tanSonNhat = location.Coordinates{Longitude: 106.652, Latitude: 10.818}
)

type stubGeo struct {
	err error
}

func (g stubGeo) Geocode(_ context.Context, address string) (location.Coordinates, error) {
	if g.err != nil {
		return location.Coordinates{}, g.err
	}
	if address == "Tan Son Nhat" {
		return tanSonNhat, nil
	}
	return benThanh, nil
}

type stubRouter struct {
	err       error
	failClass vehicle.Class
}

func (r stubRouter) Route(_ context.Context, _, _ location.Coordinates, class vehicle.Class) (*geo.Route, error) {
	failing := r.failClass == "" || class == r.failClass
	if r.err != nil && failing {
		return nil, fmt.Errorf("route: %w", r.err)
	}
	return &geo.Route{DistanceMeters: 10000, DurationSeconds: 900}, nil
}

type recordingMetrics struct{ fares []string }

func (m *recordingMetrics) RecordFareEstimated(class string, _, _ float64) {
	m.fares = append(m.fares, class)
}

type server struct {
	engine  *gin.Engine
	repo    *memory.TripRepository
	metrics *recordingMetrics
}

func newServer(t *testing.T, geocoder stubGeo, router stubRouter, checks ...HealthCheck) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := memory.NewTripRepository()
	fares := pricing.NewService(router, pricing.DefaultConfig(), nil)
	metrics := &recordingMetrics{}
	h := NewHandlers(Handlers{
		Trips:    lifecycle.NewService(repo, geocoder, router, fares, nil),
		Stats:    stats.NewService(repo, nil),
		Fares:    fares,
		Geocoder: geocoder,
		Metrics:  metrics,
		Query: config.QueryConfig{
			DefaultLimit: 100, MaxLimit: 100, NearbyDefaultLimit: 50,
			DefaultRadius: 5000, MinRadius: 100, MaxRadius: 50000,
		},
		Info:   ServiceInfo{Name: "UIT-Go Trip Service", Version: "1.0.0", Store: "memory"},
		Checks: checks,
	})

	r := gin.New()
	r.GET("/", h.ServiceInfo)
	r.GET("/health", h.Health)
	r.GET("/ws", h.HandleWebSocket)
	r.POST("/fare-estimate", h.EstimateFare)
	r.GET("/geocode", h.Geocode)
	r.POST("/trip-requests", h.CreateTripRequest)
	r.GET("/trips/available", h.ListAvailableTrips)
	r.GET("/trips/near", h.ListTripsNear)
	r.GET("/trips/passenger/:passenger_id", h.ListPassengerTrips)
	r.GET("/trips/driver/:driver_id", h.ListDriverTrips)
	r.GET("/trips/:id", h.GetTrip)
	r.DELETE("/trips/:id", h.DeleteTrip)
	r.PUT("/trips/:id/assign-driver", h.AssignDriver)
	r.POST("/trips/:id/deny", h.DenyTrip)
	r.POST("/trips/:id/start", h.StartTrip)
	r.POST("/trips/:id/complete", h.CompleteTrip)
	r.POST("/trips/:id/cancel", h.CancelTrip)
	r.POST("/trips/:id/payment", h.AddPayment)
	r.PUT("/trips/:id/payment", h.UpdatePayment)
	r.POST("/trips/:id/rating", h.RateTrip)
	r.GET("/trips/:id/rating", h.GetRating)
	r.GET("/statistics/driver/:driver_id", h.DriverStatistics)
	r.GET("/statistics/passenger/:passenger_id", h.PassengerStatistics)

	return &server{engine: r, repo: repo, metrics: metrics}
}

func (s *server) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func tripRequest(passenger string) gin.H {
	return gin.H{
		"passenger_id": passenger,
		"pickup":       gin.H{"address": "Ben Thanh Market", "longitude": benThanh.Longitude, "latitude": benThanh.Latitude},
		"dropoff":      gin.H{"address": "Tan Son Nhat"},
		"vehicle_type": "CAR_4",
		"notes":        "gate 3",
	}
}

func (s *server) createTrip(t *testing.T, passenger string) *trip.Trip {
	t.Helper()
	w := s.do(t, http.MethodPost, "/trip-requests", tripRequest(passenger))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[*trip.Trip](t, w)
}

func TestCreateTripRequest(t *testing.T) {
	s := newServer(t, stubGeo{}, stubRouter{})

	created := s.createTrip(t, "p-1")

	assert.Equal(t, trip.StatusPending, created.Status)
	assert.Equal(t, 120000.0, created.Fare.Estimated)
	assert.Equal(t, tanSonNhat, created.Dropoff.Location.Coords(), "dropoff is geocoded")
	assert.Equal(t, "gate 3", created.Notes)
	require.Len(t, created.History, 1)
}

func TestCreateTripRequest_Errors(t *testing.T) {
	tests := []struct {
		name     string
		geocoder stubGeo
		router   stubRouter
		body     interface{}
		status   int
		code     string
	}{
		{
			name:   "missing passenger",
			body:   gin.H{"pickup": gin.H{"address": "a"}, "dropoff": gin.H{"address": "b"}, "vehicle_type": "CAR_4"},
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown vehicle type",
			body:   gin.H{"passenger_id": "p", "pickup": gin.H{"address": "a"}, "dropoff": gin.H{"address": "b"}, "vehicle_type": "BUS"},
			status: http.StatusBadRequest,
		},
		{
			name:   "latitude out of range",
			body:   gin.H{"passenger_id": "p", "pickup": gin.H{"latitude": 91, "longitude": 0}, "dropoff": gin.H{"address": "b"}, "vehicle_type": "CAR_4"},
			status: http.StatusBadRequest,
		},
		{
			name:   "place without address or coordinates",
			body:   gin.H{"passenger_id": "p", "pickup": gin.H{}, "dropoff": gin.H{"address": "b"}, "vehicle_type": "CAR_4"},
			status: http.StatusBadRequest,
			code:   "BAD_REQUEST",
		},
		{
			name:     "address not found",
			geocoder: stubGeo{err: geo.ErrNotFound},
			body:     tripRequest("p"),
			status:   http.StatusUnprocessableEntity,
			code:     "UNPROCESSABLE",
		},
		{
			name:   "no route",
			router: stubRouter{err: geo.ErrNoRoute},
			body:   tripRequest("p"),
			status: http.StatusUnprocessableEntity,
			code:   "UNPROCESSABLE",
		},
		{
			name:   "provider down",
			router: stubRouter{err: geo.ErrUpstream},
			body:   tripRequest("p"),
			status: http.StatusBadGateway,
			code:   "BAD_GATEWAY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(t, tt.geocoder, tt.router)
			w := s.do(t, http.MethodPost, "/trip-requests", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.code != "" {
				assert.Equal(t, tt.code, decode[map[string]string](t, w)["code"])
			}
		})
	}
}

func TestTripLifecycleEndpoints(t *testing.T) {
	s := newServer(t, stubGeo{}, stubRouter{})
	created := s.createTrip(t, "p-1")
	base := "/trips/" + created.ID

	w := s.do(t, http.MethodPut, base+"/assign-driver", gin.H{"driver_id": "d-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, trip.StatusAccepted, decode[TripActionView](t, w).Status)

	w = s.do(t, http.MethodPut, base+"/assign-driver", gin.H{"driver_id": "d-2"})
	assert.Equal(t, http.StatusNotFound, w.Code, "losing an assignment looks like not found")
	assert.Equal(t, "TRIP_UNAVAILABLE", decode[map[string]string](t, w)["code"])

	w = s.do(t, http.MethodPost, base+"/deny", gin.H{"driver_id": "d-2"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, base+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, base+"/rating", gin.H{"stars": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code, "not completed yet")
	assert.Equal(t, "INVALID_STATE", decode[map[string]string](t, w)["code"])

	w = s.do(t, http.MethodPost, base+"/complete?actual_fare=115000&discount=5000&tax=0", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	done := decode[TripActionView](t, w).Trip
	require.NotNil(t, done.Fare.Actual)
	assert.Equal(t, 115000.0, *done.Fare.Actual)

	w = s.do(t, http.MethodPost, base+"/rating", gin.H{"stars": 4, "comment": "smooth"})
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodPost, base+"/rating", gin.H{"stars": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code, "rated twice")

	w = s.do(t, http.MethodGet, base+"/rating", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 4, decode[trip.Rating](t, w).Stars)

	w = s.do(t, http.MethodPost, base+"/cancel", gin.H{"cancelled_by": "PASSENGER"})
	assert.Equal(t, http.StatusNotFound, w.Code, "completed trips cannot be cancelled")

	w = s.do(t, http.MethodGet, "/statistics/driver/d-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[trip.Statistics](t, w)
	assert.EqualValues(t, 1, st.CompletedTrips)
	assert.Equal(t, 115000.0, st.TotalRevenue)
	require.NotNil(t, st.AverageRating)
	assert.Equal(t, 4.0, *st.AverageRating)
}

// TripActionView mirrors dto.TripActionResponse for decoding.
type TripActionView struct {
	Message string      `json:"message"`
	TripID  string      `json:"trip_id"`
	Status  trip.Status `json:"status"`
	Trip    *trip.Trip  `json:"trip"`
}

func TestCompleteTrip_RejectsNegativeFare(t *testing.T) {
	s := newServer(t, stubGeo{}, stubRouter{})
	created := s.createTrip(t, "p-1")

	w := s.do(t, http.MethodPost, "/trips/"+created.ID+"/complete?actual_fare=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentEndpoints(t *testing.T) {
	s := newServer(t, stubGeo{}, stubRouter{})
	created := s.createTrip(t, "p-1")
	base := "/trips/" + created.ID + "/payment"

	w := s.do(t, http.MethodPut, base, gin.H{"status": "SUCCESS"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "no payment to update")

	w = s.do(t, http.MethodPost, base, gin.H{"method": "BITCOIN"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, base, gin.H{"method": "CARD", "transaction_id": "tx-1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, trip.PaymentPending, decode[TripActionView](t, w).Trip.Payment.Status)

	w = s.do(t, http.MethodPut, base, gin.H{"status": "SUCCESS"})
	require.Equal(t, http.StatusOK, w.Code)
	paid := decode[TripActionView](t, w).Trip.Payment
	assert.Equal(t, trip.PaymentSuccess, paid.Status)
	assert.Equal(t, "tx-1", paid.TransactionID)
	assert.NotNil(t, paid.PaidAt)
}

func TestCancelTrip(t *testing.T) {
	s := newServer(t, stubGeo{}, stubRouter{})
	created := s.createTrip(t, "p-1")
	base := "/trips/" + created.ID + "/cancel"

	w := s.do(t, http.MethodPost, base, gin.H{"cancelled_by": "ALIEN"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, base, gin.H{"cancelled_by": "PASSENGER", "reason": "changed plans"})
	require.Equal(t, http.StatusOK, w.Code)
	cancelled := decode[TripActionView](t, w).Trip
	assert.Equal(t, "changed plans", cancelled.Cancellation.Reason)

	w = s.do(t, http.MethodPost, base, gin.H{"cancelled_by": "DRIVER"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	got, err := s.repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Len(t, got.History, 2)
	assert.Equal(t, trip.CancelledByPassenger, got.Cancellation.CancelledBy)
}

func TestGetAndDeleteTrip(t *testing.T) {
	s := newServer(t, stubGeo{}, stubRouter{})
	created := s.createTrip(t, "p-1")

	w := s.do(t, http.MethodGet, "/trips/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.ID, decode[*trip.Trip](t, w).ID)

	w = s.do(t, http.MethodGet, "/trips/not-a-uuid", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/trips/"+created.ID+"/rating", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"No rating found for this trip","code":"NOT_FOUND"}`, w.Body.String())

	w = s.do(t, http.MethodDelete, "/trips/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodDelete, "/trips/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListEndpoints(t *testing.T) {
	s := newServer(t, stubGeo{}, stubRouter{})
	first := s.createTrip(t, "p-1")
	s.createTrip(t, "p-1")
	s.createTrip(t, "p-2")
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/trips/"+first.ID+"/assign-driver", gin.H{"driver_id": "d-1"}).Code)

	t.Run("passenger", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/trips/passenger/p-1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		list := decode[[]map[string]interface{}](t, w)
		require.Len(t, list, 2)
		assert.Equal(t, "Ben Thanh Market", list[0]["pickup_address"])
		assert.Contains(t, list[0], "estimated_fare")
		assert.NotContains(t, list[0], "history")
	})

	t.Run("paging", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/trips/passenger/p-1?skip=1&limit=1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		list := decode[[]dtoSummary](t, w)
		require.Len(t, list, 1)
	})

	t.Run("driver", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/trips/driver/d-1", nil)
		list := decode[[]dtoSummary](t, w)
		require.Len(t, list, 1)
		assert.Equal(t, first.ID, list[0].ID)
	})

	t.Run("available", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/trips/available", nil)
		list := decode[[]dtoSummary](t, w)
		assert.Len(t, list, 2)
		for _, item := range list {
			assert.NotEqual(t, first.ID, item.ID)
		}
	})

	t.Run("empty list is an array", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/trips/passenger/nobody", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, "[]", w.Body.String())
	})

	t.Run("near", func(t *testing.T) {
		path := fmt.Sprintf("/trips/near?longitude=%f&latitude=%f&max_distance=1000", benThanh.Longitude, benThanh.Latitude)
		w := s.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		list := decode[[]dtoSummary](t, w)
		assert.Len(t, list, 2)
		assert.NotContains(t, []string{list[0].ID, list[1].ID}, first.ID)
	})

	t.Run("bounds", func(t *testing.T) {
		for _, path := range []string{
			"/trips/available?limit=101",
			"/trips/available?skip=-1",
			"/trips/near?longitude=181&latitude=0",
			"/trips/near?latitude=0",
			"/trips/near?longitude=0&latitude=0&max_distance=50",
			"/trips/near?longitude=0&latitude=0&max_distance=50001",
		} {
			w := s.do(t, http.MethodGet, path, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, path)
		}
	})
}

type dtoSummary struct {
	ID     string      `json:"id"`
	Status trip.Status `json:"status"`
}

func TestEstimateFare(t *testing.T) {
	body := gin.H{
		"pickup":  gin.H{"longitude": benThanh.Longitude, "latitude": benThanh.Latitude},
		"dropoff": gin.H{"longitude": tanSonNhat.Longitude, "latitude": tanSonNhat.Latitude},
	}

	t.Run("all classes", func(t *testing.T) {
		s := newServer(t, stubGeo{}, stubRouter{})
		w := s.do(t, http.MethodPost, "/fare-estimate", body)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[struct {
			Estimates []pricing.Estimate `json:"estimates"`
		}](t, w)
		require.Len(t, resp.Estimates, 3)
		assert.Equal(t, vehicle.Motorbike, resp.Estimates[0].VehicleType)
		assert.Equal(t, 120000.0, resp.Estimates[1].EstimatedFare)
		assert.Equal(t, []string{"MOTORBIKE", "CAR_4", "CAR_7"}, s.metrics.fares)
	})

	t.Run("one class fails", func(t *testing.T) {
		s := newServer(t, stubGeo{}, stubRouter{err: geo.ErrNoRoute, failClass: vehicle.Motorbike})
		w := s.do(t, http.MethodPost, "/fare-estimate", body)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[map[string][]pricing.Estimate](t, w)["estimates"], 2)
	})

	t.Run("every class fails", func(t *testing.T) {
		s := newServer(t, stubGeo{}, stubRouter{err: geo.ErrUpstream})
		w := s.do(t, http.MethodPost, "/fare-estimate", body)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("missing dropoff", func(t *testing.T) {
		s := newServer(t, stubGeo{}, stubRouter{})
		w := s.do(t, http.MethodPost, "/fare-estimate", gin.H{"pickup": body["pickup"]})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGeocode(t *testing.T) {
	s := newServer(t, stubGeo{}, stubRouter{})
	w := s.do(t, http.MethodGet, "/geocode?address=Tan%20Son%20Nhat", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, tanSonNhat.Latitude, decode[map[string]interface{}](t, w)["latitude"])

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/geocode", nil).Code)

	down := newServer(t, stubGeo{err: fmt.Errorf("geocode: %w", geo.ErrUpstream)}, stubRouter{})
	w = down.do(t, http.MethodGet, "/geocode?address=x", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), "locationiq")
}

func TestServiceInfoAndHealth(t *testing.T) {
	healthy := HealthCheck{Name: "store", Check: func(context.Context) error { return nil }}
	broken := HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("dial tcp: refused") }}

	s := newServer(t, stubGeo{}, stubRouter{}, healthy)
	w := s.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "memory", decode[map[string]string](t, w)["database"])

	w = s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	s = newServer(t, stubGeo{}, stubRouter{}, healthy, broken)
	w = s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"unhealthy"`)
}

func TestHandleWebSocket_RejectsBadQuery(t *testing.T) {
	s := newServer(t, stubGeo{}, stubRouter{})
	for _, path := range []string{"/ws", "/ws?user_id=u", "/ws?user_id=u&user_type=rider"} {
		assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, path, nil).Code, path)
	}
	// valid query but no hub configured
	assert.Equal(t, http.StatusServiceUnavailable, s.do(t, http.MethodGet, "/ws?user_id=u&user_type=driver", nil).Code)
}

func TestMapError(t *testing.T) {
	refusedMissing := &trip.RefusedError{TripID: "x", Operation: "start", Outcome: trip.OutcomeNotFound}
	refusedGuard := &trip.RefusedError{TripID: "x", Operation: "start", Outcome: trip.OutcomePreconditionFailed, Current: trip.StatusPending}

	tests := []struct {
		err    error
		status int
		code   string
	}{
		{refusedMissing, http.StatusNotFound, "TRIP_UNAVAILABLE"},
		{refusedGuard, http.StatusNotFound, "TRIP_UNAVAILABLE"},
		{trip.ErrNotFound, http.StatusNotFound, "TRIP_UNAVAILABLE"},
		{fmt.Errorf("rate x: %w", trip.ErrInvalidState), http.StatusBadRequest, "INVALID_STATE"},
		{fmt.Errorf("compute route: %w", geo.ErrUpstream), http.StatusBadGateway, "BAD_GATEWAY"},
		{fmt.Errorf("compute route: %w", geo.ErrNoRoute), http.StatusUnprocessableEntity, "UNPROCESSABLE"},
		{pricing.ErrNoEstimates, http.StatusUnprocessableEntity, "UNPROCESSABLE"},
		{trip.ErrInvalidRating, http.StatusBadRequest, "BAD_REQUEST"},
		{errors.New("mongo: connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			appErr := mapError(tt.err)
			assert.Equal(t, tt.status, appErr.Status)
			assert.Equal(t, tt.code, appErr.Code)
		})
	}

	assert.Equal(t, mapError(refusedMissing).Message, mapError(refusedGuard).Message)
}
