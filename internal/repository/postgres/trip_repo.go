package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/uitgo/trip-service/internal/domain/location"
	"github.com/uitgo/trip-service/internal/domain/trip"
)

const tripColumns = `id, passenger_id, driver_id, status, vehicle_type,
	pickup_address, ST_X(pickup_location::geometry), ST_Y(pickup_location::geometry),
	dropoff_address, ST_X(dropoff_location::geometry), ST_Y(dropoff_location::geometry),
	route_info, fare_estimated, fare_actual, fare_discount, fare_tax,
	payment, rating, cancellation, history, notes, created_at, start_time, end_time`

// TripRepository is a PostgreSQL/PostGIS implementation of trip.Repository.
// Sub-records and history are JSONB; Apply is one guarded UPDATE.
type TripRepository struct {
	q Querier
}

// NewTripRepository creates a new PostgreSQL trip repository.
func NewTripRepository(db *sql.DB) *TripRepository {
	return &TripRepository{q: db}
}

// NewTripRepositoryWithTx creates a trip repository bound to a transaction.
func NewTripRepositoryWithTx(tx *sql.Tx) *TripRepository {
	return &TripRepository{q: tx}
}

// Create persists a new trip.
func (r *TripRepository) Create(ctx context.Context, t *trip.Trip) error {
	query := `
		INSERT INTO trips (id, passenger_id, driver_id, status, vehicle_type,
			pickup_address, pickup_location, dropoff_address, dropoff_location,
			route_info, fare_estimated, fare_actual, fare_discount, fare_tax,
			payment, rating, cancellation, history, notes, created_at, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5,
			$6, ST_SetSRID(ST_MakePoint($7, $8), 4326)::geography,
			$9, ST_SetSRID(ST_MakePoint($10, $11), 4326)::geography,
			$12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
	`

	routeInfo, err := nullJSON(t.RouteInfo)
	if err != nil {
		return err
	}
	payment, err := nullJSON(t.Payment)
	if err != nil {
		return err
	}
	rating, err := nullJSON(t.Rating)
	if err != nil {
		return err
	}
	cancellation, err := nullJSON(t.Cancellation)
	if err != nil {
		return err
	}
	history, err := json.Marshal(historyOrEmpty(t.History))
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	pickup, dropoff := t.Pickup.Location.Coords(), t.Dropoff.Location.Coords()
	_, err = r.q.ExecContext(ctx, query,
		t.ID, t.PassengerID, t.DriverID, t.Status, t.VehicleType,
		t.Pickup.Address, pickup.Longitude, pickup.Latitude,
		t.Dropoff.Address, dropoff.Longitude, dropoff.Latitude,
		routeInfo, t.Fare.Estimated, t.Fare.Actual, t.Fare.Discount, t.Fare.Tax,
		payment, rating, cancellation, string(history), t.Notes, t.CreatedAt, t.StartTime, t.EndTime,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("trip %s already exists: %w", t.ID, err)
		}
		return fmt.Errorf("failed to insert trip: %w", err)
	}
	return nil
}

// GetByID retrieves a trip by ID.
func (r *TripRepository) GetByID(ctx context.Context, id string) (*trip.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1`

	t, err := scanTrip(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, trip.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	return t, nil
}

func (r *TripRepository) ListByPassenger(ctx context.Context, passengerID string, page trip.Page) ([]*trip.Trip, error) {
	return r.list(ctx, "passenger_id = $1", passengerID, page)
}

func (r *TripRepository) ListByDriver(ctx context.Context, driverID string, page trip.Page) ([]*trip.Trip, error) {
	return r.list(ctx, "driver_id = $1", driverID, page)
}

func (r *TripRepository) ListPending(ctx context.Context, page trip.Page) ([]*trip.Trip, error) {
	return r.list(ctx, "status = $1", string(trip.StatusPending), page)
}

// NearbyPending filters with ST_DWithin so the GIST index is used, then
// orders by geodesic distance.
func (r *TripRepository) NearbyPending(ctx context.Context, center location.Coordinates, radiusMeters float64, limit int) ([]*trip.Trip, error) {
	query := `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE status = $1
			AND ST_DWithin(pickup_location, ST_SetSRID(ST_MakePoint($2, $3), 4326)::geography, $4)
		ORDER BY ST_Distance(pickup_location, ST_SetSRID(ST_MakePoint($2, $3), 4326)::geography) ASC
		LIMIT $5
	`
	return r.query(ctx, query, string(trip.StatusPending), center.Longitude, center.Latitude, radiusMeters, limitArg(limit))
}

// Apply runs one UPDATE whose WHERE clause carries the guard.
func (r *TripRepository) Apply(ctx context.Context, id string, guard trip.Guard, change trip.Change) (bool, error) {
	query, args, err := buildUpdate(id, guard, change)
	if err != nil {
		return false, err
	}

	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update trip: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return rows > 0, nil
}

// Stats aggregates matching trips in one query. AVG over no rated rows is NULL.
func (r *TripRepository) Stats(ctx context.Context, filter trip.StatsFilter) (*trip.Statistics, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'COMPLETED'),
			COUNT(*) FILTER (WHERE status = 'CANCELLED'),
			COALESCE(SUM(fare_actual) FILTER (WHERE status = 'COMPLETED'), 0),
			AVG((rating->>'stars')::numeric)::double precision
		FROM trips
		WHERE ($1 = '' OR driver_id = $1) AND ($2 = '' OR passenger_id = $2)
	`

	var stats trip.Statistics
	var avg sql.NullFloat64
	err := r.q.QueryRowContext(ctx, query, filter.DriverID, filter.PassengerID).Scan(
		&stats.TotalTrips,
		&stats.CompletedTrips,
		&stats.CancelledTrips,
		&stats.TotalRevenue,
		&avg,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate trips: %w", err)
	}
	if avg.Valid {
		stats.AverageRating = &avg.Float64
	}
	return &stats, nil
}

// Delete removes a trip regardless of its status.
func (r *TripRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM trips WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete trip: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return rows > 0, nil
}

func (r *TripRepository) Ping(ctx context.Context) error {
	var one int
	return r.q.QueryRowContext(ctx, `SELECT 1`).Scan(&one)
}

func (r *TripRepository) list(ctx context.Context, where string, value string, page trip.Page) ([]*trip.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE ` + where + `
		ORDER BY created_at DESC, id DESC
		OFFSET $2 LIMIT $3`
	return r.query(ctx, query, value, page.Skip, limitArg(page.Limit))
}

func (r *TripRepository) query(ctx context.Context, query string, args ...any) ([]*trip.Trip, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trips: %w", err)
	}
	defer rows.Close()

	trips := make([]*trip.Trip, 0)
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trip: %w", err)
		}
		trips = append(trips, t)
	}
	return trips, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrip(s scanner) (*trip.Trip, error) {
	var (
		t                          trip.Trip
		pickupLon, pickupLat       float64
		dropoffLon, dropoffLat     float64
		routeInfo, payment, rating []byte
		cancellation, history      []byte
		actual, discount, tax      sql.NullFloat64
		startTime, endTime         sql.NullTime
	)

	err := s.Scan(
		&t.ID, &t.PassengerID, &t.DriverID, &t.Status, &t.VehicleType,
		&t.Pickup.Address, &pickupLon, &pickupLat,
		&t.Dropoff.Address, &dropoffLon, &dropoffLat,
		&routeInfo, &t.Fare.Estimated, &actual, &discount, &tax,
		&payment, &rating, &cancellation, &history, &t.Notes, &t.CreatedAt, &startTime, &endTime,
	)
	if err != nil {
		return nil, err
	}

	t.Pickup.Location = location.NewGeoPoint(location.Coordinates{Longitude: pickupLon, Latitude: pickupLat})
	t.Dropoff.Location = location.NewGeoPoint(location.Coordinates{Longitude: dropoffLon, Latitude: dropoffLat})
	t.Fare.Actual = nullFloat(actual)
	t.Fare.Discount = nullFloat(discount)
	t.Fare.Tax = nullFloat(tax)
	if startTime.Valid {
		t.StartTime = &startTime.Time
	}
	if endTime.Valid {
		t.EndTime = &endTime.Time
	}

	if err := decodeJSON(routeInfo, &t.RouteInfo); err != nil {
		return nil, err
	}
	if err := decodeJSON(payment, &t.Payment); err != nil {
		return nil, err
	}
	if err := decodeJSON(rating, &t.Rating); err != nil {
		return nil, err
	}
	if err := decodeJSON(cancellation, &t.Cancellation); err != nil {
		return nil, err
	}
	if err := decodeJSON(history, &t.History); err != nil {
		return nil, err
	}
	return &t, nil
}

// buildUpdate renders a guarded UPDATE. Placeholders are numbered in the
// order values are bound.
func buildUpdate(id string, g trip.Guard, c trip.Change) (string, []any, error) {
	var (
		sets  []string
		where []string
		args  []any
	)
	bind := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	bindJSON := func(v any) (string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to encode update: %w", err)
		}
		return bind(string(b)) + "::jsonb", nil
	}

	if c.Status != "" {
		sets = append(sets, "status = "+bind(string(c.Status)))
	}
	if c.DriverID != nil {
		sets = append(sets, "driver_id = "+bind(*c.DriverID))
	}
	if c.StartTime != nil {
		sets = append(sets, "start_time = "+bind(*c.StartTime))
	}
	if c.EndTime != nil {
		sets = append(sets, "end_time = "+bind(*c.EndTime))
	}
	if c.FinalFare != nil {
		sets = append(sets,
			"fare_actual = "+bind(c.FinalFare.Actual),
			"fare_discount = "+bind(c.FinalFare.Discount),
			"fare_tax = "+bind(c.FinalFare.Tax),
		)
	}
	if c.Payment != nil {
		p, err := bindJSON(c.Payment)
		if err != nil {
			return "", nil, err
		}
		sets = append(sets, "payment = "+p)
	}
	if c.PaymentPatch != nil {
		patch := map[string]any{}
		if c.PaymentPatch.Status != "" {
			patch["status"] = c.PaymentPatch.Status
		}
		if c.PaymentPatch.TransactionID != "" {
			patch["transaction_id"] = c.PaymentPatch.TransactionID
		}
		if c.PaymentPatch.PaidAt != nil {
			patch["paid_at"] = *c.PaymentPatch.PaidAt
		}
		p, err := bindJSON(patch)
		if err != nil {
			return "", nil, err
		}
		sets = append(sets, "payment = payment || "+p)
	}
	if c.Rating != nil {
		p, err := bindJSON(c.Rating)
		if err != nil {
			return "", nil, err
		}
		sets = append(sets, "rating = "+p)
	}
	if c.Cancellation != nil {
		p, err := bindJSON(c.Cancellation)
		if err != nil {
			return "", nil, err
		}
		sets = append(sets, "cancellation = "+p)
	}
	if c.History != nil {
		// never earlier than the last stored entry
		sets = append(sets, "history = history || jsonb_build_array(jsonb_build_object("+
			"'status', "+bind(string(c.History.Status))+"::text, "+
			"'timestamp', GREATEST("+bind(c.History.Timestamp)+"::timestamptz, (history->-1->>'timestamp')::timestamptz)))")
	}
	if len(sets) == 0 {
		return "", nil, errors.New("empty trip update")
	}

	where = append(where, "id = "+bind(id))
	switch len(g.Statuses) {
	case 0:
	case 1:
		where = append(where, "status = "+bind(string(g.Statuses[0])))
	default:
		statuses := make([]string, len(g.Statuses))
		for i, s := range g.Statuses {
			statuses[i] = string(s)
		}
		where = append(where, "status = ANY("+bind(pq.Array(statuses))+")")
	}
	if g.DriverID != "" {
		where = append(where, "driver_id = "+bind(g.DriverID))
	}
	if g.RatingUnset {
		where = append(where, "rating IS NULL")
	}
	if g.PaymentSet {
		where = append(where, "payment IS NOT NULL")
	}

	query := "UPDATE trips SET " + strings.Join(sets, ", ") + " WHERE " + strings.Join(where, " AND ")
	return query, args, nil
}

// nullJSON encodes v for a JSONB column; a nil pointer becomes SQL NULL.
func nullJSON[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode trip field: %w", err)
	}
	return string(b), nil
}

func decodeJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to decode trip field: %w", err)
	}
	return nil
}

func historyOrEmpty(h []trip.HistoryEntry) []trip.HistoryEntry {
	if h == nil {
		return []trip.HistoryEntry{}
	}
	return h
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// limitArg maps a non-positive limit to NULL, which Postgres treats as LIMIT ALL.
func limitArg(limit int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(limit), Valid: limit > 0}
}
