package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/uitgo/trip-service/internal/domain/location"
	"github.com/uitgo/trip-service/internal/domain/trip"
)

// CollectionName is the collection trip documents live in.
const CollectionName = "trips"

// TripRepository stores trips as documents. Conditional updates are a single
// UpdateOne whose filter carries the guard.
type TripRepository struct {
	coll *mongo.Collection
}

// NewTripRepository creates a new MongoDB trip repository
func NewTripRepository(db *mongo.Database) *TripRepository {
	return &TripRepository{coll: db.Collection(CollectionName)}
}

// EnsureIndexes creates the geospatial index on the pickup point and the
// indexes backing the reverse-chronological listings.
func (r *TripRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "pickup.location", Value: "2dsphere"}}},
		{Keys: bson.D{{Key: "passenger_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "driver_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create trip indexes: %w", err)
	}
	return nil
}

func (r *TripRepository) Create(ctx context.Context, t *trip.Trip) error {
	if _, err := r.coll.InsertOne(ctx, t); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("trip %s already exists: %w", t.ID, err)
		}
		return fmt.Errorf("failed to insert trip: %w", err)
	}
	return nil
}

func (r *TripRepository) GetByID(ctx context.Context, id string) (*trip.Trip, error) {
	var t trip.Trip
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, trip.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	return &t, nil
}

func (r *TripRepository) ListByPassenger(ctx context.Context, passengerID string, page trip.Page) ([]*trip.Trip, error) {
	return r.list(ctx, bson.M{"passenger_id": passengerID}, page)
}

func (r *TripRepository) ListByDriver(ctx context.Context, driverID string, page trip.Page) ([]*trip.Trip, error) {
	return r.list(ctx, bson.M{"driver_id": driverID}, page)
}

func (r *TripRepository) ListPending(ctx context.Context, page trip.Page) ([]*trip.Trip, error) {
	return r.list(ctx, bson.M{"status": trip.StatusPending}, page)
}

// NearbyPending relies on $near, which already returns documents nearest first.
func (r *TripRepository) NearbyPending(ctx context.Context, center location.Coordinates, radiusMeters float64, limit int) ([]*trip.Trip, error) {
	filter := bson.M{
		"status": trip.StatusPending,
		"pickup.location": bson.M{
			"$near": bson.M{
				"$geometry":    location.NewGeoPoint(center),
				"$maxDistance": radiusMeters,
			},
		},
	}

	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, filter, opts)
}

func (r *TripRepository) Apply(ctx context.Context, id string, guard trip.Guard, change trip.Change) (bool, error) {
	res, err := r.coll.UpdateOne(ctx, guardFilter(id, guard), changeUpdate(change))
	if err != nil {
		return false, fmt.Errorf("failed to update trip: %w", err)
	}
	// Matched rather than modified: a guard that held is a success even if
	// the written values happened to be unchanged.
	return res.MatchedCount > 0, nil
}

type statsRow struct {
	Total         int64    `bson:"total"`
	Completed     int64    `bson:"completed"`
	Cancelled     int64    `bson:"cancelled"`
	Revenue       float64  `bson:"revenue"`
	AverageRating *float64 `bson:"average_rating"`
}

func (r *TripRepository) Stats(ctx context.Context, filter trip.StatsFilter) (*trip.Statistics, error) {
	cursor, err := r.coll.Aggregate(ctx, statsPipeline(filter))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate trips: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []statsRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode trip statistics: %w", err)
	}
	if len(rows) == 0 {
		return &trip.Statistics{}, nil
	}

	row := rows[0]
	return &trip.Statistics{
		TotalTrips:     row.Total,
		CompletedTrips: row.Completed,
		CancelledTrips: row.Cancelled,
		TotalRevenue:   row.Revenue,
		AverageRating:  row.AverageRating,
	}, nil
}

func (r *TripRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to delete trip: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func (r *TripRepository) Ping(ctx context.Context) error {
	return r.coll.Database().Client().Ping(ctx, readpref.Primary())
}

func (r *TripRepository) list(ctx context.Context, filter bson.M, page trip.Page) ([]*trip.Trip, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(page.Skip))
	if page.Limit > 0 {
		opts.SetLimit(int64(page.Limit))
	}
	return r.find(ctx, filter, opts)
}

func (r *TripRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*trip.Trip, error) {
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query trips: %w", err)
	}
	defer cursor.Close(ctx)

	trips := make([]*trip.Trip, 0)
	if err := cursor.All(ctx, &trips); err != nil {
		return nil, fmt.Errorf("failed to decode trips: %w", err)
	}
	return trips, nil
}

// guardFilter turns a guard into the UpdateOne filter.
func guardFilter(id string, g trip.Guard) bson.D {
	filter := bson.D{{Key: "_id", Value: id}}
	switch len(g.Statuses) {
	case 0:
	case 1:
		filter = append(filter, bson.E{Key: "status", Value: g.Statuses[0]})
	default:
		filter = append(filter, bson.E{Key: "status", Value: bson.M{"$in": g.Statuses}})
	}
	if g.DriverID != "" {
		filter = append(filter, bson.E{Key: "driver_id", Value: g.DriverID})
	}
	if g.RatingUnset {
		// matches both a missing and a null rating
		filter = append(filter, bson.E{Key: "rating", Value: nil})
	}
	if g.PaymentSet {
		filter = append(filter, bson.E{Key: "payment", Value: bson.M{"$type": "object"}})
	}
	return filter
}

// changeUpdate turns a change into a single $set pipeline stage. Values are
// wrapped in $literal so a string starting with "$" is never read as a path.
func changeUpdate(c trip.Change) mongo.Pipeline {
	set := bson.D{}
	lit := func(key string, v any) {
		set = append(set, bson.E{Key: key, Value: literal(v)})
	}
	if c.Status != "" {
		lit("status", c.Status)
	}
	if c.DriverID != nil {
		lit("driver_id", *c.DriverID)
	}
	if c.StartTime != nil {
		lit("startTime", *c.StartTime)
	}
	if c.EndTime != nil {
		lit("endTime", *c.EndTime)
	}
	if c.FinalFare != nil {
		lit("fare.actual", c.FinalFare.Actual)
		lit("fare.discount", c.FinalFare.Discount)
		lit("fare.tax", c.FinalFare.Tax)
	}
	if c.Payment != nil {
		lit("payment", c.Payment)
	}
	if p := c.PaymentPatch; p != nil {
		if p.Status != "" {
			lit("payment.status", p.Status)
		}
		if p.TransactionID != "" {
			lit("payment.transaction_id", p.TransactionID)
		}
		if p.PaidAt != nil {
			lit("payment.paid_at", *p.PaidAt)
		}
	}
	if c.Rating != nil {
		lit("rating", c.Rating)
	}
	if c.Cancellation != nil {
		lit("cancellation", c.Cancellation)
	}
	if c.History != nil {
		set = append(set, bson.E{Key: "history", Value: historyAppend(*c.History)})
	}
	return mongo.Pipeline{{{Key: "$set", Value: set}}}
}

func literal(v any) bson.D {
	return bson.D{{Key: "$literal", Value: v}}
}

// historyAppend appends e, stamped no earlier than the current last entry.
func historyAppend(e trip.HistoryEntry) bson.D {
	return bson.D{{Key: "$concatArrays", Value: bson.A{
		bson.D{{Key: "$ifNull", Value: bson.A{"$history", bson.A{}}}},
		bson.A{bson.D{
			{Key: "status", Value: literal(e.Status)},
			{Key: "timestamp", Value: bson.D{{Key: "$max", Value: bson.A{
				e.Timestamp,
				bson.D{{Key: "$arrayElemAt", Value: bson.A{"$history.timestamp", -1}}},
			}}}},
		}},
	}}}
}

// statsPipeline groups every matching trip into one row. $avg skips trips
// without a rating and yields null when none was rated.
func statsPipeline(f trip.StatsFilter) mongo.Pipeline {
	match := bson.D{}
	if f.DriverID != "" {
		match = append(match, bson.E{Key: "driver_id", Value: f.DriverID})
	}
	if f.PassengerID != "" {
		match = append(match, bson.E{Key: "passenger_id", Value: f.PassengerID})
	}

	isStatus := func(s trip.Status) bson.M {
		return bson.M{"$eq": bson.A{"$status", s}}
	}

	return mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.M{"$sum": 1}},
			{Key: "completed", Value: bson.M{"$sum": bson.M{"$cond": bson.A{isStatus(trip.StatusCompleted), 1, 0}}}},
			{Key: "cancelled", Value: bson.M{"$sum": bson.M{"$cond": bson.A{isStatus(trip.StatusCancelled), 1, 0}}}},
			{Key: "revenue", Value: bson.M{"$sum": bson.M{"$cond": bson.A{
				isStatus(trip.StatusCompleted),
				bson.M{"$ifNull": bson.A{"$fare.actual", 0}},
				0,
			}}}},
			{Key: "average_rating", Value: bson.M{"$avg": "$rating.stars"}},
		}}},
	}
}
