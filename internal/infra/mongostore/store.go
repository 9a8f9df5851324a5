// Package mongostore implements port.UserStore on MongoDB, one document per user.
// Every call goes through a circuit breaker; Save is a single ReplaceOne
// filtered on the expected version, so a rollover is committed atomically.
// Amounts are stored as Decimal128 through the registry in codec.go.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"github.com/finmate/finance-tracker-go/internal/domain"
	"github.com/finmate/finance-tracker-go/internal/infra/observability"
	"github.com/finmate/finance-tracker-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("mongostore")

// Store wraps the users collection.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
	cb         *gobreaker.CircuitBreaker
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// Connect opens a client, pings it, and binds the given collection.
func Connect(ctx context.Context, uri, dbName, collName string, cb *gobreaker.CircuitBreaker, metrics *observability.Metrics, logger *zap.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetRegistry(NewRegistry()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("connected to MongoDB",
		zap.String("database", dbName),
		zap.String("collection", collName),
	)

	return &Store{
		client:     client,
		collection: client.Database(dbName).Collection(collName),
		cb:         cb,
		metrics:    metrics,
		logger:     logger,
	}, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Find loads one user's document.
func (s *Store) Find(ctx context.Context, userID string) (*domain.UserFinance, error) {
	ctx, span := tracer.Start(ctx, "mongostore.Find")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	u, err := resilience.Execute(s.cb, func() (*domain.UserFinance, error) {
		var doc domain.UserFinance
		err := s.collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &domain.ErrNotFound{Resource: "user", ID: userID}
		}
		if err != nil {
			return nil, err
		}
		return &doc, nil
	})
	if err != nil {
		return nil, s.wrap("find", err)
	}
	return u, nil
}

// FindAll loads every user document.
func (s *Store) FindAll(ctx context.Context) ([]domain.UserFinance, error) {
	ctx, span := tracer.Start(ctx, "mongostore.FindAll")
	defer span.End()

	users, err := resilience.Execute(s.cb, func() ([]domain.UserFinance, error) {
		opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
		cursor, err := s.collection.Find(ctx, bson.M{}, opts)
		if err != nil {
			return nil, err
		}
		defer cursor.Close(ctx)

		var users []domain.UserFinance
		if err := cursor.All(ctx, &users); err != nil {
			return nil, err
		}
		return users, nil
	})
	if err != nil {
		return nil, s.wrap("find_all", err)
	}
	span.SetAttributes(attribute.Int("users.count", len(users)))
	return users, nil
}

// Create inserts a new document at version 1.
func (s *Store) Create(ctx context.Context, u *domain.UserFinance) error {
	ctx, span := tracer.Start(ctx, "mongostore.Create")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", u.ID))

	u.Version = 1
	_, err := resilience.Execute(s.cb, func() (struct{}, error) {
		_, err := s.collection.InsertOne(ctx, u)
		if mongo.IsDuplicateKeyError(err) {
			return struct{}{}, &domain.ErrConflict{Message: "finance document already exists for user " + u.ID}
		}
		return struct{}{}, err
	})
	if err != nil {
		u.Version = 0
		return s.wrap("create", err)
	}
	return nil
}

// Save replaces the document only if its stored version still equals u.Version.
func (s *Store) Save(ctx context.Context, u *domain.UserFinance) error {
	ctx, span := tracer.Start(ctx, "mongostore.Save")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", u.ID),
		attribute.Int64("user.version", u.Version),
	)

	expected := u.Version
	next := u.Clone()
	next.Version = expected + 1

	_, err := resilience.Execute(s.cb, func() (struct{}, error) {
		res, err := s.collection.ReplaceOne(ctx, bson.M{"_id": u.ID, "version": expected}, next)
		if err != nil {
			return struct{}{}, err
		}
		if res.MatchedCount == 0 {
			n, err := s.collection.CountDocuments(ctx, bson.M{"_id": u.ID})
			if err != nil {
				return struct{}{}, err
			}
			if n == 0 {
				return struct{}{}, &domain.ErrNotFound{Resource: "user", ID: u.ID}
			}
			return struct{}{}, &domain.ErrVersionConflict{UserID: u.ID, Expected: expected}
		}
		return struct{}{}, nil
	})
	if err != nil {
		return s.wrap("save", err)
	}
	u.Version = next.Version
	return nil
}

// Ping checks connectivity for /healthz.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// wrap passes business errors through and turns driver failures into
// *domain.ErrPersistence.
func (s *Store) wrap(op string, err error) error {
	var notFound *domain.ErrNotFound
	var conflict *domain.ErrVersionConflict
	var dup *domain.ErrConflict
	var open *domain.ErrCircuitOpen
	switch {
	case errors.As(err, &notFound), errors.As(err, &conflict), errors.As(err, &dup):
		return err
	case errors.As(err, &open):
		s.metrics.IncrStoreError(op)
		return err
	}

	s.metrics.IncrStoreError(op)
	s.logger.Error("mongostore: operation failed", zap.String("op", op), zap.Error(err))
	return &domain.ErrPersistence{Op: op, Err: err}
}
