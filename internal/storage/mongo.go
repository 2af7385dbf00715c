package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/authd/internal/auth"
)

// MongoConfig is read from the environment at startup.
type MongoConfig struct {
	URL            string        `env:"MONGO_URL"`
	Database       string        `env:"MONGO_DATABASE" envDefault:"authd"`
	ConnectTimeout time.Duration `env:"MONGO_CONNECT_TIMEOUT" envDefault:"10s"`
}

// Mongo is the MongoDB-backed UserStore. The original deployment of this
// service kept users in MongoDB; the adapter preserves that option.
type Mongo struct {
	client *mongo.Client
	users  *mongo.Collection
}

// userDoc is the BSON shape of a user record.
type userDoc struct {
	ID              string    `bson:"_id"`
	Email           string    `bson:"email"`
	Name            string    `bson:"name"`
	PasswordHash    []byte    `bson:"password_hash,omitempty"`
	ProviderSubject string    `bson:"provider_subject,omitempty"`
	CreatedAt       time.Time `bson:"created_at"`
}

// NewMongo connects, pings and ensures the unique email index that backs
// the atomic duplicate detection on insert.
func NewMongo(ctx context.Context, cfg MongoConfig) (*Mongo, error) {
	client, err := mongo.Connect(
		options.Client().
			ApplyURI(cfg.URL).
			SetConnectTimeout(cfg.ConnectTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("storage: ping mongo: %w", err)
	}

	users := client.Database(cfg.Database).Collection("users")
	_, err = users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("storage: ensure email index: %w", err)
	}

	return &Mongo{client: client, users: users}, nil
}

func (m *Mongo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return m.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

func (m *Mongo) FindByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	return m.findOne(ctx, bson.D{{Key: "_id", Value: id.String()}})
}

func (m *Mongo) Insert(ctx context.Context, user *auth.User) error {
	_, err := m.users.InsertOne(ctx, toDoc(user))
	if mongo.IsDuplicateKeyError(err) {
		return auth.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("storage: insert user: %w", err)
	}
	return nil
}

func (m *Mongo) Update(ctx context.Context, user *auth.User) error {
	res, err := m.users.ReplaceOne(ctx, bson.D{{Key: "_id", Value: user.ID.String()}}, toDoc(user))
	if mongo.IsDuplicateKeyError(err) {
		return auth.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("storage: update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

// Healthcheck reports whether the database is reachable.
func (m *Mongo) Healthcheck(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

// Close disconnects the underlying client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *Mongo) findOne(ctx context.Context, filter bson.D) (*auth.User, error) {
	var doc userDoc
	err := m.users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: find user: %w", err)
	}
	return fromDoc(doc)
}

func toDoc(user *auth.User) userDoc {
	return userDoc{
		ID:              user.ID.String(),
		Email:           user.Email,
		Name:            user.Name,
		PasswordHash:    user.PasswordHash,
		ProviderSubject: user.ProviderSubject,
		CreatedAt:       user.CreatedAt,
	}
}

func fromDoc(doc userDoc) (*auth.User, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("storage: malformed user id %q: %w", doc.ID, err)
	}
	return &auth.User{
		ID:              id,
		Email:           doc.Email,
		Name:            doc.Name,
		PasswordHash:    doc.PasswordHash,
		ProviderSubject: doc.ProviderSubject,
		CreatedAt:       doc.CreatedAt,
	}, nil
}

var _ auth.UserStore = (*Mongo)(nil)
