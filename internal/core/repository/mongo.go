package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/duynhne/identity-service/internal/core/domain"
)

// Mongo collection names.
const (
	collUsers          = "users"
	collSessions       = "sessions"
	collPasswordResets = "password_resets"
)

// EnsureMongoIndexes creates the unique and TTL indexes the Mongo repositories
// rely on. TTL indexes with expireAfterSeconds=0 let the server evict sessions
// and reset records once expires_at passes; reads still compare expires_at.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	specs := map[string][]mongo.IndexModel{
		collUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName(constraintUsersEmail)},
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true).SetName(constraintUsersUsername)},
		},
		collSessions: {
			{Keys: bson.D{{Key: "token_hash", Value: 1}}, Options: options.Index().SetUnique(true).SetName("sessions_token_hash_key")},
			{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetName("sessions_user_id_idx")},
			{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0).SetName("sessions_expires_at_ttl")},
		},
		collPasswordResets: {
			{Keys: bson.D{{Key: "email", Value: 1}, {Key: "code", Value: 1}, {Key: "used", Value: 1}}, Options: options.Index().SetName("password_resets_lookup_idx")},
			{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0).SetName("password_resets_expires_at_ttl")},
		},
	}

	for coll, models := range specs {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return oops.Code("MONGO_INDEX_FAILED").
				With("collection", coll).
				Wrap(mapMongoErr(err))
		}
	}
	return nil
}

// mapMongoErr translates driver errors into domain errors.
func mapMongoErr(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		msg := err.Error()
		switch {
		case strings.Contains(msg, constraintUsersEmail):
			return domain.ErrDuplicateEmail
		case strings.Contains(msg, constraintUsersUsername):
			return domain.ErrDuplicateUsername
		default:
			return domain.ErrDuplicate
		}
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	return err
}

type userDoc struct {
	ID           string    `bson:"_id"`
	FirstName    string    `bson:"first_name"`
	LastName     string    `bson:"last_name"`
	Username     string    `bson:"username"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	Role         string    `bson:"role"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func (d userDoc) toDomain() *domain.User {
	return &domain.User{
		ID:           d.ID,
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Role:         domain.Role(d.Role),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// MongoUserRepository implements domain.UserRepository on MongoDB.
type MongoUserRepository struct {
	db   *mongo.Database
	coll *mongo.Collection
}

func NewMongoUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{db: db, coll: db.Collection(collUsers)}
}

func (r *MongoUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (r *MongoUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

func (r *MongoUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, bson.D{{Key: "username", Value: username}})
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.D) (*domain.User, error) {
	var doc userDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, oops.Code("USER_QUERY_FAILED").
			With("operation", "find user").
			Wrap(mapMongoErr(err))
	}
	return doc.toDomain(), nil
}

func (r *MongoUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, bson.D{{Key: "email", Value: email}})
}

func (r *MongoUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, bson.D{{Key: "username", Value: username}})
}

func (r *MongoUserRepository) exists(ctx context.Context, filter bson.D) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, oops.Code("USER_EXISTS_FAILED").
			With("operation", "count users").
			Wrap(mapMongoErr(err))
	}
	return n > 0, nil
}

func (r *MongoUserRepository) Create(ctx context.Context, u *domain.User) error {
	doc := userDoc{
		ID:           u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", u.Username).
			Wrap(mapMongoErr(err))
	}
	return nil
}

func (r *MongoUserRepository) UpdatePassword(ctx context.Context, email, passwordHash string, updatedAt time.Time) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "email", Value: email}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "password_hash", Value: passwordHash},
			{Key: "updated_at", Value: updatedAt},
		}}},
	)
	if err != nil {
		return oops.Code("USER_UPDATE_PASSWORD_FAILED").
			With("operation", "update password").
			Wrap(mapMongoErr(err))
	}
	if res.MatchedCount == 0 {
		return oops.Code("USER_NOT_FOUND").Wrap(domain.ErrNotFound)
	}
	return nil
}

// Ping checks database connectivity.
func (r *MongoUserRepository) Ping(ctx context.Context) error {
	if err := r.db.Client().Ping(ctx, nil); err != nil {
		return oops.Code("DB_PING_FAILED").Wrap(mapMongoErr(err))
	}
	return nil
}

type sessionDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	TokenHash string    `bson:"token_hash"`
	ExpiresAt time.Time `bson:"expires_at"`
	CreatedAt time.Time `bson:"created_at"`
}

// MongoSessionRepository implements domain.SessionRepository on MongoDB.
type MongoSessionRepository struct {
	coll *mongo.Collection
}

func NewMongoSessionRepository(db *mongo.Database) *MongoSessionRepository {
	return &MongoSessionRepository{coll: db.Collection(collSessions)}
}

func (r *MongoSessionRepository) Create(ctx context.Context, s *domain.Session) error {
	doc := sessionDoc{
		ID:        s.ID,
		UserID:    s.UserID,
		TokenHash: s.TokenHash,
		ExpiresAt: s.ExpiresAt,
		CreatedAt: s.CreatedAt,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("user_id", s.UserID).
			Wrap(mapMongoErr(err))
	}
	return nil
}

func (r *MongoSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	var doc sessionDoc
	err := r.coll.FindOne(ctx, bson.D{{Key: "token_hash", Value: tokenHash}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "find session by token hash").
			Wrap(mapMongoErr(err))
	}
	return &domain.Session{
		ID:        doc.ID,
		UserID:    doc.UserID,
		TokenHash: doc.TokenHash,
		ExpiresAt: doc.ExpiresAt,
		CreatedAt: doc.CreatedAt,
	}, nil
}

func (r *MongoSessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	if _, err := r.coll.DeleteOne(ctx, bson.D{{Key: "token_hash", Value: tokenHash}}); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session by token hash").
			Wrap(mapMongoErr(err))
	}
	return nil
}

func (r *MongoSessionRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.D{{Key: "user_id", Value: userID}})
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_BY_USER_FAILED").
			With("operation", "delete sessions by user").
			With("user_id", userID).
			Wrap(mapMongoErr(err))
	}
	return res.DeletedCount, nil
}

func (r *MongoSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.D{{Key: "expires_at", Value: bson.D{{Key: "$lte", Value: now}}}})
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired sessions").
			Wrap(mapMongoErr(err))
	}
	return res.DeletedCount, nil
}

type resetDoc struct {
	ID        string    `bson:"_id"`
	Email     string    `bson:"email"`
	Code      string    `bson:"code"`
	ExpiresAt time.Time `bson:"expires_at"`
	Used      bool      `bson:"used"`
	CreatedAt time.Time `bson:"created_at"`
}

func (d resetDoc) toDomain() domain.PasswordResetRecord {
	return domain.PasswordResetRecord{
		ID:        d.ID,
		Email:     d.Email,
		Code:      d.Code,
		ExpiresAt: d.ExpiresAt,
		Used:      d.Used,
		CreatedAt: d.CreatedAt,
	}
}

// MongoResetRepository implements domain.PasswordResetRepository on MongoDB.
type MongoResetRepository struct {
	coll *mongo.Collection
}

func NewMongoResetRepository(db *mongo.Database) *MongoResetRepository {
	return &MongoResetRepository{coll: db.Collection(collPasswordResets)}
}

func (r *MongoResetRepository) Create(ctx context.Context, rec *domain.PasswordResetRecord) error {
	doc := resetDoc{
		ID:        rec.ID,
		Email:     rec.Email,
		Code:      rec.Code,
		ExpiresAt: rec.ExpiresAt,
		Used:      rec.Used,
		CreatedAt: rec.CreatedAt,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return oops.Code("RESET_CREATE_FAILED").
			With("operation", "insert password reset").
			Wrap(mapMongoErr(err))
	}
	return nil
}

func liveFilter(email, code string, now time.Time) bson.D {
	return bson.D{
		{Key: "email", Value: email},
		{Key: "code", Value: code},
		{Key: "used", Value: false},
		{Key: "expires_at", Value: bson.D{{Key: "$gt", Value: now}}},
	}
}

func (r *MongoResetRepository) FindLive(ctx context.Context, email, code string, now time.Time) (*domain.PasswordResetRecord, error) {
	var doc resetDoc
	err := r.coll.FindOne(ctx, liveFilter(email, code, now),
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, oops.Code("RESET_FIND_FAILED").
			With("operation", "find live password reset").
			Wrap(mapMongoErr(err))
	}
	rec := doc.toDomain()
	return &rec, nil
}

func (r *MongoResetRepository) ConsumeLive(ctx context.Context, email, code string, now time.Time) (bool, error) {
	res, err := r.coll.UpdateMany(ctx, liveFilter(email, code, now),
		bson.D{{Key: "$set", Value: bson.D{{Key: "used", Value: true}}}},
	)
	if err != nil {
		return false, oops.Code("RESET_CONSUME_FAILED").
			With("operation", "consume password reset").
			Wrap(mapMongoErr(err))
	}
	return res.ModifiedCount > 0, nil
}

func (r *MongoResetRepository) ListByEmail(ctx context.Context, email string) ([]domain.PasswordResetRecord, error) {
	cur, err := r.coll.Find(ctx, bson.D{{Key: "email", Value: email}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	)
	if err != nil {
		return nil, oops.Code("RESET_LIST_FAILED").
			With("operation", "list password resets").
			Wrap(mapMongoErr(err))
	}

	var docs []resetDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, oops.Code("RESET_LIST_FAILED").
			With("operation", "decode password resets").
			Wrap(mapMongoErr(err))
	}

	out := make([]domain.PasswordResetRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (r *MongoResetRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.D{{Key: "expires_at", Value: bson.D{{Key: "$lte", Value: now}}}})
	if err != nil {
		return 0, oops.Code("RESET_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired password resets").
			Wrap(mapMongoErr(err))
	}
	return res.DeletedCount, nil
}
