package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"simple-bank/internal/domain"
	"simple-bank/internal/repository"
)

const (
	usersCollection        = "users"
	emailIndexName         = "email_unique"
	accountNumberIndexName = "account_number_unique"
)

type userDocument struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	Name          string             `bson:"name"`
	Email         string             `bson:"email"`
	PasswordHash  string             `bson:"password"`
	BalanceCents  int64              `bson:"balance_cents"`
	AccountType   string             `bson:"account_type"`
	AccountNumber string             `bson:"account_number"`
	PhoneNumber   string             `bson:"phone_number"`
	Role          string             `bson:"role"`
	CreatedAt     time.Time          `bson:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at"`
}

// UserRepository stores user records as documents in a single collection.
type UserRepository struct {
	users *mongo.Collection
}

var _ repository.UserRepository = (*UserRepository)(nil)

// Connect dials the cluster and verifies it is reachable.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

func NewUserRepository(client *mongo.Client, database string) *UserRepository {
	return &UserRepository{users: client.Database(database).Collection(usersCollection)}
}

// Init creates the uniqueness indexes on email and account number.
func (r *UserRepository) Init(ctx context.Context) error {
	_, err := r.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(emailIndexName),
		},
		{
			Keys:    bson.D{{Key: "account_number", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(accountNumberIndexName),
		},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	now := time.Now().UTC()
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	doc := userDocument{
		Name:          user.Name,
		Email:         user.Email,
		PasswordHash:  user.PasswordHash,
		AccountType:   string(user.AccountType),
		AccountNumber: user.AccountNumber,
		PhoneNumber:   user.PhoneNumber,
		Role:          string(user.Role),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	res, err := r.users.InsertOne(ctx, doc)
	if err != nil {
		return translateWriteError("insert user", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		doc.ID = oid
	}
	*user = *doc.toDomain()
	return nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var doc userDocument
	if err := r.users.FindOne(ctx, bson.M{"email": email}).Decode(&doc); err != nil {
		return nil, translateReadError("find user", err)
	}
	return doc.toDomain(), nil
}

func (r *UserRepository) FindManyByEmail(ctx context.Context, email string) ([]domain.User, error) {
	return r.find(ctx, bson.M{"email": email})
}

func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	return r.find(ctx, bson.M{})
}

func (r *UserRepository) AccountNumberExists(ctx context.Context, accountNumber string) (bool, error) {
	n, err := r.users.CountDocuments(ctx, bson.M{"account_number": accountNumber}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("%w: count account numbers: %v", domain.ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

func (r *UserRepository) UpdateByEmail(ctx context.Context, email string, fields domain.UserUpdate) (*domain.User, error) {
	if fields.Empty() {
		return r.FindByEmail(ctx, email)
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	if fields.Name != nil {
		set["name"] = *fields.Name
	}
	if fields.PhoneNumber != nil {
		set["phone_number"] = *fields.PhoneNumber
	}
	if fields.AccountType != nil {
		set["account_type"] = string(*fields.AccountType)
	}
	if fields.AccountNumber != nil {
		set["account_number"] = *fields.AccountNumber
	}
	if fields.Role != nil {
		set["role"] = string(*fields.Role)
	}

	var doc userDocument
	err := r.users.FindOneAndUpdate(ctx,
		bson.M{"email": email},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, translateWriteError("update user", err)
		}
		return nil, translateReadError("update user", err)
	}
	return doc.toDomain(), nil
}

func (r *UserRepository) Deposit(ctx context.Context, email string, amount decimal.Decimal) (*domain.User, error) {
	cents, err := domain.ToCents(amount)
	if err != nil {
		return nil, err
	}

	var doc userDocument
	err = r.users.FindOneAndUpdate(ctx,
		bson.M{"email": email, "balance_cents": bson.M{"$lte": domain.MaxBalanceCents - cents}},
		bson.M{
			"$inc": bson.M{"balance_cents": cents},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, findErr := r.FindByEmail(ctx, email); findErr != nil {
			return nil, findErr
		}
		return nil, domain.ErrBalanceLimit
	}
	if err != nil {
		return nil, translateReadError("deposit", err)
	}
	return doc.toDomain(), nil
}

func (r *UserRepository) Withdraw(ctx context.Context, email string, amount decimal.Decimal) (*domain.User, error) {
	cents, err := domain.ToCents(amount)
	if err != nil {
		return nil, err
	}

	var doc userDocument
	err = r.users.FindOneAndUpdate(ctx,
		bson.M{"email": email, "balance_cents": bson.M{"$gte": cents}},
		bson.M{
			"$inc": bson.M{"balance_cents": -cents},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, findErr := r.FindByEmail(ctx, email); findErr != nil {
			return nil, findErr
		}
		return nil, domain.ErrInsufficientFunds
	}
	if err != nil {
		return nil, translateReadError("withdraw", err)
	}
	return doc.toDomain(), nil
}

func (r *UserRepository) find(ctx context.Context, filter bson.M) ([]domain.User, error) {
	cur, err := r.users.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("%w: find users: %v", domain.ErrStoreUnavailable, err)
	}
	defer cur.Close(ctx)

	users := []domain.User{}
	for cur.Next(ctx) {
		var doc userDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: decode user: %v", domain.ErrStoreUnavailable, err)
		}
		users = append(users, *doc.toDomain())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate users: %v", domain.ErrStoreUnavailable, err)
	}
	return users, nil
}

func (d userDocument) toDomain() *domain.User {
	return &domain.User{
		ID:            d.ID.Hex(),
		Name:          d.Name,
		Email:         d.Email,
		PasswordHash:  d.PasswordHash,
		Balance:       domain.FromCents(d.BalanceCents),
		AccountType:   domain.AccountType(d.AccountType),
		AccountNumber: d.AccountNumber,
		PhoneNumber:   d.PhoneNumber,
		Role:          domain.Role(d.Role),
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func translateReadError(op string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}

func translateWriteError(op string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		if strings.Contains(err.Error(), accountNumberIndexName) {
			return domain.ErrAccountNumberTaken
		}
		return domain.ErrAlreadyExists
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}
