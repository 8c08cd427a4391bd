package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"greendrake/chambers/internal/auth"
	"greendrake/chambers/internal/authz"
	"greendrake/chambers/internal/config"
	"greendrake/chambers/internal/db"
	"greendrake/chambers/internal/models"
	"greendrake/chambers/internal/workflow"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type CreateUserInput struct {
	Name         string
	Email        string
	Password     string
	Role         models.Role
	Capabilities models.Capabilities
	ClientID     *primitive.ObjectID
}

// IUserService defines the interface for user-related operations.
type IUserService interface {
	Create(ctx context.Context, p authz.Principal, in CreateUserInput) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	FindByID(ctx context.Context, userID primitive.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error)
	FindByRole(ctx context.Context, roles ...models.Role) ([]models.User, error)
	List(ctx context.Context, p authz.Principal) ([]models.User, error)
	UpdateAccess(ctx context.Context, p authz.Principal, userID primitive.ObjectID, role models.Role, caps models.Capabilities) (*models.User, error)
}

type userService struct {
	db         *mongo.Database
	passwordRe *regexp.Regexp
}

// NewUserService creates a new UserService.
func NewUserService(db *mongo.Database, cfg *config.Config) IUserService {
	re, err := regexp.Compile(cfg.PasswordRegexp)
	if err != nil {
		re = regexp.MustCompile("^.{8,}$")
	}
	return &userService{db: db, passwordRe: re}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *userService) Create(ctx context.Context, p authz.Principal, in CreateUserInput) (*models.User, error) {
	if !p.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins may create users", workflow.ErrForbidden)
	}
	if !in.Role.Valid() {
		return nil, invalid("invalid user", map[string]string{"role": "unknown role"})
	}
	if !s.passwordRe.MatchString(in.Password) {
		return nil, invalid("invalid user", map[string]string{"password": "does not meet the password policy"})
	}
	if in.Role == models.RoleClient && in.ClientID == nil {
		return nil, invalid("invalid user", map[string]string{"client_id": "required for client users"})
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	ts := now()
	user := &models.User{
		Base:         models.NewBase(),
		Name:         strings.TrimSpace(in.Name),
		Email:        normalizeEmail(in.Email),
		PasswordHash: hash,
		Role:         in.Role,
		Capabilities: in.Capabilities,
		ClientID:     in.ClientID,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if _, err := s.db.Collection(db.UsersCollection).InsertOne(ctx, user); err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("error creating user %s: %w", user.Email, err)
	}
	return user, nil
}

func (s *userService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.FindByEmail(ctx, email)
	if err != nil {
		if errIsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// FindByEmail returns mongo.ErrNoDocuments when no user has the address.
func (s *userService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.Collection(db.UsersCollection).FindOne(ctx, bson.M{"email": normalizeEmail(email)}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding user by email %s: %w", email, err)
	}
	return &user, nil
}

func (s *userService) FindByID(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	var user models.User
	err := s.db.Collection(db.UsersCollection).FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding user %s: %w", userID.Hex(), err)
	}
	return &user, nil
}

func (s *userService) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

func (s *userService) FindByRole(ctx context.Context, roles ...models.Role) ([]models.User, error) {
	return s.find(ctx, bson.M{"role": bson.M{"$in": roles}})
}

func (s *userService) List(ctx context.Context, p authz.Principal) ([]models.User, error) {
	if !p.IsStaff() {
		return nil, workflow.ErrForbidden
	}
	return s.find(ctx, bson.M{})
}

func (s *userService) find(ctx context.Context, filter bson.M) ([]models.User, error) {
	cursor, err := s.db.Collection(db.UsersCollection).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}
	users := []models.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("error decoding users: %w", err)
	}
	return users, nil
}

func (s *userService) UpdateAccess(ctx context.Context, p authz.Principal, userID primitive.ObjectID, role models.Role, caps models.Capabilities) (*models.User, error) {
	if !p.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins may change access", workflow.ErrForbidden)
	}
	if !role.Valid() {
		return nil, invalid("invalid role", map[string]string{"role": "unknown role"})
	}
	if p.UserID == userID && role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: admins cannot demote themselves", workflow.ErrForbidden)
	}
	var user models.User
	err := s.db.Collection(db.UsersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"role": role, "capabilities": caps, "updated_at": now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error updating user %s: %w", userID.Hex(), err)
	}
	return &user, nil
}
