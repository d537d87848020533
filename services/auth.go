package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"feedback-sentiment/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrUserExists         = errors.New("user already exists with this email")
)

// Authenticator verifies credentials against the users collection
type Authenticator struct {
	users *mongo.Collection
	now   func() time.Time
}

func NewAuthenticator(db *mongo.Database) *Authenticator {
	return &Authenticator{
		users: db.Collection(UsersCollection),
		now:   time.Now,
	}
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// SignIn returns the user for email if password matches its hash
func (a *Authenticator) SignIn(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	err := a.users.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.Info("Invalid password attempt", "email", email)
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	now := a.now()
	if _, err := a.users.UpdateOne(ctx,
		bson.M{"_id": user.ID},
		bson.M{"$set": bson.M{"last_login": now, "updated_at": now}},
	); err != nil {
		// Log error but don't fail the login
		slog.Error("Failed to update last login", "error", err, "user_id", user.ID.Hex())
	}
	user.LastLogin = now

	return &user, nil
}

// SignOut records the sign-out time for userID
func (a *Authenticator) SignOut(ctx context.Context, userID string) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return fmt.Errorf("invalid user ID format: %w", err)
	}

	_, err = a.users.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"last_sign_out": a.now()}},
	)
	if err != nil {
		return fmt.Errorf("failed to record sign out: %w", err)
	}
	return nil
}

// CreateUser inserts a new active user with a bcrypt-hashed password
func (a *Authenticator) CreateUser(ctx context.Context, email, fullName, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	count, err := a.users.CountDocuments(ctx, bson.M{"email": email})
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if count > 0 {
		return nil, ErrUserExists
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := a.now()
	user := &models.User{
		ID:           primitive.NewObjectID(),
		Email:        email,
		FullName:     fullName,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := a.users.InsertOne(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("User created successfully", "userID", user.ID.Hex(), "email", user.Email)

	return user, nil
}
