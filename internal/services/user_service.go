package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	domain "github.com/Rakanrepo/slevenback/internal/domain"
	"github.com/Rakanrepo/slevenback/internal/repositories"
)

const (
	userIDPrefix      = "usr_"
	minPasswordLength = 8
)

var (
	// ErrUserInvalidInput signals the caller provided invalid registration data.
	ErrUserInvalidInput = errors.New("user: invalid input")
	// ErrUserEmailTaken indicates another account already owns the email address.
	ErrUserEmailTaken = errors.New("user: email already registered")
	// ErrUserInvalidCredentials covers both unknown emails and wrong passwords.
	ErrUserInvalidCredentials = errors.New("user: invalid credentials")
	// ErrUserNotFound indicates the user record could not be located.
	ErrUserNotFound = errors.New("user: not found")
)

// UserServiceDeps bundles the collaborators required to construct the user service.
type UserServiceDeps struct {
	Users       repositories.UserRepository
	BcryptCost  int
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type userService struct {
	users      repositories.UserRepository
	bcryptCost int
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewUserService wires dependencies into a concrete UserService implementation.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}

	cost := deps.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("user service: bcrypt cost %d out of range", cost)
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &userService{
		users:      deps.Users,
		bcryptCost: cost,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *userService) Register(ctx context.Context, cmd RegisterCommand) (User, error) {
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: a valid email is required", ErrUserInvalidInput)
	}
	fullName := strings.TrimSpace(cmd.FullName)
	if fullName == "" {
		return User{}, fmt.Errorf("%w: full name is required", ErrUserInvalidInput)
	}
	if len(cmd.Password) < minPasswordLength {
		return User{}, fmt.Errorf("%w: password must be at least %d characters", ErrUserInvalidInput, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), s.bcryptCost)
	if err != nil {
		return User{}, fmt.Errorf("user service: hash password: %w", err)
	}

	now := s.clock()
	user := User{
		ID:           userIDPrefix + s.newID(),
		Email:        email,
		FullName:     fullName,
		PasswordHash: string(hash),
		Role:         domain.UserRoleCustomer,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Insert(ctx, user); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			return User{}, fmt.Errorf("%w: %s", ErrUserEmailTaken, email)
		}
		return User{}, err
	}

	s.logger(ctx, "user.registered", map[string]any{"user": user.ID})

	user.PasswordHash = ""
	return user, nil
}

func (s *userService) Authenticate(ctx context.Context, email, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return User{}, ErrUserInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			// Burn a comparison so unknown emails cost the same as wrong passwords.
			_ = bcrypt.CompareHashAndPassword(fakeBcryptHash, []byte(password))
			return User{}, ErrUserInvalidCredentials
		}
		return User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrUserInvalidCredentials
	}

	s.logger(ctx, "user.authenticated", map[string]any{"user": user.ID})

	user.PasswordHash = ""
	return user, nil
}

var fakeBcryptHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMye1J4cJZ7G5kq1r0aW0F0aJ8mZT3a6O6u")

func (s *userService) GetProfile(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return User{}, err
	}

	user.PasswordHash = ""
	return user, nil
}
