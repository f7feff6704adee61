package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/repository"
	"github.com/parkkyonghun0510/lc-le-sub001/pkg/apperror"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	accessTokenTTL  = 24 * time.Hour
	refreshTokenTTL = 7 * 24 * time.Hour
)

// DTOs for Request validation
type CreateUserRequest struct {
	Username     string  `json:"username" binding:"required"`
	Email        string  `json:"email" binding:"required,email"`
	Phone        string  `json:"phone"`
	Password     string  `json:"password" binding:"required,min=8"`
	DepartmentID *string `json:"department_id"`
	BranchID     *string `json:"branch_id"`
}

type UpdateUserRequest struct {
	Username     *string `json:"username"`
	Email        *string `json:"email" binding:"omitempty,email"`
	Phone        *string `json:"phone"`
	DepartmentID *string `json:"department_id"`
	BranchID     *string `json:"branch_id"`
	IsActive     *bool   `json:"is_active"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}

type LoginUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         UserResponse `json:"user"`
}

// DTO for returning User without exposing sensitive data (e.g. password)
type UserResponse struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	DepartmentID *string   `json:"department_id,omitempty"`
	BranchID     *string   `json:"branch_id,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserService defines the interface for business logic related to User.
// Tokens carry identity only; what a user may do is answered per request by
// the decision engine, never baked into the token.
type UserService interface {
	Create(ctx context.Context, actor Actor, req CreateUserRequest) (*UserResponse, error)
	Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	Get(ctx context.Context, id uuid.UUID) (*UserResponse, error)
	List(ctx context.Context, page, limit int) ([]UserResponse, int64, error)
	Update(ctx context.Context, actor Actor, id uuid.UUID, req UpdateUserRequest) (*UserResponse, error)
	ChangePassword(ctx context.Context, id uuid.UUID, req ChangePasswordRequest) error
	Delete(ctx context.Context, actor Actor, id uuid.UUID) error
}

type userService struct {
	users       repository.UserRepository
	roles       repository.RoleRepository
	assignments repository.AssignmentRepository
	departments repository.DepartmentRepository
	branches    repository.BranchRepository
	tx          repository.TransactionManager
	audit       AuditService
}

// NewUserService returns a new instance of UserService
func NewUserService(
	users repository.UserRepository,
	roles repository.RoleRepository,
	assignments repository.AssignmentRepository,
	departments repository.DepartmentRepository,
	branches repository.BranchRepository,
	tx repository.TransactionManager,
	audit AuditService,
) UserService {
	return &userService{
		users:       users,
		roles:       roles,
		assignments: assignments,
		departments: departments,
		branches:    branches,
		tx:          tx,
		audit:       audit,
	}
}

// Helper: parse model to standard json API response
func toUserResponse(user *model.User) *UserResponse {
	return &UserResponse{
		ID:           user.ID.String(),
		Username:     user.Username,
		Email:        user.Email,
		Phone:        user.Phone,
		DepartmentID: uuidString(user.DepartmentID),
		BranchID:     uuidString(user.BranchID),
		IsActive:     user.IsActive,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
}

func (s *userService) signAccessToken(user *model.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      user.ID.String(),
		"username": user.Username,
		"exp":      time.Now().Add(accessTokenTTL).Unix(),
	})

	// Use same fallback strategy as middleware for simplicity here or get from env centrally
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "default_super_secret_key"
	}

	return token.SignedString([]byte(secret))
}

func newRefreshTokenValue() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (s *userService) issueTokens(ctx context.Context, user *model.User) (*TokenResponse, error) {
	access, err := s.signAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refresh, err := newRefreshTokenValue()
	if err != nil {
		return nil, err
	}
	rt := &model.RefreshToken{
		UserID:    user.ID,
		Token:     refresh,
		ExpiresAt: time.Now().Add(refreshTokenTTL),
	}
	if err := s.users.CreateRefreshToken(ctx, rt); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         *toUserResponse(user),
	}, nil
}

// resolveOrgRefs validates optional department and branch ids against the
// org tables.
func (s *userService) resolveOrgRefs(ctx context.Context, departmentID, branchID *string) (*uuid.UUID, *uuid.UUID, error) {
	deptID, err := parseOptionalUUID(departmentID, "department_id")
	if err != nil {
		return nil, nil, err
	}
	if deptID != nil {
		if _, err := s.departments.FindByID(ctx, *deptID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil, apperror.Validation("department %s does not exist", *deptID)
			}
			return nil, nil, fmt.Errorf("failed to load department: %w", err)
		}
	}

	brID, err := parseOptionalUUID(branchID, "branch_id")
	if err != nil {
		return nil, nil, err
	}
	if brID != nil {
		if _, err := s.branches.FindByID(ctx, *brID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil, apperror.Validation("branch %s does not exist", *brID)
			}
			return nil, nil, fmt.Errorf("failed to load branch: %w", err)
		}
	}

	return deptID, brID, nil
}

// Create registers a user and hands them the default role, when one is
// configured, in the same transaction.
func (s *userService) Create(ctx context.Context, actor Actor, req CreateUserRequest) (*UserResponse, error) {
	if _, err := s.users.GetByUsername(ctx, req.Username); err == nil {
		return nil, apperror.Conflict("username %q already exists", req.Username)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if _, err := s.users.GetByEmail(ctx, req.Email); err == nil {
		return nil, apperror.Conflict("email %q already exists", req.Email)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	deptID, brID, err := s.resolveOrgRefs(ctx, req.DepartmentID, req.BranchID)
	if err != nil {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Username:     req.Username,
		Email:        req.Email,
		Phone:        req.Phone,
		Password:     string(hashed),
		DepartmentID: deptID,
		BranchID:     brID,
		IsActive:     true,
	}

	var defaultRole *model.Role
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.users.Create(txCtx, user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}

		role, err := s.roles.FindDefault(txCtx)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("WARN: no default role configured, user %s starts without one", user.Username)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to look up default role: %w", err)
		}
		defaultRole = role

		assignment := &model.UserRole{
			UserID:       user.ID,
			RoleID:       role.ID,
			DepartmentID: deptID,
			BranchID:     brID,
			IsActive:     true,
			AssignedBy:   actor.Ref(),
		}
		return s.assignments.CreateUserRole(txCtx, assignment)
	})
	if err != nil {
		return nil, err
	}

	if defaultRole != nil {
		details, _ := json.Marshal(map[string]any{"role": defaultRole.Name, "default": true})
		s.audit.Record(ctx, model.PermissionAuditEntry{
			Action:       model.AuditActionRoleAssigned,
			EntityType:   model.AuditEntityUserRole,
			EntityID:     user.ID.String(),
			UserID:       actor.Ref(),
			TargetUserID: &user.ID,
			TargetRoleID: &defaultRole.ID,
			Details:      string(details),
			IPAddress:    actor.IP,
		})
	}

	return toUserResponse(user), nil
}

func (s *userService) Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error) {
	user, err := s.users.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.PermissionDenied("invalid username or password")
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, apperror.PermissionDenied("invalid username or password")
	}
	if !user.IsActive {
		return nil, apperror.PermissionDenied("account is disabled")
	}

	return s.issueTokens(ctx, user)
}

// Refresh rotates the refresh token: the presented token is burned and a
// fresh pair is issued.
func (s *userService) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	rt, err := s.users.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.PermissionDenied("invalid refresh token")
		}
		return nil, fmt.Errorf("failed to load refresh token: %w", err)
	}

	if time.Now().After(rt.ExpiresAt) {
		if err := s.users.DeleteRefreshToken(ctx, refreshToken); err != nil {
			log.Printf("WARN: failed to delete expired refresh token: %v", err)
		}
		return nil, apperror.PermissionDenied("refresh token expired")
	}

	user, err := s.users.GetByID(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.PermissionDenied("invalid refresh token")
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		return nil, apperror.PermissionDenied("account is disabled")
	}

	if err := s.users.DeleteRefreshToken(ctx, refreshToken); err != nil {
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	return s.issueTokens(ctx, user)
}

func (s *userService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.users.DeleteRefreshToken(ctx, refreshToken)
}

func (s *userService) Get(ctx context.Context, id uuid.UUID) (*UserResponse, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("user %s", id)
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return toUserResponse(user), nil
}

func (s *userService) List(ctx context.Context, page, limit int) ([]UserResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}

	users, total, err := s.users.List(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}

	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, *toUserResponse(&users[i]))
	}
	return responses, total, nil
}

func (s *userService) Update(ctx context.Context, actor Actor, id uuid.UUID, req UpdateUserRequest) (*UserResponse, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("user %s", id)
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if req.Username != nil && *req.Username != user.Username {
		if _, err := s.users.GetByUsername(ctx, *req.Username); err == nil {
			return nil, apperror.Conflict("username %q already exists", *req.Username)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to check username: %w", err)
		}
		user.Username = *req.Username
	}
	if req.Email != nil && *req.Email != user.Email {
		if _, err := s.users.GetByEmail(ctx, *req.Email); err == nil {
			return nil, apperror.Conflict("email %q already exists", *req.Email)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to check email: %w", err)
		}
		user.Email = *req.Email
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	if req.DepartmentID != nil || req.BranchID != nil {
		deptID, brID, err := s.resolveOrgRefs(ctx, req.DepartmentID, req.BranchID)
		if err != nil {
			return nil, err
		}
		if req.DepartmentID != nil {
			user.DepartmentID = deptID
		}
		if req.BranchID != nil {
			user.BranchID = brID
		}
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	// A disabled account must not keep live sessions.
	if req.IsActive != nil && !*req.IsActive {
		if err := s.users.DeleteRefreshTokensForUser(ctx, user.ID); err != nil {
			log.Printf("WARN: failed to revoke refresh tokens for %s: %v", user.Username, err)
		}
	}

	return toUserResponse(user), nil
}

func (s *userService) ChangePassword(ctx context.Context, id uuid.UUID, req ChangePasswordRequest) error {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("user %s", id)
		}
		return fmt.Errorf("failed to load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.CurrentPassword)); err != nil {
		return apperror.PermissionDenied("current password is incorrect")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = string(hashed)

	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	// Changing the password invalidates every outstanding session.
	if err := s.users.DeleteRefreshTokensForUser(ctx, user.ID); err != nil {
		log.Printf("WARN: failed to revoke refresh tokens for %s: %v", user.Username, err)
	}
	return nil
}

func (s *userService) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("user %s", id)
		}
		return fmt.Errorf("failed to load user: %w", err)
	}

	// Deleting the user record alone would leave its role assignments and
	// direct grants live, and any outstanding access token would keep
	// passing permission checks against them.
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.users.Delete(txCtx, id); err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		if err := s.assignments.DeactivateAllForUser(txCtx, id); err != nil {
			return fmt.Errorf("failed to retire assignments for user: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := s.users.DeleteRefreshTokensForUser(ctx, user.ID); err != nil {
		log.Printf("WARN: failed to revoke refresh tokens for %s: %v", user.Username, err)
	}
	return nil
}
