package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/repository"
	"github.com/parkkyonghun0510/lc-le-sub001/pkg/apperror"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CreateDepartmentRequest struct {
	Code        string `json:"code" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type UpdateDepartmentRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
}

type DepartmentResponse struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CreateBranchRequest struct {
	Code    string `json:"code" binding:"required"`
	Name    string `json:"name" binding:"required"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

type UpdateBranchRequest struct {
	Name     *string `json:"name"`
	Address  *string `json:"address"`
	Phone    *string `json:"phone"`
	IsActive *bool   `json:"is_active"`
}

type BranchResponse struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrgService manages the organizational reference data that scoped
// assignments point at.
type OrgService interface {
	CreateDepartment(ctx context.Context, req CreateDepartmentRequest) (*DepartmentResponse, error)
	GetDepartment(ctx context.Context, id uuid.UUID) (*DepartmentResponse, error)
	ListDepartments(ctx context.Context) ([]DepartmentResponse, error)
	UpdateDepartment(ctx context.Context, id uuid.UUID, req UpdateDepartmentRequest) (*DepartmentResponse, error)

	CreateBranch(ctx context.Context, req CreateBranchRequest) (*BranchResponse, error)
	GetBranch(ctx context.Context, id uuid.UUID) (*BranchResponse, error)
	ListBranches(ctx context.Context) ([]BranchResponse, error)
	UpdateBranch(ctx context.Context, id uuid.UUID, req UpdateBranchRequest) (*BranchResponse, error)
}

type orgService struct {
	departments repository.DepartmentRepository
	branches    repository.BranchRepository
}

// NewOrgService returns a new instance of OrgService
func NewOrgService(departments repository.DepartmentRepository, branches repository.BranchRepository) OrgService {
	return &orgService{departments: departments, branches: branches}
}

func toDepartmentResponse(d *model.Department) *DepartmentResponse {
	return &DepartmentResponse{
		ID:          d.ID.String(),
		Code:        d.Code,
		Name:        d.Name,
		Description: d.Description,
		IsActive:    d.IsActive,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func toBranchResponse(b *model.Branch) *BranchResponse {
	return &BranchResponse{
		ID:        b.ID.String(),
		Code:      b.Code,
		Name:      b.Name,
		Address:   b.Address,
		Phone:     b.Phone,
		IsActive:  b.IsActive,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

func (s *orgService) CreateDepartment(ctx context.Context, req CreateDepartmentRequest) (*DepartmentResponse, error) {
	if _, err := s.departments.FindByCode(ctx, req.Code); err == nil {
		return nil, apperror.Conflict("department code %q already exists", req.Code)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check department code: %w", err)
	}

	dept := &model.Department{
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		IsActive:    true,
	}
	if err := s.departments.Create(ctx, dept); err != nil {
		return nil, fmt.Errorf("failed to create department: %w", err)
	}
	return toDepartmentResponse(dept), nil
}

func (s *orgService) GetDepartment(ctx context.Context, id uuid.UUID) (*DepartmentResponse, error) {
	dept, err := s.departments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("department %s", id)
		}
		return nil, fmt.Errorf("failed to load department: %w", err)
	}
	return toDepartmentResponse(dept), nil
}

func (s *orgService) ListDepartments(ctx context.Context) ([]DepartmentResponse, error) {
	depts, err := s.departments.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	res := make([]DepartmentResponse, 0, len(depts))
	for i := range depts {
		res = append(res, *toDepartmentResponse(&depts[i]))
	}
	return res, nil
}

func (s *orgService) UpdateDepartment(ctx context.Context, id uuid.UUID, req UpdateDepartmentRequest) (*DepartmentResponse, error) {
	dept, err := s.departments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("department %s", id)
		}
		return nil, fmt.Errorf("failed to load department: %w", err)
	}

	if req.Name != nil {
		dept.Name = *req.Name
	}
	if req.Description != nil {
		dept.Description = *req.Description
	}
	if req.IsActive != nil {
		dept.IsActive = *req.IsActive
	}

	if err := s.departments.Update(ctx, dept); err != nil {
		return nil, fmt.Errorf("failed to update department: %w", err)
	}
	return toDepartmentResponse(dept), nil
}

func (s *orgService) CreateBranch(ctx context.Context, req CreateBranchRequest) (*BranchResponse, error) {
	if _, err := s.branches.FindByCode(ctx, req.Code); err == nil {
		return nil, apperror.Conflict("branch code %q already exists", req.Code)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check branch code: %w", err)
	}

	branch := &model.Branch{
		Code:     req.Code,
		Name:     req.Name,
		Address:  req.Address,
		Phone:    req.Phone,
		IsActive: true,
	}
	if err := s.branches.Create(ctx, branch); err != nil {
		return nil, fmt.Errorf("failed to create branch: %w", err)
	}
	return toBranchResponse(branch), nil
}

func (s *orgService) GetBranch(ctx context.Context, id uuid.UUID) (*BranchResponse, error) {
	branch, err := s.branches.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("branch %s", id)
		}
		return nil, fmt.Errorf("failed to load branch: %w", err)
	}
	return toBranchResponse(branch), nil
}

func (s *orgService) ListBranches(ctx context.Context) ([]BranchResponse, error) {
	branches, err := s.branches.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	res := make([]BranchResponse, 0, len(branches))
	for i := range branches {
		res = append(res, *toBranchResponse(&branches[i]))
	}
	return res, nil
}

func (s *orgService) UpdateBranch(ctx context.Context, id uuid.UUID, req UpdateBranchRequest) (*BranchResponse, error) {
	branch, err := s.branches.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("branch %s", id)
		}
		return nil, fmt.Errorf("failed to load branch: %w", err)
	}

	if req.Name != nil {
		branch.Name = *req.Name
	}
	if req.Address != nil {
		branch.Address = *req.Address
	}
	if req.Phone != nil {
		branch.Phone = *req.Phone
	}
	if req.IsActive != nil {
		branch.IsActive = *req.IsActive
	}

	if err := s.branches.Update(ctx, branch); err != nil {
		return nil, fmt.Errorf("failed to update branch: %w", err)
	}
	return toBranchResponse(branch), nil
}
