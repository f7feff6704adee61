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
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CreateApplicationRequest struct {
	CustomerName    string  `json:"customer_name" binding:"required"`
	CustomerPhone   string  `json:"customer_phone"`
	IDNumber        string  `json:"id_number"`
	RequestedAmount string  `json:"requested_amount" binding:"required"`
	LoanPurpose     string  `json:"loan_purpose"`
	TermMonths      int     `json:"term_months"`
	DepartmentID    *string `json:"department_id"`
	BranchID        *string `json:"branch_id"`
}

type UpdateApplicationRequest struct {
	CustomerName    *string `json:"customer_name"`
	CustomerPhone   *string `json:"customer_phone"`
	IDNumber        *string `json:"id_number"`
	RequestedAmount *string `json:"requested_amount"`
	LoanPurpose     *string `json:"loan_purpose"`
	TermMonths      *int    `json:"term_months"`
}

type ApproveApplicationRequest struct {
	// ApprovedAmount defaults to the requested amount when omitted.
	ApprovedAmount *string `json:"approved_amount"`
}

type RejectApplicationRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type ListApplicationsRequest struct {
	Status       string `form:"status"`
	DepartmentID string `form:"department_id"`
	BranchID     string `form:"branch_id"`
	CreatedBy    string `form:"created_by"`
	Search       string `form:"search"`
	Page         int    `form:"page"`
	Limit        int    `form:"limit"`
}

type ApplicationResponse struct {
	ID              string     `json:"id"`
	ApplicationNo   string     `json:"application_no"`
	CustomerName    string     `json:"customer_name"`
	CustomerPhone   string     `json:"customer_phone,omitempty"`
	IDNumber        string     `json:"id_number,omitempty"`
	RequestedAmount string     `json:"requested_amount"`
	ApprovedAmount  *string    `json:"approved_amount,omitempty"`
	LoanPurpose     string     `json:"loan_purpose,omitempty"`
	TermMonths      int        `json:"term_months"`
	Status          string     `json:"status"`
	DepartmentID    *string    `json:"department_id,omitempty"`
	BranchID        *string    `json:"branch_id,omitempty"`
	CreatedBy       *string    `json:"created_by,omitempty"`
	CreatorName     string     `json:"creator_name,omitempty"`
	ReviewedBy      *string    `json:"reviewed_by,omitempty"`
	ReviewerName    string     `json:"reviewer_name,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ApplicationService runs the loan application workflow:
// DRAFT -> SUBMITTED -> UNDER_REVIEW -> APPROVED | REJECTED.
// Every route into it is gated by APPLICATION permission checks at the
// transport layer.
type ApplicationService interface {
	Create(ctx context.Context, actor Actor, req CreateApplicationRequest) (*ApplicationResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*ApplicationResponse, error)
	List(ctx context.Context, req ListApplicationsRequest) ([]ApplicationResponse, int64, error)
	Update(ctx context.Context, actor Actor, id uuid.UUID, req UpdateApplicationRequest) (*ApplicationResponse, error)

	Submit(ctx context.Context, actor Actor, id uuid.UUID) (*ApplicationResponse, error)
	StartReview(ctx context.Context, actor Actor, id uuid.UUID) (*ApplicationResponse, error)
	Approve(ctx context.Context, actor Actor, id uuid.UUID, req ApproveApplicationRequest) (*ApplicationResponse, error)
	Reject(ctx context.Context, actor Actor, id uuid.UUID, req RejectApplicationRequest) (*ApplicationResponse, error)
}

type applicationService struct {
	applications repository.ApplicationRepository
	users        repository.UserRepository
	tx           repository.TransactionManager
}

// NewApplicationService returns a new instance of ApplicationService
func NewApplicationService(
	applications repository.ApplicationRepository,
	users repository.UserRepository,
	tx repository.TransactionManager,
) ApplicationService {
	return &applicationService{applications: applications, users: users, tx: tx}
}

func toApplicationResponse(a *model.CustomerApplication) *ApplicationResponse {
	res := &ApplicationResponse{
		ID:              a.ID.String(),
		ApplicationNo:   a.ApplicationNo,
		CustomerName:    a.CustomerName,
		CustomerPhone:   a.CustomerPhone,
		IDNumber:        a.IDNumber,
		RequestedAmount: a.RequestedAmount.StringFixed(2),
		LoanPurpose:     a.LoanPurpose,
		TermMonths:      a.TermMonths,
		Status:          a.Status,
		DepartmentID:    uuidString(a.DepartmentID),
		BranchID:        uuidString(a.BranchID),
		CreatedBy:       uuidString(a.CreatedBy),
		ReviewedBy:      uuidString(a.ReviewedBy),
		ReviewedAt:      a.ReviewedAt,
		RejectionReason: a.RejectionReason,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
	if a.ApprovedAmount != nil {
		amount := a.ApprovedAmount.StringFixed(2)
		res.ApprovedAmount = &amount
	}
	if a.Creator != nil {
		res.CreatorName = a.Creator.Username
	}
	if a.Reviewer != nil {
		res.ReviewerName = a.Reviewer.Username
	}
	return res
}

func parseAmount(raw, field string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperror.Validation("invalid %s", field)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, apperror.Validation("%s must be positive", field)
	}
	return amount, nil
}

func (s *applicationService) load(ctx context.Context, id uuid.UUID) (*model.CustomerApplication, error) {
	app, err := s.applications.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("application %s", id)
		}
		return nil, fmt.Errorf("failed to load application: %w", err)
	}
	return app, nil
}

func (s *applicationService) Create(ctx context.Context, actor Actor, req CreateApplicationRequest) (*ApplicationResponse, error) {
	amount, err := parseAmount(req.RequestedAmount, "requested_amount")
	if err != nil {
		return nil, err
	}
	termMonths := req.TermMonths
	if termMonths == 0 {
		termMonths = 12
	}
	if termMonths < 1 || termMonths > 360 {
		return nil, apperror.Validation("term_months must be between 1 and 360")
	}

	deptID, err := parseOptionalUUID(req.DepartmentID, "department_id")
	if err != nil {
		return nil, err
	}
	brID, err := parseOptionalUUID(req.BranchID, "branch_id")
	if err != nil {
		return nil, err
	}

	// Applications default to the creator's organizational placement.
	if deptID == nil || brID == nil {
		creator, err := s.users.GetByID(ctx, actor.ID)
		if err == nil {
			if deptID == nil {
				deptID = creator.DepartmentID
			}
			if brID == nil {
				brID = creator.BranchID
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load creator: %w", err)
		}
	}

	app := &model.CustomerApplication{
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		IDNumber:        req.IDNumber,
		RequestedAmount: amount,
		LoanPurpose:     req.LoanPurpose,
		TermMonths:      termMonths,
		Status:          model.ApplicationStatusDraft,
		DepartmentID:    deptID,
		BranchID:        brID,
		CreatedBy:       actor.Ref(),
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		prefix := "LA-" + time.Now().Format("20060102") + "-"
		seq, err := s.applications.NextSequence(txCtx, prefix)
		if err != nil {
			return fmt.Errorf("failed to allocate application number: %w", err)
		}
		app.ApplicationNo = fmt.Sprintf("%s%05d", prefix, seq)
		if err := s.applications.Create(txCtx, app); err != nil {
			return fmt.Errorf("failed to create application: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return toApplicationResponse(app), nil
}

func (s *applicationService) Get(ctx context.Context, id uuid.UUID) (*ApplicationResponse, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return toApplicationResponse(app), nil
}

func (s *applicationService) List(ctx context.Context, req ListApplicationsRequest) ([]ApplicationResponse, int64, error) {
	page := req.Page
	if page <= 0 {
		page = 1
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}

	var filter repository.ApplicationFilter
	if req.Status != "" {
		switch req.Status {
		case model.ApplicationStatusDraft, model.ApplicationStatusSubmitted,
			model.ApplicationStatusUnderReview, model.ApplicationStatusApproved,
			model.ApplicationStatusRejected:
			filter.Status = req.Status
		default:
			return nil, 0, apperror.Validation("unknown status %q", req.Status)
		}
	}
	for _, ref := range []struct {
		raw   string
		field string
		dst   **uuid.UUID
	}{
		{req.DepartmentID, "department_id", &filter.DepartmentID},
		{req.BranchID, "branch_id", &filter.BranchID},
		{req.CreatedBy, "created_by", &filter.CreatedBy},
	} {
		if ref.raw == "" {
			continue
		}
		id, err := uuid.Parse(ref.raw)
		if err != nil {
			return nil, 0, apperror.Validation("invalid %s", ref.field)
		}
		*ref.dst = &id
	}
	filter.Search = req.Search

	apps, total, err := s.applications.List(ctx, filter, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list applications: %w", err)
	}

	res := make([]ApplicationResponse, 0, len(apps))
	for i := range apps {
		res = append(res, *toApplicationResponse(&apps[i]))
	}
	return res, total, nil
}

// Update edits application data. Only drafts are editable; anything already
// submitted is frozen for review.
func (s *applicationService) Update(ctx context.Context, actor Actor, id uuid.UUID, req UpdateApplicationRequest) (*ApplicationResponse, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != model.ApplicationStatusDraft {
		return nil, apperror.Conflict("application %s is %s and cannot be edited", app.ApplicationNo, app.Status)
	}

	if req.CustomerName != nil {
		app.CustomerName = *req.CustomerName
	}
	if req.CustomerPhone != nil {
		app.CustomerPhone = *req.CustomerPhone
	}
	if req.IDNumber != nil {
		app.IDNumber = *req.IDNumber
	}
	if req.RequestedAmount != nil {
		amount, err := parseAmount(*req.RequestedAmount, "requested_amount")
		if err != nil {
			return nil, err
		}
		app.RequestedAmount = amount
	}
	if req.LoanPurpose != nil {
		app.LoanPurpose = *req.LoanPurpose
	}
	if req.TermMonths != nil {
		if *req.TermMonths < 1 || *req.TermMonths > 360 {
			return nil, apperror.Validation("term_months must be between 1 and 360")
		}
		app.TermMonths = *req.TermMonths
	}

	if err := s.applications.Update(ctx, app); err != nil {
		return nil, fmt.Errorf("failed to update application: %w", err)
	}
	return toApplicationResponse(app), nil
}

func (s *applicationService) Submit(ctx context.Context, actor Actor, id uuid.UUID) (*ApplicationResponse, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != model.ApplicationStatusDraft {
		return nil, apperror.Conflict("application %s is %s and cannot be submitted", app.ApplicationNo, app.Status)
	}

	app.Status = model.ApplicationStatusSubmitted
	if err := s.applications.Update(ctx, app); err != nil {
		return nil, fmt.Errorf("failed to submit application: %w", err)
	}
	return toApplicationResponse(app), nil
}

func (s *applicationService) StartReview(ctx context.Context, actor Actor, id uuid.UUID) (*ApplicationResponse, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != model.ApplicationStatusSubmitted {
		return nil, apperror.Conflict("application %s is %s and cannot enter review", app.ApplicationNo, app.Status)
	}

	app.Status = model.ApplicationStatusUnderReview
	app.ReviewedBy = actor.Ref()
	if err := s.applications.Update(ctx, app); err != nil {
		return nil, fmt.Errorf("failed to start review: %w", err)
	}
	return toApplicationResponse(app), nil
}

func (s *applicationService) Approve(ctx context.Context, actor Actor, id uuid.UUID, req ApproveApplicationRequest) (*ApplicationResponse, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != model.ApplicationStatusSubmitted && app.Status != model.ApplicationStatusUnderReview {
		return nil, apperror.Conflict("application %s is %s and cannot be approved", app.ApplicationNo, app.Status)
	}

	approved := app.RequestedAmount
	if req.ApprovedAmount != nil {
		approved, err = parseAmount(*req.ApprovedAmount, "approved_amount")
		if err != nil {
			return nil, err
		}
		if approved.GreaterThan(app.RequestedAmount) {
			return nil, apperror.Validation("approved_amount cannot exceed the requested amount")
		}
	}

	now := time.Now()
	app.Status = model.ApplicationStatusApproved
	app.ApprovedAmount = &approved
	app.ReviewedBy = actor.Ref()
	app.ReviewedAt = &now
	if err := s.applications.Update(ctx, app); err != nil {
		return nil, fmt.Errorf("failed to approve application: %w", err)
	}
	return toApplicationResponse(app), nil
}

func (s *applicationService) Reject(ctx context.Context, actor Actor, id uuid.UUID, req RejectApplicationRequest) (*ApplicationResponse, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != model.ApplicationStatusSubmitted && app.Status != model.ApplicationStatusUnderReview {
		return nil, apperror.Conflict("application %s is %s and cannot be rejected", app.ApplicationNo, app.Status)
	}

	now := time.Now()
	app.Status = model.ApplicationStatusRejected
	app.RejectionReason = req.Reason
	app.ReviewedBy = actor.Ref()
	app.ReviewedAt = &now
	if err := s.applications.Update(ctx, app); err != nil {
		return nil, fmt.Errorf("failed to reject application: %w", err)
	}
	return toApplicationResponse(app), nil
}
