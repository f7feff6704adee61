package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/repository"
	"github.com/parkkyonghun0510/lc-le-sub001/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newApplicationEnv(t *testing.T) (*gorm.DB, ApplicationService) {
	t.Helper()
	db := newTestDB(t)
	svc := NewApplicationService(
		repository.NewApplicationRepository(db),
		repository.NewUserRepository(db),
		repository.NewTransactionManager(db),
	)
	return db, svc
}

func TestCreateApplication(t *testing.T) {
	_, svc := newApplicationEnv(t)
	ctx := context.Background()

	res, err := svc.Create(ctx, testActor(), CreateApplicationRequest{
		CustomerName:    "Sok Dara",
		RequestedAmount: "50000",
		LoanPurpose:     "Working capital",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationStatusDraft, res.Status)
	assert.Equal(t, "50000.00", res.RequestedAmount)
	assert.Equal(t, 12, res.TermMonths, "term defaults to a year")

	prefix := "LA-" + time.Now().Format("20060102") + "-"
	assert.Equal(t, prefix+"00001", res.ApplicationNo)

	second, err := svc.Create(ctx, testActor(), CreateApplicationRequest{
		CustomerName:    "Chan Vanna",
		RequestedAmount: "1200.50",
		TermMonths:      36,
	})
	require.NoError(t, err)
	assert.Equal(t, prefix+"00002", second.ApplicationNo, "numbers run sequentially within the day")
	assert.Equal(t, "1200.50", second.RequestedAmount)
}

func TestCreateApplicationValidation(t *testing.T) {
	_, svc := newApplicationEnv(t)
	ctx := context.Background()

	cases := []CreateApplicationRequest{
		{CustomerName: "X", RequestedAmount: "not-a-number"},
		{CustomerName: "X", RequestedAmount: "0"},
		{CustomerName: "X", RequestedAmount: "-500"},
		{CustomerName: "X", RequestedAmount: "1000", TermMonths: 361},
		{CustomerName: "X", RequestedAmount: "1000", TermMonths: -1},
	}
	for i, req := range cases {
		_, err := svc.Create(ctx, testActor(), req)
		assert.True(t, errors.Is(err, apperror.ErrValidation), fmt.Sprintf("case %d", i))
	}
}

func TestCreateApplicationInheritsCreatorPlacement(t *testing.T) {
	db, svc := newApplicationEnv(t)
	ctx := context.Background()

	dept := &model.Department{Code: "CR", Name: "Credit"}
	require.NoError(t, db.Create(dept).Error)
	branch := &model.Branch{Code: "PP01", Name: "Phnom Penh Central"}
	require.NoError(t, db.Create(branch).Error)

	creator := createTestUser(t, db, "placed-officer")
	require.NoError(t, db.Model(creator).Updates(map[string]any{
		"department_id": dept.ID,
		"branch_id":     branch.ID,
	}).Error)

	actor := Actor{ID: creator.ID, IP: "127.0.0.1"}
	res, err := svc.Create(ctx, actor, CreateApplicationRequest{
		CustomerName:    "Inherits",
		RequestedAmount: "1000",
	})
	require.NoError(t, err)
	require.NotNil(t, res.DepartmentID)
	assert.Equal(t, dept.ID.String(), *res.DepartmentID)
	require.NotNil(t, res.BranchID)
	assert.Equal(t, branch.ID.String(), *res.BranchID)

	// An explicit placement wins over the creator's.
	otherBranch := &model.Branch{Code: "SR01", Name: "Siem Reap"}
	require.NoError(t, db.Create(otherBranch).Error)
	otherID := otherBranch.ID.String()

	res, err = svc.Create(ctx, actor, CreateApplicationRequest{
		CustomerName:    "Explicit",
		RequestedAmount: "1000",
		BranchID:        &otherID,
	})
	require.NoError(t, err)
	require.NotNil(t, res.BranchID)
	assert.Equal(t, otherID, *res.BranchID)
}

func TestApplicationLifecycle(t *testing.T) {
	_, svc := newApplicationEnv(t)
	ctx := context.Background()
	actor := testActor()

	created, err := svc.Create(ctx, actor, CreateApplicationRequest{
		CustomerName:    "Full Cycle",
		RequestedAmount: "10000",
	})
	require.NoError(t, err)
	id := uuid.MustParse(created.ID)

	submitted, err := svc.Submit(ctx, actor, id)
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationStatusSubmitted, submitted.Status)

	_, err = svc.Submit(ctx, actor, id)
	assert.True(t, errors.Is(err, apperror.ErrConflict), "double submit is rejected")

	review, err := svc.StartReview(ctx, actor, id)
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationStatusUnderReview, review.Status)
	require.NotNil(t, review.ReviewedBy)

	approved, err := svc.Approve(ctx, actor, id, ApproveApplicationRequest{ApprovedAmount: strPtr("8000")})
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAmount)
	assert.Equal(t, "8000.00", *approved.ApprovedAmount)
	assert.NotNil(t, approved.ReviewedAt)

	_, err = svc.Approve(ctx, actor, id, ApproveApplicationRequest{})
	assert.True(t, errors.Is(err, apperror.ErrConflict), "a decided application stays decided")
	_, err = svc.Reject(ctx, actor, id, RejectApplicationRequest{Reason: "too late"})
	assert.True(t, errors.Is(err, apperror.ErrConflict))
}

func TestApproveGuardsAmount(t *testing.T) {
	_, svc := newApplicationEnv(t)
	ctx := context.Background()
	actor := testActor()

	created, err := svc.Create(ctx, actor, CreateApplicationRequest{
		CustomerName:    "Capped",
		RequestedAmount: "1000",
	})
	require.NoError(t, err)
	id := uuid.MustParse(created.ID)

	_, err = svc.Submit(ctx, actor, id)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, actor, id, ApproveApplicationRequest{ApprovedAmount: strPtr("1500")})
	assert.True(t, errors.Is(err, apperror.ErrValidation), "approval never exceeds the request")

	_, err = svc.Approve(ctx, actor, id, ApproveApplicationRequest{ApprovedAmount: strPtr("-5")})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	// Omitting the amount approves the full request. Approval straight from
	// SUBMITTED is allowed; the review step is optional.
	approved, err := svc.Approve(ctx, actor, id, ApproveApplicationRequest{})
	require.NoError(t, err)
	require.NotNil(t, approved.ApprovedAmount)
	assert.Equal(t, "1000.00", *approved.ApprovedAmount)
}

func TestRejectRequiresSubmittedState(t *testing.T) {
	_, svc := newApplicationEnv(t)
	ctx := context.Background()
	actor := testActor()

	created, err := svc.Create(ctx, actor, CreateApplicationRequest{
		CustomerName:    "Declined",
		RequestedAmount: "2000",
	})
	require.NoError(t, err)
	id := uuid.MustParse(created.ID)

	_, err = svc.Reject(ctx, actor, id, RejectApplicationRequest{Reason: "incomplete"})
	assert.True(t, errors.Is(err, apperror.ErrConflict), "drafts cannot be rejected")

	_, err = svc.Submit(ctx, actor, id)
	require.NoError(t, err)

	rejected, err := svc.Reject(ctx, actor, id, RejectApplicationRequest{Reason: "insufficient collateral"})
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationStatusRejected, rejected.Status)
	assert.Equal(t, "insufficient collateral", rejected.RejectionReason)
	assert.NotNil(t, rejected.ReviewedAt)
}

func TestUpdateApplicationOnlyTouchesDrafts(t *testing.T) {
	_, svc := newApplicationEnv(t)
	ctx := context.Background()
	actor := testActor()

	created, err := svc.Create(ctx, actor, CreateApplicationRequest{
		CustomerName:    "Editable",
		RequestedAmount: "3000",
	})
	require.NoError(t, err)
	id := uuid.MustParse(created.ID)

	updated, err := svc.Update(ctx, actor, id, UpdateApplicationRequest{
		RequestedAmount: strPtr("3500.75"),
		TermMonths:      intPtr(24),
	})
	require.NoError(t, err)
	assert.Equal(t, "3500.75", updated.RequestedAmount)
	assert.Equal(t, 24, updated.TermMonths)

	_, err = svc.Update(ctx, actor, id, UpdateApplicationRequest{TermMonths: intPtr(999)})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = svc.Submit(ctx, actor, id)
	require.NoError(t, err)

	_, err = svc.Update(ctx, actor, id, UpdateApplicationRequest{CustomerName: strPtr("Too Late")})
	assert.True(t, errors.Is(err, apperror.ErrConflict), "submitted applications are frozen")
}

func TestListApplications(t *testing.T) {
	db, svc := newApplicationEnv(t)
	ctx := context.Background()
	actor := testActor()

	names := []string{"Sok Dara", "Chan Vanna", "Kim Srey"}
	ids := make([]uuid.UUID, 0, len(names))
	for _, name := range names {
		res, err := svc.Create(ctx, actor, CreateApplicationRequest{
			CustomerName:    name,
			RequestedAmount: "1000",
		})
		require.NoError(t, err)
		ids = append(ids, uuid.MustParse(res.ID))
	}
	_, err := svc.Submit(ctx, actor, ids[0])
	require.NoError(t, err)

	all, total, err := svc.List(ctx, ListApplicationsRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, all, 3)

	drafts, total, err := svc.List(ctx, ListApplicationsRequest{Status: model.ApplicationStatusDraft})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, drafts, 2)

	found, total, err := svc.List(ctx, ListApplicationsRequest{Search: "Vanna"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, found, 1)
	assert.Equal(t, "Chan Vanna", found[0].CustomerName)

	_, _, err = svc.List(ctx, ListApplicationsRequest{Status: "LOST"})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	// Sanity check the persisted rows carry decimal amounts.
	var stored model.CustomerApplication
	require.NoError(t, db.First(&stored, "id = ?", ids[0]).Error)
	assert.True(t, stored.RequestedAmount.Equal(decimal.NewFromInt(1000)))
}
