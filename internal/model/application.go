package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Loan application lifecycle states
const (
	ApplicationStatusDraft       = "DRAFT"
	ApplicationStatusSubmitted   = "SUBMITTED"
	ApplicationStatusUnderReview = "UNDER_REVIEW"
	ApplicationStatusApproved    = "APPROVED"
	ApplicationStatusRejected    = "REJECTED"
)

// CustomerApplication is a loan application moving through the review
// workflow. It is the primary APPLICATION resource that permission checks
// guard: creation, reading, updating, approval and rejection are all gated
// by the decision engine.
type CustomerApplication struct {
	ID              uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	ApplicationNo   string           `gorm:"type:varchar(30);uniqueIndex;not null" json:"application_no"`
	CustomerName    string           `gorm:"type:varchar(255);not null" json:"customer_name"`
	CustomerPhone   string           `gorm:"type:varchar(20)" json:"customer_phone"`
	IDNumber        string           `gorm:"type:varchar(30)" json:"id_number"`
	RequestedAmount decimal.Decimal  `gorm:"type:numeric(15,2);not null" json:"requested_amount"`
	ApprovedAmount  *decimal.Decimal `gorm:"type:numeric(15,2)" json:"approved_amount,omitempty"`
	LoanPurpose     string           `gorm:"type:text" json:"loan_purpose"`
	TermMonths      int              `gorm:"not null;default:12" json:"term_months"`
	Status          string           `gorm:"type:varchar(20);not null;default:'DRAFT';index" json:"status"`
	DepartmentID    *uuid.UUID       `gorm:"type:uuid;index" json:"department_id,omitempty"`
	BranchID        *uuid.UUID       `gorm:"type:uuid;index" json:"branch_id,omitempty"`
	CreatedBy       *uuid.UUID       `gorm:"type:uuid;index" json:"created_by,omitempty"`
	Creator         *User            `gorm:"foreignKey:CreatedBy" json:"creator,omitempty"`
	ReviewedBy      *uuid.UUID       `gorm:"type:uuid" json:"reviewed_by,omitempty"`
	Reviewer        *User            `gorm:"foreignKey:ReviewedBy" json:"reviewer,omitempty"`
	ReviewedAt      *time.Time       `json:"reviewed_at,omitempty"`
	RejectionReason string           `gorm:"type:text" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func (a *CustomerApplication) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
