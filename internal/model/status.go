package model

import "errors"

// ErrNotFound is returned by stores when a record does not resolve.
var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateUsername = errors.New("username already taken")
)

type Role string

const (
	RoleManager           Role = "MANAGER"
	RoleConsultant        Role = "CONSULTANT"
	RoleDesigner          Role = "DESIGNER"
	RoleConstructionStaff Role = "CONSTRUCTION_STAFF"
	RoleCustomer          Role = "CUSTOMER"
)

// Valid reports whether r is one of the fixed roles.
func (r Role) Valid() bool {
	switch r {
	case RoleManager, RoleConsultant, RoleDesigner, RoleConstructionStaff, RoleCustomer:
		return true
	}
	return false
}

type ConsultationStatus string

const (
	ConsultationPending       ConsultationStatus = "PENDING"
	ConsultationInProgress    ConsultationStatus = "IN_PROGRESS"
	ConsultationCompleted     ConsultationStatus = "COMPLETED"
	ConsultationProceedDesign ConsultationStatus = "PROCEED_DESIGN"
	ConsultationCancelled     ConsultationStatus = "CANCELLED"
)

type DesignRequestStatus string

const (
	DesignRequestPending                 DesignRequestStatus = "PENDING"
	DesignRequestInProgress              DesignRequestStatus = "IN_PROGRESS"
	DesignRequestCompleted               DesignRequestStatus = "COMPLETED"
	DesignRequestPendingCustomerApproval DesignRequestStatus = "PENDING_CUSTOMER_APPROVAL"
	DesignRequestApproved                DesignRequestStatus = "APPROVED"
	DesignRequestRejected                DesignRequestStatus = "REJECTED"
	DesignRequestCancelled               DesignRequestStatus = "CANCELLED"
)

type DesignStatus string

const (
	DesignPendingApproval DesignStatus = "PENDING_APPROVAL"
	DesignApproved        DesignStatus = "APPROVED"
	DesignRejected        DesignStatus = "REJECTED"
	DesignArchived        DesignStatus = "ARCHIVED"
	DesignCancelled       DesignStatus = "CANCELLED"
)

type ProjectStatus string

const (
	ProjectPending              ProjectStatus = "PENDING"
	ProjectApproved             ProjectStatus = "APPROVED"
	ProjectInProgress           ProjectStatus = "IN_PROGRESS"
	ProjectOnHold               ProjectStatus = "ON_HOLD"
	ProjectTechnicallyCompleted ProjectStatus = "TECHNICALLY_COMPLETED"
	ProjectCompleted            ProjectStatus = "COMPLETED"
	ProjectCancelled            ProjectStatus = "CANCELLED"
	ProjectMaintenance          ProjectStatus = "MAINTENANCE"
)

// Terminal reports whether no further transition may leave s.
func (s ProjectStatus) Terminal() bool {
	return s == ProjectCompleted || s == ProjectCancelled
}

type PaymentStatus string

const (
	PaymentUnpaid      PaymentStatus = "UNPAID"
	PaymentDepositPaid PaymentStatus = "DEPOSIT_PAID"
	PaymentFullyPaid   PaymentStatus = "FULLY_PAID"
)

// PaymentKind selects which settlement a gateway payment covers.
type PaymentKind string

const (
	PaymentKindDeposit PaymentKind = "DEPOSIT"
	PaymentKindFinal   PaymentKind = "FINAL"
)

// Target is the payment status a successful payment of this kind moves to.
func (k PaymentKind) Target() (PaymentStatus, bool) {
	switch k {
	case PaymentKindDeposit:
		return PaymentDepositPaid, true
	case PaymentKindFinal:
		return PaymentFullyPaid, true
	}
	return "", false
}

// TaskStatusCompleted is the only task status aggregation cares about.
const TaskStatusCompleted = "COMPLETED"
