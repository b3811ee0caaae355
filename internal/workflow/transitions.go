package workflow

import "pondflow/internal/model"

// table maps a status to the statuses one valid command may reach from it.
// Statuses absent from the table, or mapped to an empty set, are terminal.
type table[S comparable] map[S]map[S]struct{}

func (t table[S]) allows(from, to S) bool {
	next, ok := t[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

func set[S comparable](statuses ...S) map[S]struct{} {
	m := make(map[S]struct{}, len(statuses))
	for _, s := range statuses {
		m[s] = struct{}{}
	}
	return m
}

var consultationTransitions = table[model.ConsultationStatus]{
	model.ConsultationPending:       set(model.ConsultationInProgress),
	model.ConsultationInProgress:    set(model.ConsultationCompleted, model.ConsultationProceedDesign),
	model.ConsultationProceedDesign: set(model.ConsultationCompleted),
	model.ConsultationCompleted:     set[model.ConsultationStatus](),
	model.ConsultationCancelled:     set[model.ConsultationStatus](),
}

var designRequestTransitions = table[model.DesignRequestStatus]{
	model.DesignRequestPending:    set(model.DesignRequestInProgress, model.DesignRequestCancelled),
	model.DesignRequestInProgress: set(model.DesignRequestCompleted, model.DesignRequestCancelled),
	model.DesignRequestCompleted: set(
		model.DesignRequestPendingCustomerApproval,
		model.DesignRequestInProgress,
		model.DesignRequestCancelled,
	),
	model.DesignRequestPendingCustomerApproval: set(
		model.DesignRequestApproved,
		model.DesignRequestInProgress,
		model.DesignRequestCancelled,
	),
	model.DesignRequestRejected:  set(model.DesignRequestInProgress),
	model.DesignRequestApproved:  set[model.DesignRequestStatus](),
	model.DesignRequestCancelled: set[model.DesignRequestStatus](),
}

var designTransitions = table[model.DesignStatus]{
	model.DesignPendingApproval: set(model.DesignApproved, model.DesignRejected, model.DesignCancelled),
	model.DesignRejected:        set(model.DesignPendingApproval),
	model.DesignApproved:        set(model.DesignArchived),
	model.DesignArchived:        set[model.DesignStatus](),
	model.DesignCancelled:       set[model.DesignStatus](),
}

var projectTransitions = table[model.ProjectStatus]{
	model.ProjectPending:              set(model.ProjectApproved, model.ProjectCancelled),
	model.ProjectApproved:             set(model.ProjectInProgress, model.ProjectCancelled),
	model.ProjectInProgress:           set(model.ProjectOnHold, model.ProjectCancelled, model.ProjectTechnicallyCompleted),
	model.ProjectOnHold:               set(model.ProjectInProgress, model.ProjectCancelled),
	model.ProjectTechnicallyCompleted: set(model.ProjectCompleted),
	model.ProjectMaintenance:          set(model.ProjectInProgress),
	model.ProjectCompleted:            set[model.ProjectStatus](),
	model.ProjectCancelled:            set[model.ProjectStatus](),
}

var paymentTransitions = table[model.PaymentStatus]{
	model.PaymentUnpaid:      set(model.PaymentDepositPaid),
	model.PaymentDepositPaid: set(model.PaymentFullyPaid),
	model.PaymentFullyPaid:   set[model.PaymentStatus](),
}

// CanTransitionConsultation reports whether the consultation table allows
// from -> to, ignoring the custom-design branch rule.
func CanTransitionConsultation(from, to model.ConsultationStatus) bool {
	return consultationTransitions.allows(from, to)
}

func CanTransitionDesignRequest(from, to model.DesignRequestStatus) bool {
	return designRequestTransitions.allows(from, to)
}

func CanTransitionDesign(from, to model.DesignStatus) bool {
	return designTransitions.allows(from, to)
}

func CanTransitionProject(from, to model.ProjectStatus) bool {
	return projectTransitions.allows(from, to)
}

func CanTransitionPayment(from, to model.PaymentStatus) bool {
	return paymentTransitions.allows(from, to)
}
