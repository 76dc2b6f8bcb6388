package models

// ApplicationDetail is an application with its reviewer names resolved.
type ApplicationDetail struct {
	*Application
	ResidencyValidatedByName string `json:"residency_validated_by_name,omitempty"`
	PartyAssignedByName      string `json:"party_assigned_by_name,omitempty"`
}

// Dashboard is the admin landing view.
type Dashboard struct {
	DashboardStats
	RegistrationEnabled bool `json:"registration_enabled"`
}
