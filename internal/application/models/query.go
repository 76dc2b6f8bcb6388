package models

// PageSize is the number of applications per listing page.
const PageSize = 20

// VerifiedFilter narrows a listing by verification state.
type VerifiedFilter string

const (
	VerifiedAny VerifiedFilter = ""
	VerifiedYes VerifiedFilter = "yes"
	VerifiedNo  VerifiedFilter = "no"
)

// ListFilter holds the admin listing criteria. Zero values mean "no filter".
type ListFilter struct {
	Search           string
	ResidencyStatus  ResidencyStatus
	PartyAffiliation PartyAffiliation
	EmailVerified    VerifiedFilter
	Page             int
}

// Offset returns the row offset for the 1-based page.
func (f ListFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * PageSize
}

// Page is one page of a newest-first listing.
type Page struct {
	Items    []*Application `json:"items"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PerPage  int            `json:"per_page"`
	LastPage int            `json:"last_page"`
}

// NewPage computes paging metadata for a result set.
func NewPage(items []*Application, total, page int) Page {
	if page < 1 {
		page = 1
	}
	last := (total + PageSize - 1) / PageSize
	if last < 1 {
		last = 1
	}
	if items == nil {
		items = []*Application{}
	}
	return Page{Items: items, Total: total, Page: page, PerPage: PageSize, LastPage: last}
}

// DashboardStats are the counts shown on the admin dashboard.
type DashboardStats struct {
	Total                    int `json:"total"`
	PendingResidency         int `json:"pending_residency"`
	VerifiedAwaitingApproval int `json:"verified_awaiting_approval"`
	ApprovedWithoutParty     int `json:"approved_without_party"`
}
