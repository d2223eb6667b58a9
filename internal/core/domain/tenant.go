package domain

import "time"

// IndustryVertical identifies the business vertical a tenant operates in.
// Policy documents are published per vertical.
type IndustryVertical string

const (
	IndustryHomeServices   IndustryVertical = "home_services"
	IndustryRestaurant     IndustryVertical = "restaurant"
	IndustryAutomotive     IndustryVertical = "automotive"
	IndustryRetail         IndustryVertical = "retail"
	IndustryCourses        IndustryVertical = "courses"
	IndustryPayroll        IndustryVertical = "payroll"
	IndustryInvestigations IndustryVertical = "investigations"
)

// KnownIndustries lists every vertical the platform provisions tenants for.
var KnownIndustries = []IndustryVertical{
	IndustryHomeServices,
	IndustryRestaurant,
	IndustryAutomotive,
	IndustryRetail,
	IndustryCourses,
	IndustryPayroll,
	IndustryInvestigations,
}

// Valid reports whether the vertical is one the platform recognises.
func (v IndustryVertical) Valid() bool {
	for _, known := range KnownIndustries {
		if v == known {
			return true
		}
	}
	return false
}

// TenantStatus tracks the tenant lifecycle. Cancelled tenants are soft
// deleted: rows remain while audit retention applies.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
	TenantCancelled TenantStatus = "cancelled"
)

// PlanTier is the commercial plan a tenant is provisioned on.
type PlanTier string

const (
	PlanStarter      PlanTier = "starter"
	PlanProfessional PlanTier = "professional"
	PlanEnterprise   PlanTier = "enterprise"
)

// Tenant is the root isolation boundary. Every tenant-scoped entity carries
// exactly one tenant id, assigned at creation and immutable thereafter.
type Tenant struct {
	ID          string
	Name        string
	Industry    IndustryVertical
	Plan        PlanTier
	Status      TenantStatus
	CreatedAt   time.Time
	CancelledAt *time.Time
}

// IsActive reports whether the tenant may serve requests. Suspended and
// cancelled tenants always deny.
func (t Tenant) IsActive() bool {
	return t.Status == TenantActive
}

// Cancel transitions the tenant to cancelled (soft delete). Returns true
// when the tenant changed state.
func (t *Tenant) Cancel(at time.Time) bool {
	if t.Status == TenantCancelled {
		return false
	}
	t.Status = TenantCancelled
	t.CancelledAt = &at
	return true
}
