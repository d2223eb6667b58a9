package domain

import "time"

// PrincipalKind distinguishes human users from API partners. Only API
// partners may hold bindings to more than one tenant.
type PrincipalKind string

const (
	PrincipalUser       PrincipalKind = "user"
	PrincipalAPIPartner PrincipalKind = "api_partner"
)

// TenantBinding attaches a principal to a tenant with a base role and an
// optional industry role extension (namespaced by vertical, e.g.
// "automotive/service_advisor").
type TenantBinding struct {
	TenantID     string
	BaseRole     string
	IndustryRole string
	GrantedAt    time.Time
	RevokedAt    *time.Time
}

// Active reports whether the binding is currently in force.
func (b TenantBinding) Active() bool {
	return b.RevokedAt == nil
}

// RoleNames returns the role names the binding contributes, industry role
// included when set.
func (b TenantBinding) RoleNames() []string {
	names := []string{b.BaseRole}
	if b.IndustryRole != "" {
		names = append(names, b.IndustryRole)
	}
	return names
}

// Principal is an authenticated actor. A principal with no active binding to
// a tenant can never receive an Allow decision for that tenant's resources.
type Principal struct {
	ID       string
	Kind     PrincipalKind
	Bindings []TenantBinding
}

// BindingFor returns the active binding for the tenant, or nil when the
// principal is not bound to it.
func (p Principal) BindingFor(tenantID string) *TenantBinding {
	for i := range p.Bindings {
		if p.Bindings[i].TenantID == tenantID && p.Bindings[i].Active() {
			return &p.Bindings[i]
		}
	}
	return nil
}

// MultiTenant reports whether the principal holds explicit grants across
// more than one tenant. Ordinary users are bound to a single tenant; API
// partners may legitimately span several.
func (p Principal) MultiTenant() bool {
	if p.Kind != PrincipalAPIPartner {
		return false
	}
	active := 0
	for _, b := range p.Bindings {
		if b.Active() {
			active++
		}
	}
	return active > 1
}
