package domain

import "time"

// MFALevel orders authentication strength for constraint checks.
type MFALevel uint8

const (
	MFANone MFALevel = iota
	MFABasic
	MFAStrong
)

// DeviceTrustLevel orders device trust for constraint checks.
type DeviceTrustLevel uint8

const (
	DeviceUntrusted DeviceTrustLevel = iota
	DeviceKnown
	DeviceManaged
)

// ConstraintKind tags the variant carried by a Constraint. The evaluator
// switches exhaustively on this tag; an unknown kind never holds.
type ConstraintKind string

const (
	ConstraintGeoScope        ConstraintKind = "geo_scope"
	ConstraintTimeWindow      ConstraintKind = "time_window"
	ConstraintMFALevel        ConstraintKind = "mfa_required"
	ConstraintDeviceTrust     ConstraintKind = "device_trust"
	ConstraintApprovalCeiling ConstraintKind = "approval_ceiling"
)

// GeoScope restricts a grant to requests originating from the listed regions.
type GeoScope struct {
	Regions []string
}

// TimeWindow restricts a grant to a daily window on the listed weekdays.
// Minutes are counted from midnight UTC. An empty Days list means every day.
type TimeWindow struct {
	Days        []time.Weekday
	StartMinute int
	EndMinute   int
}

// Constraint is a tagged variant; exactly one payload matching Kind is set.
// Constraints within a grant are conjunctive: all must hold for the grant to
// qualify.
type Constraint struct {
	Kind         ConstraintKind
	Geo          *GeoScope
	Window       *TimeWindow
	MinMFA       MFALevel
	MinDevice    DeviceTrustLevel
	CeilingCents int64
}

// RequestContext carries the contextual attributes the evaluator checks
// constraints against. It is re-resolved from the session on every call so
// forced revocation takes effect immediately.
type RequestContext struct {
	SessionID   string
	MFA         MFALevel
	DeviceTrust DeviceTrustLevel
	Region      string
	At          time.Time
	RequestID   string
}

// Satisfied reports whether the constraint holds for the supplied context
// and resource.
func (c Constraint) Satisfied(rc RequestContext, res Resource) bool {
	switch c.Kind {
	case ConstraintGeoScope:
		if c.Geo == nil {
			return false
		}
		for _, region := range c.Geo.Regions {
			if region == rc.Region {
				return true
			}
		}
		return false
	case ConstraintTimeWindow:
		if c.Window == nil {
			return false
		}
		return c.Window.Contains(rc.At)
	case ConstraintMFALevel:
		return rc.MFA >= c.MinMFA
	case ConstraintDeviceTrust:
		return rc.DeviceTrust >= c.MinDevice
	case ConstraintApprovalCeiling:
		if res.MonetaryValueCents == nil {
			return true
		}
		return *res.MonetaryValueCents <= c.CeilingCents
	default:
		return false
	}
}

// Contains reports whether the instant falls inside the window.
func (w TimeWindow) Contains(at time.Time) bool {
	at = at.UTC()
	if len(w.Days) > 0 {
		match := false
		for _, day := range w.Days {
			if at.Weekday() == day {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	minute := at.Hour()*60 + at.Minute()
	if w.StartMinute <= w.EndMinute {
		return minute >= w.StartMinute && minute < w.EndMinute
	}
	// Window crosses midnight.
	return minute >= w.StartMinute || minute < w.EndMinute
}

// Grant permits an action on a resource type, narrowed by conjunctive
// constraints. CrossTenant marks explicit API-partner exceptions to the
// tenant predicate.
type Grant struct {
	ID           string
	ResourceType string
	Action       string
	Constraints  []Constraint
	CrossTenant  bool
}

// RoleDef is a role as declared in a policy document. Inherits names parent
// roles; the effective grant set of a role is the union of its own grants
// and all ancestors', with the most specific role winning per
// (resource type, action) pair.
type RoleDef struct {
	Name        string
	Description string
	Inherits    []string
	Grants      []Grant
}

// ResourceTypeDef registers a resource type and the actions defined for it.
// Grants referencing unregistered pairs fail policy validation.
type ResourceTypeDef struct {
	Name    string
	Actions []string
}

// PolicyDocument is the versioned unit of policy publication, keyed by
// (industry, version).
type PolicyDocument struct {
	Industry      IndustryVertical
	Version       string
	Roles         []RoleDef
	ResourceTypes []ResourceTypeDef
	PublishedAt   time.Time
}

// PolicyStatus summarises a stored policy document for administrative
// listings.
type PolicyStatus struct {
	Industry    IndustryVertical
	Version     string
	Current     bool
	PublishedAt time.Time
}
