package domain

// SensitivityLevel ranks how sensitive a resource is, 1 (lowest) through 6.
// The ranking selects minimum authentication strength independent of role:
// a qualifying grant never overrides the sensitivity floor.
type SensitivityLevel uint8

const (
	SensitivityMin SensitivityLevel = 1
	SensitivityMax SensitivityLevel = 6

	// mfaForcingLevel is the level at or above which MFA is mandatory
	// regardless of role grants.
	mfaForcingLevel SensitivityLevel = 5
)

// Valid reports whether the level is within the defined range.
func (s SensitivityLevel) Valid() bool {
	return s >= SensitivityMin && s <= SensitivityMax
}

// MinMFA returns the authentication floor the level imposes.
func (s SensitivityLevel) MinMFA() MFALevel {
	switch {
	case s >= SensitivityMax:
		return MFAStrong
	case s >= mfaForcingLevel:
		return MFABasic
	default:
		return MFANone
	}
}

// MinDeviceTrust returns the device trust floor the level imposes.
func (s SensitivityLevel) MinDeviceTrust() DeviceTrustLevel {
	if s >= SensitivityMax {
		return DeviceManaged
	}
	return DeviceUntrusted
}

// Resource is an addressable entity instance the engine authorizes access
// to. TenantID is set at creation and immutable.
type Resource struct {
	TenantID           string
	Type               string
	ID                 string
	OwnerID            *string
	Sensitivity        SensitivityLevel
	MonetaryValueCents *int64
}
