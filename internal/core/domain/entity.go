package domain

import "time"

// EntityRecord is a tenant-scoped row the isolation gate mediates access
// to. The engine treats entity payloads as opaque attribute bags; schema
// belongs to the owning business module.
type EntityRecord struct {
	TenantID    string
	Type        string
	ID          string
	OwnerID     *string
	Sensitivity SensitivityLevel
	Attributes  map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// Deleted reports whether the record has been soft deleted.
func (e EntityRecord) Deleted() bool {
	return e.DeletedAt != nil
}

// Resource derives the authorization resource reference for the record.
func (e EntityRecord) Resource() Resource {
	return Resource{
		TenantID:    e.TenantID,
		Type:        e.Type,
		ID:          e.ID,
		OwnerID:     e.OwnerID,
		Sensitivity: e.Sensitivity,
	}
}
