package identity

import "github.com/pkg/errors"

// SchoolIDKey is the metadata key linking an organization to its school row.
const SchoolIDKey = "schoolId"

// ErrNoSchoolID is returned when neither metadata location carries a school id.
var ErrNoSchoolID = errors.New("missing school information")

// OrgMetadata is the two-location metadata attached to an organization.
// The private map is canonical; the public map is a legacy location still
// found on organizations created before the migration. Readers must always
// prefer private and fall back to public.
type OrgMetadata struct {
	Private map[string]interface{}
	Public  map[string]interface{}
}

// ResolveSchoolID returns the school id with the documented precedence:
// private wins, public is the legacy fallback, absence in both is an error.
func (m OrgMetadata) ResolveSchoolID() (string, error) {
	if v, ok := m.Private[SchoolIDKey].(string); ok && v != "" {
		return v, nil
	}
	if v, ok := m.Public[SchoolIDKey].(string); ok && v != "" {
		return v, nil
	}
	return "", ErrNoSchoolID
}

// PrivateSchoolID returns the canonical-location school id, if set.
func (m OrgMetadata) PrivateSchoolID() string {
	if v, ok := m.Private[SchoolIDKey].(string); ok {
		return v
	}
	return ""
}

// PublicSchoolID returns the legacy-location school id, if set.
func (m OrgMetadata) PublicSchoolID() string {
	if v, ok := m.Public[SchoolIDKey].(string); ok {
		return v
	}
	return ""
}

// merged returns a copy of base with the supplied keys overwriting.
func merged(base, patch map[string]interface{}) map[string]interface{} {
	if patch == nil {
		return base
	}
	out := make(map[string]interface{}, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}
