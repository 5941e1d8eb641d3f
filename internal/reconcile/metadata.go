package reconcile

import (
	"context"

	"github.com/superlearn/school-central/internal/identity"
	"github.com/superlearn/school-central/pkg/id"
	"github.com/superlearn/school-central/pkg/log"
)

// MetadataResult reports what the metadata reconciliation did.
type MetadataResult struct {
	Changed bool `json:"changed"`
	// Degraded is set when the canonical write failed but the legacy public
	// copy still resolves to the expected school id, so readers keep working.
	Degraded bool   `json:"degraded"`
	Message  string `json:"message"`
}

// MetadataReconciler heals the schoolId attribute on an organization:
// the canonical home is private metadata, with a legacy copy sometimes
// present in public metadata on organizations created before the migration.
type MetadataReconciler struct {
	gateway identity.Gateway
}

func NewMetadataReconciler(gateway identity.Gateway) *MetadataReconciler {
	return &MetadataReconciler{gateway: gateway}
}

// EnsureSchoolID guarantees the organization's private metadata carries the
// expected school id. When cleanup is set, a stale public copy is removed
// best-effort; a failed cleanup is not an error.
func (r *MetadataReconciler) EnsureSchoolID(ctx context.Context, orgID, schoolID string, cleanup bool) (*MetadataResult, error) {
	reqID := id.Correlation(ctx)

	org, err := r.gateway.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if org.Metadata.PrivateSchoolID() == schoolID {
		if cleanup && org.Metadata.PublicSchoolID() != "" {
			r.cleanupPublic(ctx, orgID, reqID)
		}
		return &MetadataResult{Message: "school id already in canonical location"}, nil
	}

	patch := identity.MetadataPatch{
		Private: map[string]interface{}{identity.SchoolIDKey: schoolID},
	}
	if err := r.gateway.UpdateOrganizationMetadata(ctx, orgID, patch); err != nil {
		if org.Metadata.PublicSchoolID() == schoolID {
			log.Warnw("canonical metadata write failed, legacy fallback still functional",
				"orgId", orgID, "schoolId", schoolID, "requestId", reqID, "error", err)
			return &MetadataResult{
				Degraded: true,
				Message:  "canonical update failed but legacy location still resolves",
			}, nil
		}
		log.Errorw("school id metadata update failed", "orgId", orgID, "schoolId", schoolID,
			"requestId", reqID, "error", err)
		return nil, err
	}

	log.Infow("school id written to canonical metadata", "orgId", orgID, "schoolId", schoolID, "requestId", reqID)
	if cleanup && org.Metadata.PublicSchoolID() != "" {
		r.cleanupPublic(ctx, orgID, reqID)
	}
	return &MetadataResult{Changed: true, Message: "school id moved to canonical location"}, nil
}

// cleanupPublic removes the legacy public copy. A nil value deletes the key
// on the provider side.
func (r *MetadataReconciler) cleanupPublic(ctx context.Context, orgID, reqID string) {
	patch := identity.MetadataPatch{
		Public: map[string]interface{}{identity.SchoolIDKey: nil},
	}
	if err := r.gateway.UpdateOrganizationMetadata(ctx, orgID, patch); err != nil {
		log.Warnw("legacy public metadata cleanup failed", "orgId", orgID, "requestId", reqID, "error", err)
	}
}
