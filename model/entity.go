package model

// EntityType identifies which approvable business-record type a workflow
// instance belongs to. The set is closed: definitions are a fixed, versioned
// catalogue, not user-authored.
type EntityType string

// Approvable entity types known to the engine.
const (
	EntityRFI                EntityType = "rfi"
	EntityChangeRequest      EntityType = "change_request"
	EntityDocument           EntityType = "document"
	EntityNCR                EntityType = "ncr"
	EntitySubmittal          EntityType = "submittal"
	EntitySafetyIncident     EntityType = "safety_incident"
	EntityBaseline           EntityType = "baseline"
	EntityMultiLevelApproval EntityType = "multi_level_approval"

	// EntityMultiLevelApprovalL2 is the two-level variant of the multi-level
	// approval machine. Which variant applies to a given change request is
	// decided by an external budget-threshold policy lookup before the first
	// transition; the engine only enforces legality within the chosen variant.
	EntityMultiLevelApprovalL2 EntityType = "multi_level_approval_l2"
)

// ParseEntityType validates a raw string against the known entity types.
func ParseEntityType(raw string) (EntityType, error) {
	switch EntityType(raw) {
	case EntityRFI, EntityChangeRequest, EntityDocument, EntityNCR,
		EntitySubmittal, EntitySafetyIncident, EntityBaseline,
		EntityMultiLevelApproval, EntityMultiLevelApprovalL2:
		return EntityType(raw), nil
	}
	return "", NewUnknownEntityTypeError("unknown entity type " + raw)
}
