// Package approval is the single source of truth for whether a role may run a
// sensitive administrative action directly, must file it for second-approver
// review, or may not run it at all.
package approval

import (
	"studio/internal/domain/account"
)

// Outcome is the tagged result of a permission check.
type Outcome string

const (
	Direct           Outcome = "direct"
	RequiresApproval Outcome = "requires_approval"
	Denied           Outcome = "denied"
)

// Action types subject to the gate.
const (
	ActionDeleteSession           = "delete_session"
	ActionDeleteAthlete           = "delete_athlete"
	ActionDeleteDrill             = "delete_drill"
	ActionDeletePerformanceMetric = "delete_performance_metric"
)

// ActionTypes lists every gated action.
var ActionTypes = []string{ActionDeleteSession, ActionDeleteAthlete, ActionDeleteDrill, ActionDeletePerformanceMetric}

// Metadata is the context a decision depends on.
type Metadata struct {
	HasAthlete    bool   `json:"has_athlete"`
	AthleteName   string `json:"athlete_name,omitempty"`
	IsPastSession bool   `json:"is_past_session"`
	// RequesterID and TargetUserID drive the self-deletion rule.
	RequesterID  string `json:"requester_id,omitempty"`
	TargetUserID string `json:"target_user_id,omitempty"`
	// TargetRole is the stored role of the account being deleted, if any.
	TargetRole string `json:"target_role,omitempty"`
}

// Decision is the result of CheckPermission. Reason is displayable.
type Decision struct {
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
}

// IsKnownAction reports whether actionType is gated.
func IsKnownAction(actionType string) bool {
	for _, a := range ActionTypes {
		if a == actionType {
			return true
		}
	}
	return false
}

// CheckPermission decides how role may perform actionType.
// PRE: none
// POST: Returns exactly one outcome; deterministic for equal inputs
func CheckPermission(actionType, role string, md Metadata) Decision {
	if md.TargetUserID != "" && md.TargetUserID == md.RequesterID {
		return Decision{Outcome: Denied, Reason: "You cannot delete your own account"}
	}
	if md.TargetRole == account.RoleMasterAdmin {
		return Decision{Outcome: Denied, Reason: "The master admin account cannot be deleted"}
	}
	if !IsKnownAction(actionType) {
		return Decision{Outcome: Denied, Reason: "Unknown action type: " + actionType}
	}

	switch role {
	case account.RoleMasterAdmin:
		return Decision{Outcome: Direct}
	case account.RoleAdmin, account.RoleCoach:
	default:
		return Decision{Outcome: Denied, Reason: "Your role cannot perform this action"}
	}

	if actionType != ActionDeleteSession {
		return Decision{Outcome: RequiresApproval, Reason: "Deleting this record requires master admin approval"}
	}
	if md.HasAthlete {
		name := md.AthleteName
		if name == "" {
			name = "unknown athlete"
		}
		return Decision{Outcome: RequiresApproval, Reason: "Session has athlete enrolled: " + name}
	}
	if md.IsPastSession {
		return Decision{Outcome: RequiresApproval, Reason: "Cannot delete past sessions without approval"}
	}
	return Decision{Outcome: Direct}
}
