package rbac

import (
	"strings"

	"github.com/CDLUC3/dmptool-narrative-generator/internal/auth"
	"github.com/CDLUC3/dmptool-narrative-generator/internal/dmp"
)

// PlanAccess is the slice of a plan the gate needs
type PlanAccess struct {
	DMPID          string
	Public         bool
	AffiliationIDs []string
}

func AccessFor(plan *dmp.Plan) PlanAccess {
	if plan == nil {
		return PlanAccess{}
	}
	return PlanAccess{
		DMPID:          plan.DMPID.Identifier,
		Public:         plan.IsPublic(),
		AffiliationIDs: plan.AffiliationIDs(),
	}
}

// CanViewNarrative reports whether the caller may read the plan. A nil
// claims value is an anonymous caller.
func CanViewNarrative(plan PlanAccess, claims *auth.Claims) bool {
	if plan.Public {
		return true
	}
	if claims == nil {
		return false
	}
	switch strings.ToUpper(claims.Role) {
	case auth.RoleSuperAdmin:
		return true
	case auth.RoleAdmin:
		if claims.AffiliationID != "" {
			for _, id := range plan.AffiliationIDs {
				if sameIdentifier(id, claims.AffiliationID) {
					return true
				}
			}
		}
	}
	for _, id := range claims.DMPIDs {
		if sameIdentifier(id, plan.DMPID) {
			return true
		}
	}
	return false
}

func sameIdentifier(a, b string) bool {
	return a != "" && strings.EqualFold(strings.TrimRight(a, "/"), strings.TrimRight(b, "/"))
}
