package rbac

import (
	"testing"

	"github.com/CDLUC3/dmptool-narrative-generator/internal/auth"
	"github.com/CDLUC3/dmptool-narrative-generator/internal/dmp"
)

const (
	planID   = "https://doi.org/10.48321/D1ABC"
	ucdavis  = "https://ror.org/05rrcem69"
	stanford = "https://ror.org/00f54p054"
)

func TestCanViewNarrative(t *testing.T) {
	private := PlanAccess{DMPID: planID, AffiliationIDs: []string{ucdavis}}
	public := PlanAccess{DMPID: planID, Public: true}

	cases := []struct {
		name   string
		plan   PlanAccess
		claims *auth.Claims
		allow  bool
	}{
		{name: "public anonymous", plan: public, claims: nil, allow: true},
		{name: "private anonymous", plan: private, claims: nil, allow: false},
		{name: "superadmin", plan: private, claims: &auth.Claims{Role: auth.RoleSuperAdmin}, allow: true},
		{name: "admin same affiliation", plan: private, claims: &auth.Claims{Role: auth.RoleAdmin, AffiliationID: ucdavis}, allow: true},
		{name: "admin other affiliation", plan: private, claims: &auth.Claims{Role: auth.RoleAdmin, AffiliationID: stanford}, allow: false},
		{name: "admin no affiliation", plan: PlanAccess{DMPID: planID, AffiliationIDs: []string{""}}, claims: &auth.Claims{Role: auth.RoleAdmin}, allow: false},
		{name: "researcher with plan", plan: private, claims: &auth.Claims{Role: auth.RoleResearcher, DMPIDs: []string{planID}}, allow: true},
		{name: "researcher with plan trailing slash", plan: private, claims: &auth.Claims{Role: auth.RoleResearcher, DMPIDs: []string{planID + "/"}}, allow: true},
		{name: "researcher without plan", plan: private, claims: &auth.Claims{Role: auth.RoleResearcher, DMPIDs: []string{"https://doi.org/10.48321/D1XYZ"}}, allow: false},
		{name: "researcher same affiliation", plan: private, claims: &auth.Claims{Role: auth.RoleResearcher, AffiliationID: ucdavis}, allow: false},
		{name: "lowercase role", plan: private, claims: &auth.Claims{Role: "superadmin"}, allow: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanViewNarrative(tc.plan, tc.claims); got != tc.allow {
				t.Fatalf("CanViewNarrative() = %v, want %v", got, tc.allow)
			}
		})
	}
}

func TestAccessFor(t *testing.T) {
	plan := &dmp.Plan{
		DMPID:   dmp.Identifier{Identifier: planID, Type: "doi"},
		Privacy: dmp.PrivacyPrivate,
		Contact: dmp.Contact{Affiliation: dmp.Affiliation{AffiliationID: dmp.Identifier{Identifier: ucdavis}}},
		Contributors: []dmp.Contributor{
			{Affiliation: dmp.Affiliation{AffiliationID: dmp.Identifier{Identifier: stanford}}},
		},
	}
	access := AccessFor(plan)
	if access.Public || access.DMPID != planID || len(access.AffiliationIDs) != 2 {
		t.Fatalf("AccessFor() = %+v", access)
	}
	admin := &auth.Claims{Role: auth.RoleAdmin, AffiliationID: stanford}
	if !CanViewNarrative(access, admin) {
		t.Error("contributor affiliation admin should be allowed")
	}

	if got := AccessFor(nil); got.Public || got.DMPID != "" {
		t.Errorf("AccessFor(nil) = %+v", got)
	}
}
