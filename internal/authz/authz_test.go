package authz

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testPolicy() *Policy {
	return NewPolicy(Assignments{
		Admins:     []string{"dueña@taller.co"},
		Enterprise: []string{"Compras@Empresa.com ", "dueña@taller.co"},
		Premium:    []string{"premium@taller.co", ""},
	})
}

func TestRoleFor(t *testing.T) {
	p := testPolicy()
	require.Equal(t, RoleAdmin, p.RoleFor("dueña@taller.co"))
	require.Equal(t, RoleEnterprise, p.RoleFor("compras@empresa.com"))
	require.Equal(t, RolePremium, p.RoleFor("PREMIUM@taller.co"))
	require.Equal(t, RoleStaff, p.RoleFor("costurera@taller.co"))
}

func TestCan(t *testing.T) {
	p := testPolicy()

	cases := []struct {
		email string
		cap   Capability
		want  bool
	}{
		{"costurera@taller.co", ViewQuotes, true},
		{"costurera@taller.co", RecordFittings, true},
		{"costurera@taller.co", ManageProjects, false},
		{"costurera@taller.co", RecalculateConsumption, false},
		{"premium@taller.co", RecalculateConsumption, true},
		{"premium@taller.co", ExportReports, false},
		{"compras@empresa.com", ExportReports, true},
		{"compras@empresa.com", ManageCompany, false},
		{"dueña@taller.co", ManageCompany, true},
		{"", ViewQuotes, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, p.Can(tc.email, tc.cap), "%s %s", tc.email, tc.cap)
	}
}

func TestCapabilitiesReturnsCopy(t *testing.T) {
	p := testPolicy()
	caps := p.Capabilities("costurera@taller.co")
	caps[0] = ManageCompany
	require.False(t, p.Can("costurera@taller.co", ManageCompany))
}

func TestNilPolicyFallsBackToStaff(t *testing.T) {
	var p *Policy
	require.Equal(t, RoleStaff, p.RoleFor("x@y.z"))
	require.True(t, p.Can("x@y.z", ViewQuotes))
}
