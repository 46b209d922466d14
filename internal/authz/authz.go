// Package authz decides what a signed-in user may do.
package authz

import (
	"strings"
)

// Role is a named set of capabilities.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleEnterprise Role = "enterprise"
	RolePremium    Role = "premium"
	RoleStaff      Role = "staff"
)

// Capability is a single permission checked by handlers.
type Capability string

const (
	ViewQuotes             Capability = "quotes:view"
	ManageProjects         Capability = "projects:manage"
	RecordFittings         Capability = "fittings:record"
	RecalculateConsumption Capability = "consumption:recalculate"
	ManageCompany          Capability = "company:manage"
	ExportReports          Capability = "reports:export"
)

var roleCapabilities = map[Role][]Capability{
	RoleStaff:      {ViewQuotes, RecordFittings},
	RolePremium:    {ViewQuotes, RecordFittings, ManageProjects, RecalculateConsumption},
	RoleEnterprise: {ViewQuotes, RecordFittings, ManageProjects, RecalculateConsumption, ExportReports},
	RoleAdmin:      {ViewQuotes, RecordFittings, ManageProjects, RecalculateConsumption, ExportReports, ManageCompany},
}

// Assignments lists which emails hold the elevated roles. Everyone else is staff.
type Assignments struct {
	Admins     []string
	Enterprise []string
	Premium    []string
}

// Policy maps users to roles and roles to capabilities. It is immutable once built.
type Policy struct {
	roles map[string]Role
}

// NewPolicy builds a policy. An email listed under several roles gets the highest one.
func NewPolicy(a Assignments) *Policy {
	p := &Policy{roles: make(map[string]Role)}
	assign := func(emails []string, role Role) {
		for _, e := range emails {
			key := normaliseEmail(e)
			if key == "" {
				continue
			}
			if _, taken := p.roles[key]; taken {
				continue
			}
			p.roles[key] = role
		}
	}
	assign(a.Admins, RoleAdmin)
	assign(a.Enterprise, RoleEnterprise)
	assign(a.Premium, RolePremium)
	return p
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RoleFor returns the role of email.
func (p *Policy) RoleFor(email string) Role {
	if p != nil {
		if role, ok := p.roles[normaliseEmail(email)]; ok {
			return role
		}
	}
	return RoleStaff
}

// Can reports whether email holds capability.
func (p *Policy) Can(email string, capability Capability) bool {
	if normaliseEmail(email) == "" {
		return false
	}
	for _, c := range roleCapabilities[p.RoleFor(email)] {
		if c == capability {
			return true
		}
	}
	return false
}

// Capabilities lists what email may do.
func (p *Policy) Capabilities(email string) []Capability {
	caps := roleCapabilities[p.RoleFor(email)]
	out := make([]Capability, len(caps))
	copy(out, caps)
	return out
}
