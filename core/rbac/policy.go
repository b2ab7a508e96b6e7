package rbac

import (
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

type Permission string

const (
	PermIncidentsView    Permission = "incidents.view"
	PermIncidentsViewAll Permission = "incidents.view_all"
	PermIncidentsCreate  Permission = "incidents.create"
	PermIncidentsEdit    Permission = "incidents.edit"
	PermIncidentsAssign  Permission = "incidents.assign"
	PermIncidentsResolve Permission = "incidents.resolve"
	PermIncidentsApprove Permission = "incidents.approve"
	PermEvidenceManage   Permission = "evidence.manage"
	PermMasterView       Permission = "master.view"
	PermMasterManage     Permission = "master.manage"
	PermAccountsManage   Permission = "accounts.manage"
	PermAuditView        Permission = "audit.view"
	PermDashboardView    Permission = "dashboard.view"
	PermMapView          Permission = "map.view"
)

const rbacModel = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.act == p.act
`

type RoleGrant struct {
	Role        string
	Permissions []Permission
	Inherits    []string
}

// DefaultRoles defines the built-in role lattice. handler covers the field
// roles' permissions; manager extends handler; admin extends manager.
func DefaultRoles() []RoleGrant {
	return []RoleGrant{
		{
			Role: "end_user",
			Permissions: []Permission{
				PermIncidentsView, PermIncidentsCreate, PermMasterView,
			},
		},
		{
			Role:     "field_engineer",
			Inherits: []string{"end_user"},
			Permissions: []Permission{
				PermIncidentsViewAll, PermIncidentsResolve, PermEvidenceManage, PermMapView,
			},
		},
		{
			Role:     "water_pollution_expert",
			Inherits: []string{"end_user"},
			Permissions: []Permission{
				PermIncidentsViewAll, PermIncidentsResolve, PermEvidenceManage, PermMapView,
			},
		},
		{
			Role:     "handler",
			Inherits: []string{"end_user"},
			Permissions: []Permission{
				PermIncidentsViewAll, PermIncidentsEdit, PermIncidentsAssign, PermIncidentsResolve,
				PermEvidenceManage, PermDashboardView, PermMapView,
			},
		},
		{
			Role:     "manager",
			Inherits: []string{"handler"},
			Permissions: []Permission{
				PermIncidentsApprove, PermAuditView, PermMasterManage,
			},
		},
		{
			Role:     "admin",
			Inherits: []string{"manager"},
			Permissions: []Permission{
				PermAccountsManage,
			},
		},
	}
}

type Policy struct {
	enforcer *casbin.Enforcer
}

func NewPolicy(grants []RoleGrant) (*Policy, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("rbac model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("rbac enforcer: %w", err)
	}
	for _, g := range grants {
		role := strings.ToLower(strings.TrimSpace(g.Role))
		for _, parent := range g.Inherits {
			if _, err := e.AddGroupingPolicy(role, strings.ToLower(strings.TrimSpace(parent))); err != nil {
				return nil, err
			}
		}
		for _, p := range g.Permissions {
			if _, err := e.AddPolicy(role, string(p)); err != nil {
				return nil, err
			}
		}
	}
	return &Policy{enforcer: e}, nil
}

func MustNewPolicy(grants []RoleGrant) *Policy {
	p, err := NewPolicy(grants)
	if err != nil {
		panic(err)
	}
	return p
}

// Allowed reports whether any of the subject's roles grants the permission.
func (p *Policy) Allowed(roles []string, perm Permission) bool {
	if p == nil || p.enforcer == nil {
		return false
	}
	for _, role := range roles {
		ok, err := p.enforcer.Enforce(strings.ToLower(strings.TrimSpace(role)), string(perm))
		if err == nil && ok {
			return true
		}
	}
	return false
}

// Permissions returns the flattened permission set for a role list.
func (p *Policy) Permissions(roles []string) []Permission {
	seen := make(map[Permission]struct{})
	var out []Permission
	for _, perm := range allPermissions() {
		if _, ok := seen[perm]; ok {
			continue
		}
		if p.Allowed(roles, perm) {
			out = append(out, perm)
			seen[perm] = struct{}{}
		}
	}
	return out
}

func allPermissions() []Permission {
	return []Permission{
		PermIncidentsView, PermIncidentsViewAll, PermIncidentsCreate, PermIncidentsEdit,
		PermIncidentsAssign, PermIncidentsResolve, PermIncidentsApprove, PermEvidenceManage,
		PermMasterView, PermMasterManage, PermAccountsManage, PermAuditView,
		PermDashboardView, PermMapView,
	}
}
