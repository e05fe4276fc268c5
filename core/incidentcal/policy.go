package incidentcal

import (
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

const viewModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act, eft

[policy_effect]
e = some(where (p.eft == allow)) && !some(where (p.eft == deny))

[matchers]
m = (p.sub == "*" || r.sub == p.sub) && r.obj == p.obj && r.act == p.act
`

const (
	viewObject = "incidents-calendar"
	viewAction = "view"
)

// ViewPolicy decides who may see the incidents calendar. Everyone may,
// except students.
type ViewPolicy struct {
	enforcer *casbin.SyncedEnforcer
}

func NewViewPolicy() (*ViewPolicy, error) {
	m, err := model.NewModelFromString(viewModel)
	if err != nil {
		return nil, fmt.Errorf("load view model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create view enforcer: %w", err)
	}
	rules := [][]string{
		{"*", viewObject, viewAction, "allow"},
		{"student", viewObject, viewAction, "deny"},
	}
	for _, rule := range rules {
		if _, err := enforcer.AddPolicy(rule[0], rule[1], rule[2], rule[3]); err != nil {
			return nil, fmt.Errorf("add policy %v: %w", rule, err)
		}
	}
	return &ViewPolicy{enforcer: enforcer}, nil
}

func (p *ViewPolicy) CanView(role string) bool {
	if p == nil {
		return false
	}
	ok, err := p.enforcer.Enforce(strings.ToLower(strings.TrimSpace(role)), viewObject, viewAction)
	return err == nil && ok
}
