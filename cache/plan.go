package cache

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/unkn0wn-root/weave"
	"github.com/unkn0wn-root/weave/codec"
	"github.com/unkn0wn-root/weave/keytpl"
)

// Plan is the compiled cache behavior of one method. Plans are built while the
// aspect is configured and never change afterwards.
type Plan struct {
	Method    weave.Method
	Action    Action
	Provider  Provider
	TTL       time.Duration // base TTL, Set plans only
	KeyPrefix string

	tpl       *keytpl.Template
	condition func(any) bool
	ttlOffset func(any) time.Duration
}

// PlanInfo is the diagnostic view of a Plan. Functions are reported only as present or not.
type PlanInfo struct {
	Method       string        `json:"method" yaml:"method"`
	Signature    string        `json:"signature" yaml:"signature"`
	KeyTemplate  string        `json:"key_template" yaml:"key_template"`
	Action       Action        `json:"action" yaml:"action"`
	Provider     Provider      `json:"provider" yaml:"provider"`
	TTL          time.Duration `json:"ttl" yaml:"ttl"`
	KeyPrefix    string        `json:"key_prefix" yaml:"key_prefix"`
	HasCondition bool          `json:"has_condition" yaml:"has_condition"`
	HasTTLOffset bool          `json:"has_ttl_offset" yaml:"has_ttl_offset"`
	HasKeyFunc   bool          `json:"has_key_func" yaml:"has_key_func"`
}

func (p *Plan) Template() string { return p.tpl.String() }

func (p *Plan) Info() PlanInfo {
	return PlanInfo{
		Method:       p.Method.Name,
		Signature:    p.Method.String(),
		KeyTemplate:  p.tpl.String(),
		Action:       p.Action,
		Provider:     p.Provider,
		TTL:          p.TTL,
		KeyPrefix:    p.KeyPrefix,
		HasCondition: p.condition != nil,
		HasTTLOffset: p.ttlOffset != nil,
		HasKeyFunc:   p.tpl != nil,
	}
}

func sortedInfos(plans map[string]*Plan) []PlanInfo {
	out := make([]PlanInfo, 0, len(plans))
	for _, p := range plans {
		out = append(out, p.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Method < out[j].Method })
	return out
}

var anyType = reflect.TypeFor[any]()

// compile validates r against the target and the aspect's backends.
func (a *Aspect) compile(t weave.Target, r *rule, prefix string) (*Plan, error) {
	m := r.method
	cerr := func(msg string, err error) error {
		return &weave.ConfigError{Target: t.String(), Method: m.Name, Msg: msg, Err: err}
	}

	if r.action != Set && r.action != Remove {
		return nil, cerr(fmt.Sprintf("unknown cache action %s", r.action), nil)
	}
	if r.action == Set && m.Void() {
		return nil, cerr(fmt.Sprintf("method %s does not return and cannot be cached", m.Name), nil)
	}
	if r.resultType != nil {
		switch {
		case m.Void() && r.resultType != anyType:
			return nil, cerr(fmt.Sprintf("rule expects result %s but method returns nothing", r.resultType), nil)
		case !m.Void() && !m.Result.AssignableTo(r.resultType):
			return nil, cerr(fmt.Sprintf("rule expects result %s but method returns %s", r.resultType, m.Result), nil)
		}
	}

	provider := coalesce(r.provider, a.setup.provider)
	switch provider {
	case Memory:
		if a.opts.Memory == nil {
			return nil, cerr("memory provider selected but Options.Memory is nil", nil)
		}
	case Distributed:
		if a.opts.Distributed == nil {
			return nil, cerr("distributed provider selected but Options.Distributed is nil", nil)
		}
	default:
		return nil, cerr(fmt.Sprintf("unknown cache provider %s", provider), nil)
	}

	ttl := a.setup.ttl
	if r.ttlSet {
		ttl = r.ttl
	}
	if r.action == Set && ttl <= 0 {
		return nil, cerr(fmt.Sprintf("timeout must be greater than zero, got %s", ttl), nil)
	}

	result := m.Result
	if r.noResult {
		result = nil
	}
	tpl, err := keytpl.Compile(r.key, vars(m), result)
	if err != nil {
		return nil, cerr("invalid key template", err)
	}

	if r.action == Set && provider == Distributed {
		if err := codec.Check(a.opts.Codec, m.Result); err != nil {
			return nil, cerr(fmt.Sprintf("type %s of method %s cannot be cached with provider Distributed", m.Result, m.Name), err)
		}
	}

	p := &Plan{
		Method:    m,
		Action:    r.action,
		Provider:  provider,
		KeyPrefix: prefix,
		tpl:       tpl,
		condition: r.condition,
		ttlOffset: r.ttlOffset,
	}
	if r.action == Set {
		p.TTL = ttl
	}
	return p, nil
}

func vars(m weave.Method) []keytpl.Var {
	out := make([]keytpl.Var, len(m.Params))
	for i, p := range m.Params {
		out[i] = keytpl.Var{Name: p.Name, Type: p.Type}
	}
	return out
}

// collectRules merges declared markers and explicit rules. Markers are read
// when the setup has no rules or ImportDeclared was called; an explicit rule
// replaces a marker for the same method.
func (a *Aspect) collectRules(t weave.Target) ([]*rule, error) {
	var out []*rule
	pos := map[string]int{}

	if a.setup.Empty() || a.setup.importDeclared {
		for _, mk := range declaredMarkers(t.Implementation) {
			m, ok := t.Method(mk.Method)
			if !ok {
				return nil, &weave.ConfigError{Target: t.String(), Method: mk.Method, Msg: "cache policy declared for a method the contract does not have"}
			}
			if _, dup := pos[m.Name]; dup {
				return nil, &weave.ConfigError{Target: t.String(), Method: m.Name, Msg: "more than one cache policy declared"}
			}
			pos[m.Name] = len(out)
			out = append(out, markerRule(m, mk))
		}
	}

	explicit := map[string]bool{}
	for _, r := range a.setup.rules {
		name := r.method.Name
		if explicit[name] {
			return nil, &weave.ConfigError{Target: t.String(), Method: name, Msg: "more than one cache rule"}
		}
		explicit[name] = true
		if len(t.Methods) > 0 {
			cm, ok := t.Method(name)
			if !ok {
				return nil, &weave.ConfigError{Target: t.String(), Method: name, Msg: "cache rule for a method the contract does not have"}
			}
			if !sameSignature(cm, r.method) {
				return nil, &weave.ConfigError{Target: t.String(), Method: name, Msg: fmt.Sprintf("cache rule signature %s differs from contract %s", r.method, cm)}
			}
		}
		if i, ok := pos[name]; ok {
			out[i] = r
			continue
		}
		pos[name] = len(out)
		out = append(out, r)
	}
	return out, nil
}

func sameSignature(a, b weave.Method) bool {
	if a.Name != b.Name || a.Result != b.Result || len(a.Params) != len(b.Params) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	return true
}
