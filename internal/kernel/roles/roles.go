// Package roles loads and validates Role Profiles from disk: the read-only
// records the Org Kernel Dispatcher (K) uses to select an active role and
// compile its PACE plan, per spec.md §3's Role Profile type and §4.5's
// dispatcher steps. Profile validation is grounded on the teacher's
// registry/service.go validatePayloadJSONAgainstSchema helper — decode to
// any, compile a schema resource, validate — reused here for the role
// profile and SALUTE report JSON shapes.
package roles

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/wardenai/warden/internal/kernel/pace"
)

// Type enumerates a role's position in the organization hierarchy.
type Type string

const (
	TypeSpecialist Type = "specialist"
	TypeExecutive  Type = "executive"
	TypeCommander  Type = "commander"
)

// typeOrder gives the dispatcher's preferred selection order: specialist <
// executive < commander, per spec.md §4.5 step 3.
var typeOrder = map[Type]int{TypeSpecialist: 0, TypeExecutive: 1, TypeCommander: 2}

// Order returns t's position in the preferred selection order.
func (t Type) Order() int { return typeOrder[t] }

type (
	// Capabilities declares what a role is scoped to.
	Capabilities struct {
		BSTDomains []string `json:"bst_domains"`
		ToolPlans  []string `json:"tool_plans,omitempty"` // nil = unrestricted
	}

	// Doctrine holds the role's cadence and escalation thresholds.
	Doctrine struct {
		SALUTEIntervalTurns     int `json:"salute_interval_turns"`
		MaxTurnsWithoutProgress int `json:"max_turns_without_progress"`
	}

	// TriggerSpec is the raw trigger-expression source for one PACE level.
	TriggerSpec struct {
		Trigger string `json:"trigger"`
	}

	// PacePlanSpec holds the raw trigger expressions a role profile declares
	// for the non-primary PACE levels.
	PacePlanSpec struct {
		Alternate  TriggerSpec `json:"alternate"`
		Contingent TriggerSpec `json:"contingent"`
		Emergency  TriggerSpec `json:"emergency"`
	}

	// Profile is a Role Profile as loaded from disk, per spec.md §3.
	Profile struct {
		RoleID       string       `json:"role_id"`
		RoleName     string       `json:"role_name"`
		RoleType     Type         `json:"role_type"`
		Capabilities Capabilities `json:"capabilities"`
		Doctrine     Doctrine     `json:"doctrine"`
		PacePlan     PacePlanSpec `json:"pace_plan"`
	}
)

// profileSchema is the JSON schema a role profile document must satisfy.
// Kept minimal: it enforces the required top-level shape spec.md §3
// defines; field-level domain constraints are enforced by Go's typed
// decode.
const profileSchema = `{
  "type": "object",
  "required": ["role_id", "role_name", "role_type", "capabilities", "doctrine"],
  "properties": {
    "role_id": {"type": "string", "minLength": 1},
    "role_name": {"type": "string", "minLength": 1},
    "role_type": {"enum": ["specialist", "executive", "commander"]},
    "capabilities": {
      "type": "object",
      "required": ["bst_domains"],
      "properties": {
        "bst_domains": {"type": "array", "items": {"type": "string"}}
      }
    },
    "doctrine": {
      "type": "object",
      "required": ["salute_interval_turns", "max_turns_without_progress"],
      "properties": {
        "salute_interval_turns": {"type": "integer", "minimum": 1},
        "max_turns_without_progress": {"type": "integer", "minimum": 1}
      }
    }
  }
}`

var compiledProfileSchema *jsonschema.Schema

func init() {
	var schemaDoc any
	if err := json.Unmarshal([]byte(profileSchema), &schemaDoc); err != nil {
		panic(fmt.Errorf("roles: invalid embedded profile schema: %w", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("role_profile.json", schemaDoc); err != nil {
		panic(fmt.Errorf("roles: adding profile schema resource: %w", err))
	}
	schema, err := c.Compile("role_profile.json")
	if err != nil {
		panic(fmt.Errorf("roles: compiling profile schema: %w", err))
	}
	compiledProfileSchema = schema
}

// Validate checks raw role profile JSON against the schema before decoding.
func Validate(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("role profile: invalid json: %w", err)
	}
	if err := compiledProfileSchema.Validate(doc); err != nil {
		return fmt.Errorf("role profile: schema validation failed: %w", err)
	}
	return nil
}

// Load reads, validates, and decodes a single role profile file.
func Load(path string) (Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("reading role profile %q: %w", path, err)
	}
	if err := Validate(raw); err != nil {
		return Profile{}, err
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return Profile{}, fmt.Errorf("decoding role profile %q: %w", path, err)
	}
	return p, nil
}

// LoadDir loads every `<role_id>.json` file directly under dir, keyed by
// role_id.
func LoadDir(dir string) (map[string]Profile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading roles dir %q: %w", dir, err)
	}
	profiles := make(map[string]Profile, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		p, err := Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		profiles[p.RoleID] = p
	}
	return profiles, nil
}

// CompilePacePlan compiles a Profile's raw PACE trigger expressions into a
// pace.Plan, binding the emergency legs to spec.md §4.5.1's fixed
// thresholds (unrecoverable-error consecutive count of 8, 1.5× multiplier).
func CompilePacePlan(p Profile) (pace.Plan, error) {
	alt, err := pace.Compile(p.PacePlan.Alternate.Trigger)
	if err != nil {
		return pace.Plan{}, fmt.Errorf("role %q: alternate trigger: %w", p.RoleID, err)
	}
	contingent, err := pace.Compile(p.PacePlan.Contingent.Trigger)
	if err != nil {
		return pace.Plan{}, fmt.Errorf("role %q: contingent trigger: %w", p.RoleID, err)
	}
	return pace.Plan{
		Alternate:  alt,
		Contingent: contingent,
		EmergencyUnrecoverableErrorMaxConsecutive: 8,
		EmergencyTurnsWithoutProgressMultiplier:   pace.DefaultEmergencyMultiplier,
	}, nil
}

// HasDomain reports whether p declares bst domain d among its capabilities.
func (p Profile) HasDomain(d string) bool {
	for _, dom := range p.Capabilities.BSTDomains {
		if dom == d {
			return true
		}
	}
	return false
}

// Skill mirrors the fields the Gateway's Agent Card needs from a role's
// declared tool plans; kept here (rather than importing a2a) so this
// package has no dependency on the transport layer.
type Skill struct {
	ID          string
	Name        string
	Description string
	Tags        []string
}

// DeriveSkills implements spec.md §4.1's Agent Card rule: "Skills are
// derived from the union of active-organization role capabilities and a
// tool/plan library." For every role named in hierarchy, each of its
// declared tool_plans becomes one skill (id = plan name, tags = the
// role's bst_domains); a role with a nil tool_plans list (unrestricted)
// contributes no plan-specific skills of its own but still exposes its
// bst domains as a catch-all skill named after the role. Plan
// descriptions come from planLibrary (plan name -> description); a plan
// absent from the library is still surfaced with an empty description.
// Duplicate plan names across roles are merged, accumulating tags.
func DeriveSkills(hierarchy []string, profiles map[string]Profile, planLibrary map[string]string) []Skill {
	order := make([]string, 0, len(hierarchy))
	byID := make(map[string]*Skill)

	addTags := func(s *Skill, tags []string) {
		for _, t := range tags {
			found := false
			for _, existing := range s.Tags {
				if existing == t {
					found = true
					break
				}
			}
			if !found {
				s.Tags = append(s.Tags, t)
			}
		}
	}

	for _, roleID := range hierarchy {
		p, ok := profiles[roleID]
		if !ok {
			continue
		}
		if len(p.Capabilities.ToolPlans) == 0 {
			skillID := "role:" + p.RoleID
			s, exists := byID[skillID]
			if !exists {
				s = &Skill{ID: skillID, Name: p.RoleName}
				byID[skillID] = s
				order = append(order, skillID)
			}
			addTags(s, p.Capabilities.BSTDomains)
			continue
		}
		for _, plan := range p.Capabilities.ToolPlans {
			s, exists := byID[plan]
			if !exists {
				s = &Skill{ID: plan, Name: plan, Description: planLibrary[plan]}
				byID[plan] = s
				order = append(order, plan)
			}
			addTags(s, p.Capabilities.BSTDomains)
		}
	}

	skills := make([]Skill, 0, len(order))
	for _, id := range order {
		skills = append(skills, *byID[id])
	}
	return skills
}

// SelectForDomain implements spec.md §4.5 step 3: among the roles in
// hierarchy whose bst_domains contain domain, prefer specialist < executive
// < commander. hierarchy lists candidate role IDs in the org's declared
// order; ties within the same type keep hierarchy order.
func SelectForDomain(hierarchy []string, profiles map[string]Profile, domain string) (Profile, bool) {
	var best *Profile
	for _, roleID := range hierarchy {
		p, ok := profiles[roleID]
		if !ok || !p.HasDomain(domain) {
			continue
		}
		if best == nil || p.RoleType.Order() < best.RoleType.Order() {
			cp := p
			best = &cp
		}
	}
	if best == nil {
		return Profile{}, false
	}
	return *best, true
}
