package workflow

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"procuretrack/internal/model"

	"gopkg.in/yaml.v3"
)

//go:embed definition.yaml
var embeddedDefinition []byte

// HandlerNone is the side-effect handler of transitions that only move state.
const HandlerNone = "none"

// Creation requirements a document type may declare.
const (
	RequireAmount        = "amount"
	RequireAllocation    = "allocation"
	RequireInventoryItem = "inventory_item"
)

// Transition is one named edge of a document type's state graph.
type Transition struct {
	DocumentType string
	Name         string
	From         string
	To           string
	Role         string
	Handler      string
	Rework       bool
}

// LinkRule describes a reference a document of this type may (or must) carry at creation.
type LinkRule struct {
	Relation     string `yaml:"relation"`
	DocumentType string `yaml:"document_type"`
	Required     bool   `yaml:"required"`
}

// DocumentType is the parsed state graph of one document type.
type DocumentType struct {
	Name         string
	Prefix       string
	InitialState string
	CreatedBy    []string
	Requires     []string
	Links        []LinkRule
	States       []string
	Transitions  []Transition

	states   map[string]bool
	terminal map[string]bool
	requires map[string]bool
}

// Definition is the immutable workflow table. It is safe for concurrent use.
type Definition struct {
	types        map[string]*DocumentType
	order        []string
	remarkStates map[string]bool
}

type rawDefinition struct {
	RemarksRequiredStates []string          `yaml:"remarks_required_states"`
	DocumentTypes         []rawDocumentType `yaml:"document_types"`
}

type rawDocumentType struct {
	Type           string          `yaml:"type"`
	Prefix         string          `yaml:"prefix"`
	InitialState   string          `yaml:"initial_state"`
	CreatedBy      []string        `yaml:"created_by"`
	Requires       []string        `yaml:"requires"`
	Links          []LinkRule      `yaml:"links"`
	States         []string        `yaml:"states"`
	TerminalStates []string        `yaml:"terminal_states"`
	Transitions    []rawTransition `yaml:"transitions"`
}

type rawTransition struct {
	Name    string   `yaml:"name"`
	From    []string `yaml:"from"`
	To      string   `yaml:"to"`
	Role    string   `yaml:"role"`
	Handler string   `yaml:"handler"`
	Rework  bool     `yaml:"rework"`
}

// Load parses the definition file at path, or the embedded default when path is empty.
func Load(path string) (*Definition, error) {
	if path == "" {
		return Parse(embeddedDefinition)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow definition: %w", err)
	}
	return Parse(data)
}

// Default returns the embedded definition.
func Default() (*Definition, error) {
	return Parse(embeddedDefinition)
}

// Parse decodes and validates a YAML workflow definition.
func Parse(data []byte) (*Definition, error) {
	var raw rawDefinition
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse workflow definition: %w", err)
	}

	def := &Definition{
		types:        make(map[string]*DocumentType),
		remarkStates: toSet(raw.RemarksRequiredStates),
	}

	for _, rt := range raw.DocumentTypes {
		if rt.Type == "" {
			return nil, fmt.Errorf("workflow definition: document type without a name")
		}
		if _, dup := def.types[rt.Type]; dup {
			return nil, fmt.Errorf("workflow definition: duplicate document type %s", rt.Type)
		}

		dt := &DocumentType{
			Name:         rt.Type,
			Prefix:       rt.Prefix,
			InitialState: rt.InitialState,
			CreatedBy:    rt.CreatedBy,
			Requires:     rt.Requires,
			Links:        rt.Links,
			States:       rt.States,
			states:       toSet(rt.States),
			terminal:     toSet(rt.TerminalStates),
			requires:     toSet(rt.Requires),
		}
		for _, t := range rt.Transitions {
			handler := t.Handler
			if handler == "" {
				handler = HandlerNone
			}
			for _, from := range t.From {
				dt.Transitions = append(dt.Transitions, Transition{
					DocumentType: rt.Type,
					Name:         t.Name,
					From:         from,
					To:           t.To,
					Role:         t.Role,
					Handler:      handler,
					Rework:       t.Rework,
				})
			}
		}
		for _, s := range rt.TerminalStates {
			if !dt.states[s] {
				return nil, fmt.Errorf("workflow definition: %s terminal state %s is not a state", rt.Type, s)
			}
		}

		def.types[rt.Type] = dt
		def.order = append(def.order, rt.Type)
	}

	if err := def.validate(); err != nil {
		return nil, err
	}
	return def, nil
}

func (d *Definition) validate() error {
	if len(d.types) == 0 {
		return fmt.Errorf("workflow definition: no document types")
	}

	for _, name := range d.order {
		dt := d.types[name]
		if dt.Prefix == "" {
			return fmt.Errorf("workflow definition: %s has no tracking prefix", name)
		}
		if !dt.states[dt.InitialState] {
			return fmt.Errorf("workflow definition: %s initial state %q is not a state", name, dt.InitialState)
		}
		if len(dt.CreatedBy) == 0 {
			return fmt.Errorf("workflow definition: %s has no creating role", name)
		}
		for _, r := range dt.Requires {
			if r != RequireAmount && r != RequireAllocation && r != RequireInventoryItem {
				return fmt.Errorf("workflow definition: %s has unknown requirement %q", name, r)
			}
		}

		seen := make(map[string]bool)
		outgoing := make(map[string]int)
		for _, t := range dt.Transitions {
			if t.Name == "" || t.Role == "" {
				return fmt.Errorf("workflow definition: %s has a transition without name or role", name)
			}
			if !dt.states[t.From] || !dt.states[t.To] {
				return fmt.Errorf("workflow definition: %s.%s references unknown state (%s -> %s)", name, t.Name, t.From, t.To)
			}
			if dt.terminal[t.From] {
				return fmt.Errorf("workflow definition: %s.%s leaves terminal state %s", name, t.Name, t.From)
			}
			key := t.Name + "|" + t.From
			if seen[key] {
				return fmt.Errorf("workflow definition: %s.%s declared twice from %s", name, t.Name, t.From)
			}
			seen[key] = true
			outgoing[t.From]++
		}

		for _, s := range dt.States {
			if !dt.terminal[s] && outgoing[s] == 0 {
				return fmt.Errorf("workflow definition: %s state %s is a dead end but not terminal", name, s)
			}
		}
		if err := checkAcyclic(dt); err != nil {
			return err
		}
		if err := checkReachable(dt); err != nil {
			return err
		}
	}

	for s := range d.remarkStates {
		if len(d.StagesIn(s)) == 0 {
			return fmt.Errorf("workflow definition: remarks state %s is not used by any document type", s)
		}
	}

	for _, name := range d.order {
		for _, l := range d.types[name].Links {
			if _, ok := d.types[l.DocumentType]; !ok {
				return fmt.Errorf("workflow definition: %s links unknown document type %s", name, l.DocumentType)
			}
		}
	}
	return nil
}

// checkAcyclic rejects cycles formed by forward (non-rework) edges.
func checkAcyclic(dt *DocumentType) error {
	const (
		unvisited = iota
		visiting
		done
	)
	mark := make(map[string]int)
	next := make(map[string][]string)
	for _, t := range dt.Transitions {
		if !t.Rework {
			next[t.From] = append(next[t.From], t.To)
		}
	}

	var visit func(s string) error
	visit = func(s string) error {
		switch mark[s] {
		case visiting:
			return fmt.Errorf("workflow definition: %s has a cycle through %s that is not marked rework", dt.Name, s)
		case done:
			return nil
		}
		mark[s] = visiting
		for _, n := range next[s] {
			if err := visit(n); err != nil {
				return err
			}
		}
		mark[s] = done
		return nil
	}

	for _, s := range dt.States {
		if err := visit(s); err != nil {
			return err
		}
	}
	return nil
}

func checkReachable(dt *DocumentType) error {
	reached := map[string]bool{dt.InitialState: true}
	queue := []string{dt.InitialState}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		for _, t := range dt.Transitions {
			if t.From == s && !reached[t.To] {
				reached[t.To] = true
				queue = append(queue, t.To)
			}
		}
	}
	for _, s := range dt.States {
		if !reached[s] {
			return fmt.Errorf("workflow definition: %s state %s is unreachable", dt.Name, s)
		}
	}
	return nil
}

// Type returns the document type named name.
func (d *Definition) Type(name string) (*DocumentType, bool) {
	dt, ok := d.types[name]
	return dt, ok
}

// Types returns every document type in definition order.
func (d *Definition) Types() []*DocumentType {
	out := make([]*DocumentType, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.types[name])
	}
	return out
}

// Find returns the transition called name leaving from.
func (d *Definition) Find(docType, name, from string) (Transition, bool) {
	dt, ok := d.types[docType]
	if !ok {
		return Transition{}, false
	}
	for _, t := range dt.Transitions {
		if t.Name == name && t.From == from {
			return t, true
		}
	}
	return Transition{}, false
}

// HasTransition reports whether docType declares a transition called name from any state.
func (d *Definition) HasTransition(docType, name string) bool {
	dt, ok := d.types[docType]
	if !ok {
		return false
	}
	for _, t := range dt.Transitions {
		if t.Name == name {
			return true
		}
	}
	return false
}

// Outgoing lists the transitions leaving state, in definition order.
func (d *Definition) Outgoing(docType, state string) []Transition {
	dt, ok := d.types[docType]
	if !ok {
		return nil
	}
	var out []Transition
	for _, t := range dt.Transitions {
		if t.From == state {
			out = append(out, t)
		}
	}
	return out
}

// IsValidState reports whether state belongs to docType.
func (d *Definition) IsValidState(docType, state string) bool {
	dt, ok := d.types[docType]
	return ok && dt.states[state]
}

// IsTerminal reports whether state freezes the document.
func (d *Definition) IsTerminal(docType, state string) bool {
	dt, ok := d.types[docType]
	return ok && dt.terminal[state]
}

// RequiresRemarks reports whether entering state needs a non-empty reason.
func (d *Definition) RequiresRemarks(state string) bool {
	return d.remarkStates[state]
}

// HandlerIDs returns the distinct side-effect handler ids referenced by the table.
func (d *Definition) HandlerIDs() []string {
	set := make(map[string]bool)
	for _, dt := range d.types {
		for _, t := range dt.Transitions {
			set[t.Handler] = true
		}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StagesFor returns every (type, state) pair with an outgoing transition any of roles may execute.
func (d *Definition) StagesFor(roles ...string) []model.Stage {
	want := toSet(roles)
	var stages []model.Stage
	seen := make(map[string]bool)
	for _, name := range d.order {
		for _, t := range d.types[name].Transitions {
			key := name + "|" + t.From
			if want[t.Role] && !seen[key] {
				seen[key] = true
				stages = append(stages, model.Stage{DocumentType: name, State: t.From})
			}
		}
	}
	return stages
}

// StagesIn returns every (type, state) pair whose state is one of states.
func (d *Definition) StagesIn(states ...string) []model.Stage {
	want := toSet(states)
	var stages []model.Stage
	for _, name := range d.order {
		for _, s := range d.types[name].States {
			if want[s] {
				stages = append(stages, model.Stage{DocumentType: name, State: s})
			}
		}
	}
	return stages
}

// CanCreate reports whether role may originate documents of this type.
func (dt *DocumentType) CanCreate(role string) bool {
	for _, r := range dt.CreatedBy {
		if r == role {
			return true
		}
	}
	return false
}

// Needs reports whether the creation requirement key applies to this type.
func (dt *DocumentType) Needs(key string) bool {
	return dt.requires[key]
}

// TerminalStates lists the type's terminal states in declaration order.
func (dt *DocumentType) TerminalStates() []string {
	var out []string
	for _, s := range dt.States {
		if dt.terminal[s] {
			out = append(out, s)
		}
	}
	return out
}

// LinkRule returns the rule for relation, if any.
func (dt *DocumentType) LinkRule(relation string) (LinkRule, bool) {
	for _, l := range dt.Links {
		if strings.EqualFold(l.Relation, relation) {
			return l, true
		}
	}
	return LinkRule{}, false
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, i := range items {
		set[i] = true
	}
	return set
}
