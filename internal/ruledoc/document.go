// Package ruledoc parses rule documents and compiles them into bundles of
// ready-to-evaluate models.
//
// A document is YAML:
//
//	keys:
//	  - name: verb
//	    type: string
//	    default: view
//	models:
//	  - name: base
//	    rules:
//	      - key: title
//	        match: {verb: view}
//	        value: Hello!
//	  - name: mobile
//	    fallback: base
//	    rules:
//	      - key: title
//	        when: 'verb == "edit" && size(title) > 3'
//	        expr: '"Edit " + title'
//	        priority: high
package ruledoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDocument wraps every structural problem found in a document.
var ErrInvalidDocument = errors.New("invalid rule document")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Document is the parsed, not yet compiled, form of a rule document.
type Document struct {
	Keys   []KeySpec   `yaml:"keys" validate:"dive"`
	Models []ModelSpec `yaml:"models" validate:"required,min=1,dive"`
}

// KeySpec declares one key.
type KeySpec struct {
	Name        string    `yaml:"name" validate:"required"`
	Type        string    `yaml:"type" validate:"required,oneof=string int float bool"`
	Description string    `yaml:"description"`
	Default     yaml.Node `yaml:"default"`
	DefaultExpr string    `yaml:"default_expr"`
}

// HasDefault reports whether the document sets a literal default.
func (k *KeySpec) HasDefault() bool { return present(&k.Default) }

// ModelSpec declares one model. Fallback names another model of the same document.
type ModelSpec struct {
	Name     string     `yaml:"name" validate:"required"`
	Fallback string     `yaml:"fallback"`
	Rules    []RuleSpec `yaml:"rules" validate:"dive"`
}

// RuleSpec declares one rule. Conditions are combined conjunctively; exactly one
// of Value, From and Expr sets the value.
type RuleSpec struct {
	Key         string               `yaml:"key" validate:"required"`
	When        string               `yaml:"when"`
	Match       map[string]yaml.Node `yaml:"match"`
	Rollout     *RolloutSpec         `yaml:"rollout"`
	Specificity *int                 `yaml:"specificity" validate:"omitempty,min=0"`
	Priority    PrioritySpec         `yaml:"priority"`
	Value       yaml.Node            `yaml:"value"`
	From        string               `yaml:"from"`
	Expr        string               `yaml:"expr"`
}

// RolloutSpec restricts a rule to a stable percentage of subjects.
type RolloutSpec struct {
	Key        string `yaml:"key" validate:"required"`
	Percentage int    `yaml:"percentage" validate:"min=0,max=100"`
	Salt       string `yaml:"salt"`
}

// PrioritySpec accepts either a band name or an integer.
type PrioritySpec string

// UnmarshalYAML keeps the scalar text whatever its resolved tag.
func (p *PrioritySpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: priority must be a scalar", node.Line)
	}
	*p = PrioritySpec(node.Value)
	return nil
}

// Parse decodes and structurally validates a document. Unknown fields are rejected.
func Parse(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidDocument)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks the constraints that do not need compilation.
func (d *Document) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	keys := make(map[string]struct{}, len(d.Keys))
	for _, k := range d.Keys {
		if strings.ContainsFunc(k.Name, unicode.IsSpace) {
			return fmt.Errorf("%w: key name %q contains whitespace", ErrInvalidDocument, k.Name)
		}
		if _, dup := keys[k.Name]; dup {
			return fmt.Errorf("%w: key %q declared twice", ErrInvalidDocument, k.Name)
		}
		keys[k.Name] = struct{}{}
		if k.HasDefault() && k.DefaultExpr != "" {
			return fmt.Errorf("%w: key %q sets both default and default_expr", ErrInvalidDocument, k.Name)
		}
	}

	models := make(map[string]struct{}, len(d.Models))
	for _, m := range d.Models {
		if _, dup := models[m.Name]; dup {
			return fmt.Errorf("%w: model %q declared twice", ErrInvalidDocument, m.Name)
		}
		models[m.Name] = struct{}{}

		for i, r := range m.Rules {
			if n := r.actionCount(); n != 1 {
				return fmt.Errorf("%w: model %q rule %d: exactly one of value, from and expr is required, got %d",
					ErrInvalidDocument, m.Name, i, n)
			}
		}
	}
	return nil
}

func (r *RuleSpec) actionCount() int {
	n := 0
	if present(&r.Value) {
		n++
	}
	if r.From != "" {
		n++
	}
	if r.Expr != "" {
		n++
	}
	return n
}

// present reports whether a node field was set in the document. An absent
// field decodes to the zero Node.
func present(node *yaml.Node) bool {
	return node.Kind != 0
}
