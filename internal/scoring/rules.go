package scoring

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/ZanzyTHEbar/epa-scoring/internal/errors"
)

//go:embed rules/integration_rules.yaml
var defaultRulesYAML []byte

// IntegrationRule links an ordered pair of Core EPAs.
type IntegrationRule struct {
	Primary          string  `yaml:"primary" json:"primary"`
	Secondary        string  `yaml:"secondary" json:"secondary"`
	RelationshipType string  `yaml:"relationship_type" json:"relationship_type"`
	BaseBonus        float64 `yaml:"base_bonus" json:"base_bonus"`
}

type ruleFile struct {
	Rules []IntegrationRule `yaml:"rules" json:"rules"`
}

type rulePair struct {
	primary, secondary string
}

// RuleTable is an immutable, directional lookup of integration rules.
type RuleTable struct {
	byPair  map[rulePair]IntegrationRule
	ordered []IntegrationRule
}

// NewRuleTable validates rules and indexes them by ordered pair.
func NewRuleTable(rules []IntegrationRule) (*RuleTable, error) {
	t := &RuleTable{
		byPair:  make(map[rulePair]IntegrationRule, len(rules)),
		ordered: make([]IntegrationRule, 0, len(rules)),
	}
	for i, r := range rules {
		if r.Primary == "" || r.Secondary == "" {
			return nil, fmt.Errorf("rule %d: primary and secondary are required", i)
		}
		if r.BaseBonus < 0 {
			return nil, fmt.Errorf("rule %d (%s -> %s): base_bonus must not be negative", i, r.Primary, r.Secondary)
		}
		key := rulePair{r.Primary, r.Secondary}
		if _, dup := t.byPair[key]; dup {
			return nil, fmt.Errorf("rule %d: duplicate pair %s -> %s", i, r.Primary, r.Secondary)
		}
		t.byPair[key] = r
		t.ordered = append(t.ordered, r)
	}
	return t, nil
}

// ParseRuleTable decodes a rule document. format is "json" or "yaml".
func ParseRuleTable(data []byte, format string) (*RuleTable, error) {
	var doc ruleFile
	var err error
	switch format {
	case "json":
		err = json.Unmarshal(data, &doc)
	default:
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("decode integration rules: %w", err)
	}
	return NewRuleTable(doc.Rules)
}

// DefaultRuleTable returns the embedded rule table.
func DefaultRuleTable() *RuleTable {
	t, err := ParseRuleTable(defaultRulesYAML, "yaml")
	if err != nil {
		panic(fmt.Sprintf("embedded integration rules are invalid: %v", err))
	}
	return t
}

// LoadRuleTable reads the rule file at path, choosing the decoder by
// extension. An empty or missing path yields the embedded default.
func LoadRuleTable(path string) (*RuleTable, error) {
	if path == "" {
		return DefaultRuleTable(), nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultRuleTable(), nil
	}
	if err != nil {
		return nil, apperrors.NewConfigurationError("read integration rules "+path, err)
	}

	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	t, err := ParseRuleTable(data, format)
	if err != nil {
		return nil, apperrors.NewConfigurationError("parse integration rules "+path, err)
	}
	return t, nil
}

// Lookup finds the rule for the ordered pair. The reverse pair is not
// consulted.
func (t *RuleTable) Lookup(primary, secondary string) (IntegrationRule, bool) {
	r, ok := t.byPair[rulePair{primary, secondary}]
	return r, ok
}

// Rules returns the rules in file order.
func (t *RuleTable) Rules() []IntegrationRule {
	return append([]IntegrationRule(nil), t.ordered...)
}

func (t *RuleTable) Len() int { return len(t.ordered) }
