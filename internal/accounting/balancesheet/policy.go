package balancesheet

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var defaultPolicy []byte

// Section is one side of the balance sheet.
type Section string

const (
	SectionAssets      Section = "ASSETS"
	SectionEquity      Section = "EQUITY"
	SectionLiabilities Section = "LIABILITIES"
)

// CodeRange is an inclusive range of three digit code prefixes.
type CodeRange struct {
	From int
	To   int
}

func (r CodeRange) contains(prefix int) bool {
	return prefix >= r.From && prefix <= r.To
}

func (r CodeRange) String() string {
	if r.From == r.To {
		return fmt.Sprintf("%03d", r.From)
	}
	return fmt.Sprintf("%03d-%03d", r.From, r.To)
}

// LineRule maps code ranges onto one statutory line.
type LineRule struct {
	Key     string
	Label   string
	Section Section
	Ranges  []CodeRange
	// NetResult marks the line that also absorbs unmapped revenue and expense
	// balances.
	NetResult bool
}

// Policy is the ordered rule table for all three sections.
type Policy struct {
	Rules []LineRule
}

type ruleDoc struct {
	Key       string   `yaml:"key"`
	Label     string   `yaml:"label"`
	Ranges    []string `yaml:"ranges"`
	NetResult bool     `yaml:"net_result"`
}

type policyDoc struct {
	Assets      []ruleDoc `yaml:"assets"`
	Equity      []ruleDoc `yaml:"equity"`
	Liabilities []ruleDoc `yaml:"liabilities"`
}

// DefaultPolicy returns the built-in statutory layout.
func DefaultPolicy() Policy {
	p, err := ParsePolicy(defaultPolicy)
	if err != nil {
		panic(fmt.Sprintf("balancesheet: embedded policy: %v", err))
	}
	return p
}

// LoadPolicyFile reads a replacement policy. An empty path yields the default.
func LoadPolicyFile(path string) (Policy, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read balance sheet policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes and validates a YAML policy.
func ParsePolicy(data []byte) (Policy, error) {
	var doc policyDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Policy{}, fmt.Errorf("parse balance sheet policy: %w", err)
	}
	var p Policy
	for _, group := range []struct {
		section Section
		rules   []ruleDoc
	}{
		{SectionAssets, doc.Assets},
		{SectionEquity, doc.Equity},
		{SectionLiabilities, doc.Liabilities},
	} {
		for _, rd := range group.rules {
			rule := LineRule{Key: rd.Key, Label: rd.Label, Section: group.section, NetResult: rd.NetResult}
			for _, raw := range rd.Ranges {
				r, err := parseRange(raw)
				if err != nil {
					return Policy{}, fmt.Errorf("rule %s: %w", rd.Key, err)
				}
				rule.Ranges = append(rule.Ranges, r)
			}
			p.Rules = append(p.Rules, rule)
		}
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func parseRange(raw string) (CodeRange, error) {
	from, to, found := strings.Cut(strings.TrimSpace(raw), "-")
	lo, err := parsePrefix(from)
	if err != nil {
		return CodeRange{}, err
	}
	hi := lo
	if found {
		if hi, err = parsePrefix(to); err != nil {
			return CodeRange{}, err
		}
	}
	if hi < lo {
		return CodeRange{}, fmt.Errorf("range %q is reversed", raw)
	}
	return CodeRange{From: lo, To: hi}, nil
}

func parsePrefix(s string) (int, error) {
	s = strings.TrimSpace(s)
	if len(s) != 3 {
		return 0, fmt.Errorf("prefix %q must have three digits", s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("prefix %q must be numeric", s)
	}
	return n, nil
}

// Validate checks keys are unique, every rule has a range, at most one net
// result line exists and no two ranges overlap.
func (p Policy) Validate() error {
	type owned struct {
		r   CodeRange
		key string
	}
	var all []owned
	keys := make(map[string]struct{}, len(p.Rules))
	netResult := 0
	for _, rule := range p.Rules {
		if rule.Key == "" {
			return fmt.Errorf("balance sheet policy: rule without key")
		}
		if _, dup := keys[rule.Key]; dup {
			return fmt.Errorf("balance sheet policy: duplicate key %s", rule.Key)
		}
		keys[rule.Key] = struct{}{}
		if len(rule.Ranges) == 0 {
			return fmt.Errorf("balance sheet policy: rule %s has no ranges", rule.Key)
		}
		if rule.NetResult {
			netResult++
			if rule.Section != SectionEquity {
				return fmt.Errorf("balance sheet policy: net result line %s must be equity", rule.Key)
			}
		}
		for _, r := range rule.Ranges {
			all = append(all, owned{r: r, key: rule.Key})
		}
	}
	if netResult > 1 {
		return fmt.Errorf("balance sheet policy: %d net result lines", netResult)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].r.From < all[j].r.From })
	for i := 1; i < len(all); i++ {
		if all[i].r.From <= all[i-1].r.To {
			return fmt.Errorf("balance sheet policy: %s (%s) overlaps %s (%s)",
				all[i].key, all[i].r, all[i-1].key, all[i-1].r)
		}
	}
	return nil
}

// Match returns the rule covering an account code.
func (p Policy) Match(code string) (LineRule, bool) {
	prefix, ok := codePrefix(code)
	if !ok {
		return LineRule{}, false
	}
	for _, rule := range p.Rules {
		for _, r := range rule.Ranges {
			if r.contains(prefix) {
				return rule, true
			}
		}
	}
	return LineRule{}, false
}

func (p Policy) netResultRule() (LineRule, bool) {
	for _, rule := range p.Rules {
		if rule.NetResult {
			return rule, true
		}
	}
	return LineRule{}, false
}

// codePrefix reads the first three digits of a code, skipping separators.
func codePrefix(code string) (int, bool) {
	digits := make([]byte, 0, 3)
	for i := 0; i < len(code) && len(digits) < 3; i++ {
		c := code[i]
		switch {
		case c >= '0' && c <= '9':
			digits = append(digits, c)
		case c == '.' || c == '-':
		default:
			return 0, false
		}
	}
	if len(digits) < 3 {
		return 0, false
	}
	n, _ := strconv.Atoi(string(digits))
	return n, true
}
