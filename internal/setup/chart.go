// Package setup seeds the chart of accounts.
package setup

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"ledger-backend/internal/apperr"
	"ledger-backend/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed default_chart.yaml
var defaultChart []byte

var accountNumberRe = regexp.MustCompile(`^[A-Za-z0-9]{3,20}$`)

type Chart struct {
	AccountTypes     []TypeSpec            `yaml:"account_types"`
	Categories       []CategorySpec        `yaml:"categories"`
	Accounts         []AccountSpec         `yaml:"accounts"`
	TransactionTypes []TransactionTypeSpec `yaml:"transaction_types"`
}

type TypeSpec struct {
	Code          models.AccountTypeCode `yaml:"code"`
	Name          string                 `yaml:"name"`
	NormalBalance models.NormalBalance   `yaml:"normal_balance"`
	Description   string                 `yaml:"description"`
}

// CategorySpec may name a parent; parents must be listed first and share
// the category's type.
type CategorySpec struct {
	Code        string                 `yaml:"code"`
	Name        string                 `yaml:"name"`
	Type        models.AccountTypeCode `yaml:"type"`
	Parent      string                 `yaml:"parent"`
	Description string                 `yaml:"description"`
	SortOrder   int                    `yaml:"sort_order"`
}

// AccountSpec takes its type from its category.
type AccountSpec struct {
	Number         string `yaml:"number"`
	Name           string `yaml:"name"`
	Category       string `yaml:"category"`
	Description    string `yaml:"description"`
	OpeningBalance string `yaml:"opening_balance"`
	Cash           bool   `yaml:"cash"`
	Bank           bool   `yaml:"bank"`
	Contra         bool   `yaml:"contra"`
	NoPosting      bool   `yaml:"no_posting"`
	SortOrder      int    `yaml:"sort_order"`
}

type TransactionTypeSpec struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// DefaultChart is the built-in starter chart of accounts.
func DefaultChart() (*Chart, error) {
	return ParseChart(defaultChart)
}

// LoadChart reads a chart from a YAML file.
func LoadChart(path string) (*Chart, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading chart %s: %w", path, err)
	}
	chart, err := ParseChart(raw)
	if err != nil {
		return nil, fmt.Errorf("chart %s: %w", path, err)
	}
	return chart, nil
}

// ParseChart decodes YAML strictly and validates the result.
func ParseChart(raw []byte) (*Chart, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var c Chart
	if err := dec.Decode(&c); err != nil {
		return nil, apperr.Validation("Invalid chart file: " + err.Error())
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Chart) normalize() {
	for i := range c.AccountTypes {
		t := &c.AccountTypes[i]
		t.Code = models.AccountTypeCode(strings.ToUpper(strings.TrimSpace(string(t.Code))))
		t.NormalBalance = models.NormalBalance(strings.ToUpper(string(t.NormalBalance)))
		if t.NormalBalance == "" {
			t.NormalBalance = models.NormalBalanceFor(t.Code)
		}
		if t.Name == "" {
			t.Name = string(t.Code)
		}
	}
	for i := range c.Categories {
		c.Categories[i].Type = models.AccountTypeCode(strings.ToUpper(string(c.Categories[i].Type)))
	}
	for i := range c.TransactionTypes {
		c.TransactionTypes[i].Code = strings.ToUpper(strings.TrimSpace(c.TransactionTypes[i].Code))
	}
}

// Validate reports every problem in the chart at once.
func (c *Chart) Validate() error {
	var errs []string

	types := map[models.AccountTypeCode]bool{}
	for _, t := range c.AccountTypes {
		switch {
		case !t.Code.Valid():
			errs = append(errs, fmt.Sprintf("Unknown account type code %q.", t.Code))
		case t.NormalBalance != models.NormalBalanceFor(t.Code):
			errs = append(errs, fmt.Sprintf("Account type %s must have a %s normal balance.", t.Code, models.NormalBalanceFor(t.Code)))
		case types[t.Code]:
			errs = append(errs, fmt.Sprintf("Account type %s is listed twice.", t.Code))
		}
		types[t.Code] = true
	}

	categoryType := map[string]models.AccountTypeCode{}
	for _, cat := range c.Categories {
		if cat.Code == "" || cat.Name == "" {
			errs = append(errs, "Every category needs a code and a name.")
			continue
		}
		if !types[cat.Type] {
			errs = append(errs, fmt.Sprintf("Category %s refers to unknown account type %q.", cat.Code, cat.Type))
		}
		if _, dup := categoryType[cat.Code]; dup {
			errs = append(errs, fmt.Sprintf("Category %s is listed twice.", cat.Code))
		}
		if cat.Parent != "" {
			parentType, ok := categoryType[cat.Parent]
			switch {
			case !ok:
				errs = append(errs, fmt.Sprintf("Category %s must be listed after its parent %s.", cat.Code, cat.Parent))
			case parentType != cat.Type:
				errs = append(errs, fmt.Sprintf("Category %s and its parent %s have different account types.", cat.Code, cat.Parent))
			}
		}
		categoryType[cat.Code] = cat.Type
	}

	numbers := map[string]bool{}
	for _, a := range c.Accounts {
		if !accountNumberRe.MatchString(a.Number) {
			errs = append(errs, fmt.Sprintf("Account number %q must be 3 to 20 letters or digits.", a.Number))
		}
		if numbers[a.Number] {
			errs = append(errs, fmt.Sprintf("Account %s is listed twice.", a.Number))
		}
		numbers[a.Number] = true
		if strings.TrimSpace(a.Name) == "" {
			errs = append(errs, fmt.Sprintf("Account %s needs a name.", a.Number))
		}
		if _, ok := categoryType[a.Category]; !ok {
			errs = append(errs, fmt.Sprintf("Account %s refers to unknown category %q.", a.Number, a.Category))
		}
		if a.OpeningBalance != "" {
			if _, err := decimal.NewFromString(a.OpeningBalance); err != nil {
				errs = append(errs, fmt.Sprintf("Account %s has an invalid opening balance %q.", a.Number, a.OpeningBalance))
			}
		}
	}

	for _, tt := range c.TransactionTypes {
		if tt.Code == "" || tt.Name == "" {
			errs = append(errs, "Every transaction type needs a code and a name.")
		}
	}

	if len(errs) > 0 {
		return apperr.Validation(errs...)
	}
	return nil
}
