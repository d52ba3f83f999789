// Package validate is the input boundary: character allow-lists for free text
// and numeric clamping for amounts. Everything past this package assumes
// pre-validated inputs.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"profitshare/internal/core"
)

// MaxNameLength bounds shareholder, branch and category names (in runes).
const MaxNameLength = 100

var allowedText = regexp.MustCompile(`^[\p{L}\p{N} .,'&_\-()/]+$`)

// ShareholderInput is the validated shape of a roster add/update.
type ShareholderInput struct {
	Name           string          `validate:"required,max=100,allowedtext"`
	StakePercent   decimal.Decimal `validate:"gte=0,lte=100"`
	InitialBalance decimal.Decimal
}

type labelInput struct {
	Name string `validate:"required,max=100,allowedtext"`
}

type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("allowedtext", func(fl validator.FieldLevel) bool {
		return allowedText.MatchString(fl.Field().String())
	})
	return &Validator{v: v}
}

var maxStake = decimal.NewFromInt(100)

// Shareholder validates a roster input. The name is trimmed and the initial
// balance clamped in place.
func (x *Validator) Shareholder(in *ShareholderInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.InitialBalance = core.ClampAmount(in.InitialBalance)
	err := translate(x.v.Struct(in), map[string]string{
		"Name":         "name",
		"StakePercent": "stake percent",
	})
	if err != nil {
		return err
	}
	// the struct tags see a float64 and miss excess beyond its precision
	if in.StakePercent.IsNegative() || in.StakePercent.GreaterThan(maxStake) {
		return core.Invalid("stake percent", core.ReasonOutOfRange, in.StakePercent.String())
	}
	return nil
}

// Label validates a branch or category name.
func (x *Validator) Label(field, name string) (string, error) {
	in := labelInput{Name: strings.TrimSpace(name)}
	if err := translate(x.v.Struct(&in), map[string]string{"Name": field}); err != nil {
		return "", err
	}
	return in.Name, nil
}

// Category validates a user-defined category at the boundary, rejecting
// collisions with the reserved keys.
func (x *Validator) Category(name string, kind core.CategoryKind) (core.Category, error) {
	clean, err := x.Label("category", name)
	if err != nil {
		return core.Category{}, err
	}
	return core.NewCustomCategory(clean, kind)
}

// Amount parses and clamps a user-entered amount.
func (x *Validator) Amount(field, raw string) (decimal.Decimal, error) {
	d, err := core.ParseAmount(raw)
	if err != nil {
		return decimal.Zero, core.Invalid(field, core.ReasonNonNumeric, raw)
	}
	return core.ClampAmount(d), nil
}

// Clamp normalizes an already numeric amount into the accepted range.
func Clamp(d decimal.Decimal) decimal.Decimal {
	return core.ClampAmount(d)
}

// NormalizeMatrix clamps every cell in place. Branch and category labels are
// checked against the allow-list, and any spelling of a reserved key is
// rewritten to the reserved key itself, merging cells that collide.
func (x *Validator) NormalizeMatrix(m core.BranchExpenseMatrix) error {
	for branch, row := range m {
		if _, err := x.Label("branch", branch); err != nil {
			return err
		}
		clean := make(map[string]decimal.Decimal, len(row))
		for category, amount := range row {
			if _, err := x.Label("category", category); err != nil {
				return err
			}
			key := category
			if reserved, ok := core.CanonicalReserved(category); ok {
				key = reserved
			}
			clean[key] = core.ClampAmount(clean[key].Add(core.ClampAmount(amount)))
		}
		m[branch] = clean
	}
	return nil
}

// NormalizeCash clamps every cash sub-balance.
func (x *Validator) NormalizeCash(c core.CashBreakdown) (core.CashBreakdown, error) {
	c.Till = core.ClampAmount(c.Till)
	c.Bank = core.ClampAmount(c.Bank)
	c.HomeSafe = core.ClampAmount(c.HomeSafe)
	c.MobileWallet = core.ClampAmount(c.MobileWallet)
	c.PersonalExpenses = core.ClampAmount(c.PersonalExpenses)
	rows := make([]core.CashRow, 0, len(c.Custom))
	for _, row := range c.Custom {
		label, err := x.Label("cash row", row.Label)
		if err != nil {
			return c, err
		}
		rows = append(rows, core.CashRow{Label: label, Amount: core.ClampAmount(row.Amount)})
	}
	c.Custom = rows
	return c, nil
}

func translate(err error, fields map[string]string) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := fields[fe.StructField()]
	if field == "" {
		field = strings.ToLower(fe.StructField())
	}
	value := fmt.Sprint(fe.Value())
	switch fe.Tag() {
	case "required":
		return core.Invalid(field, core.ReasonRequired, value)
	case "allowedtext":
		return core.Invalid(field, core.ReasonInvalidCharacters, value)
	default:
		return core.Invalid(field, core.ReasonOutOfRange, value)
	}
}
