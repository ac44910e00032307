package planner

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidPlan wraps every validation failure of a generated plan.
var ErrInvalidPlan = errors.New("invalid meal plan")

// Validate checks the shape of a generated plan before it is trusted.
// All problems are reported together.
func (p *MealPlan) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: plan is empty", ErrInvalidPlan)
	}

	var errs []error
	for _, slot := range Slots {
		opts := p.Options(slot)
		if len(opts) != OptionsPerMeal {
			errs = append(errs, fmt.Errorf("%s: expected %d options, got %d", slot, OptionsPerMeal, len(opts)))
		}
		for i, opt := range opts {
			errs = append(errs, validateOption(fmt.Sprintf("%s[%d]", slot, i), opt)...)
		}
	}

	if p.TargetDailySummary == nil {
		errs = append(errs, errors.New("targetDailySummary: missing"))
	} else {
		errs = append(errs, validateMacros("targetDailySummary", *p.TargetDailySummary)...)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidPlan, errors.Join(errs...))
}

func validateOption(path string, opt MealOption) []error {
	var errs []error
	if strings.TrimSpace(opt.Name) == "" {
		errs = append(errs, fmt.Errorf("%s: name is empty", path))
	}
	if len(opt.Ingredients) == 0 {
		errs = append(errs, fmt.Errorf("%s: no ingredients", path))
	}
	for j, ing := range opt.Ingredients {
		if strings.TrimSpace(ing.Item) == "" {
			errs = append(errs, fmt.Errorf("%s.ingredients[%d]: item is empty", path, j))
		}
		if !nonNegative(ing.Grams) {
			errs = append(errs, fmt.Errorf("%s.ingredients[%d]: invalid grams %v", path, j, ing.Grams))
		}
	}
	return append(errs, validateMacros(path+".macros", opt.Macros)...)
}

func validateMacros(path string, m MacroSummary) []error {
	var errs []error
	for name, v := range map[string]float64{
		"totalCalories": m.TotalCalories,
		"proteinGrams":  m.ProteinGrams,
		"carbGrams":     m.CarbGrams,
		"fatGrams":      m.FatGrams,
	} {
		if !nonNegative(v) {
			errs = append(errs, fmt.Errorf("%s.%s: invalid value %v", path, name, v))
		}
	}
	return errs
}

func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
