package planner

import "math"

const (
	// MinCalories and MaxCalories bound the daily target on every mutation.
	MinCalories = 1200
	MaxCalories = 4000
	// CalorieStep is the granularity of the manual calorie control.
	CalorieStep = 50
	// OptionsPerMeal is the number of alternatives generated for each slot.
	OptionsPerMeal = 5
	// MealsPerDay splits the daily target across breakfast, lunch and dinner.
	MealsPerDay = 3
)

// Macro split targets, in percent of calories.
const (
	ProteinPercent = 40
	CarbPercent    = 30
	FatPercent     = 30
)

// GenerationParameters are the inputs of a plan generation.
type GenerationParameters struct {
	Calories   int    `json:"calories"`
	Exclusions string `json:"exclusions"`
}

// PerMealCalories is the calorie target of a single meal option.
func (p GenerationParameters) PerMealCalories() int {
	return int(math.Round(float64(p.Calories) / MealsPerDay))
}

// ClampCalories bounds c to [MinCalories, MaxCalories].
func ClampCalories(c int) int {
	return min(max(c, MinCalories), MaxCalories)
}

// SnapCalories clamps c and rounds it to the nearest CalorieStep, the way the
// manual slider reports values.
func SnapCalories(c int) int {
	snapped := int(math.Round(float64(c)/CalorieStep)) * CalorieStep
	return ClampCalories(snapped)
}

// Ingredient is a single weighed component of a meal option.
type Ingredient struct {
	Item  string  `json:"item"`
	Grams float64 `json:"grams"`
}

// MacroSummary holds calories and macro grams.
type MacroSummary struct {
	TotalCalories float64 `json:"totalCalories"`
	ProteinGrams  float64 `json:"proteinGrams"`
	CarbGrams     float64 `json:"carbGrams"`
	FatGrams      float64 `json:"fatGrams"`
}

// MealOption is one selectable meal for a slot.
type MealOption struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Ingredients []Ingredient `json:"ingredients"`
	Macros      MacroSummary `json:"macros"`
}

// MealSlot identifies breakfast, lunch or dinner.
type MealSlot string

const (
	SlotBreakfast MealSlot = "breakfast"
	SlotLunch     MealSlot = "lunch"
	SlotDinner    MealSlot = "dinner"
)

// Slots lists the meal slots in serving order.
var Slots = []MealSlot{SlotBreakfast, SlotLunch, SlotDinner}

// MealPlan is a full day of options. It is replaced wholesale on every
// successful generation.
type MealPlan struct {
	BreakfastOptions   []MealOption  `json:"breakfastOptions"`
	LunchOptions       []MealOption  `json:"lunchOptions"`
	DinnerOptions      []MealOption  `json:"dinnerOptions"`
	TargetDailySummary *MacroSummary `json:"targetDailySummary"`
}

// Options returns the options of the given slot.
func (p *MealPlan) Options(slot MealSlot) []MealOption {
	switch slot {
	case SlotBreakfast:
		return p.BreakfastOptions
	case SlotLunch:
		return p.LunchOptions
	case SlotDinner:
		return p.DinnerOptions
	default:
		return nil
	}
}

// Clone returns a deep copy of the plan.
func (p *MealPlan) Clone() *MealPlan {
	if p == nil {
		return nil
	}
	out := &MealPlan{
		BreakfastOptions: cloneOptions(p.BreakfastOptions),
		LunchOptions:     cloneOptions(p.LunchOptions),
		DinnerOptions:    cloneOptions(p.DinnerOptions),
	}
	if p.TargetDailySummary != nil {
		summary := *p.TargetDailySummary
		out.TargetDailySummary = &summary
	}
	return out
}

func cloneOptions(opts []MealOption) []MealOption {
	if opts == nil {
		return nil
	}
	out := make([]MealOption, len(opts))
	for i, o := range opts {
		o.Ingredients = append([]Ingredient(nil), o.Ingredients...)
		out[i] = o
	}
	return out
}

// MacroShare is one segment of the daily breakdown.
type MacroShare struct {
	Name          string  `json:"name"`
	Grams         float64 `json:"grams"`
	Calories      float64 `json:"calories"`
	TargetPercent int     `json:"targetPercent"`
}

// MacroBreakdown converts a summary into calories per macro using 4/4/9 kcal
// per gram, alongside the fixed target split.
func MacroBreakdown(s MacroSummary) []MacroShare {
	return []MacroShare{
		{Name: "Protein", Grams: s.ProteinGrams, Calories: s.ProteinGrams * 4, TargetPercent: ProteinPercent},
		{Name: "Carbs", Grams: s.CarbGrams, Calories: s.CarbGrams * 4, TargetPercent: CarbPercent},
		{Name: "Fats", Grams: s.FatGrams, Calories: s.FatGrams * 9, TargetPercent: FatPercent},
	}
}
