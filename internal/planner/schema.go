package planner

import "macro-meal-engine/internal/llm"

func macroSummarySchema() *llm.Schema {
	return &llm.Schema{
		Type: llm.TypeObject,
		Properties: map[string]*llm.Schema{
			"totalCalories": {Type: llm.TypeNumber},
			"proteinGrams":  {Type: llm.TypeNumber},
			"carbGrams":     {Type: llm.TypeNumber},
			"fatGrams":      {Type: llm.TypeNumber},
		},
		Required: []string{"totalCalories", "proteinGrams", "carbGrams", "fatGrams"},
	}
}

func mealOptionSchema() *llm.Schema {
	return &llm.Schema{
		Type: llm.TypeObject,
		Properties: map[string]*llm.Schema{
			"id":   {Type: llm.TypeString},
			"name": {Type: llm.TypeString},
			"ingredients": {
				Type: llm.TypeArray,
				Items: &llm.Schema{
					Type: llm.TypeObject,
					Properties: map[string]*llm.Schema{
						"item":  {Type: llm.TypeString},
						"grams": {Type: llm.TypeNumber},
					},
					Required: []string{"item", "grams"},
				},
			},
			"macros": macroSummarySchema(),
		},
		Required: []string{"id", "name", "ingredients", "macros"},
	}
}

// MealPlanSchema constrains the generation response.
func MealPlanSchema() *llm.Schema {
	options := func() *llm.Schema {
		return &llm.Schema{Type: llm.TypeArray, Items: mealOptionSchema()}
	}
	return &llm.Schema{
		Type: llm.TypeObject,
		Properties: map[string]*llm.Schema{
			"breakfastOptions":   options(),
			"lunchOptions":       options(),
			"dinnerOptions":      options(),
			"targetDailySummary": macroSummarySchema(),
		},
		Required: []string{"breakfastOptions", "lunchOptions", "dinnerOptions", "targetDailySummary"},
	}
}

// ChatSchema constrains the intake assistant response.
func ChatSchema() *llm.Schema {
	return &llm.Schema{
		Type: llm.TypeObject,
		Properties: map[string]*llm.Schema{
			"reply":      {Type: llm.TypeString, Description: "The conversational response to the user."},
			"calories":   {Type: llm.TypeNumber, Description: "The extracted target calories, if specified or implied."},
			"exclusions": {Type: llm.TypeString, Description: "The updated full list of exclusions/dietary restrictions."},
		},
		Required: []string{"reply"},
	}
}
