package models

import "fmt"

// Monthly base prices per plan tier, in BRL.
var planBasePrices = map[PlanType]float64{
	PlanBasic:    249.90,
	PlanStandard: 389.90,
	PlanPremium:  549.90,
}

// Monthly dental add-on per covered person, in BRL.
const dentalAddOn = 49.90

var planLabels = map[PlanType]string{
	PlanBasic:    "Plano Básico",
	PlanStandard: "Plano Padrão",
	PlanPremium:  "Plano Premium",
}

// MonthlyPrice computes the plan's monthly total: base price plus the
// optional dental add-on, multiplied by the number of covered lives
// (holder + dependents).
func MonthlyPrice(plan PlanType, dental bool, dependents int) float64 {
	base, ok := planBasePrices[plan]
	if !ok {
		base = planBasePrices[PlanBasic]
	}
	if dental {
		base += dentalAddOn
	}
	return base * float64(1+dependents)
}

// PlanDescription renders a human-readable plan summary for notifications.
func PlanDescription(plan PlanType, dental bool, dependents int) string {
	label, ok := planLabels[plan]
	if !ok {
		label = string(plan)
	}
	desc := label
	if dental {
		desc += " + Odontológico"
	}
	if dependents > 0 {
		desc = fmt.Sprintf("%s (%d dependente(s))", desc, dependents)
	}
	return desc
}
