package models

// NextStatus derives the lead status after completing a step. GREEN is
// absorbing: once a lead is approved no later completion can downgrade it.
func NextStatus(current LeadStatus, completed Step) LeadStatus {
	if current == StatusGreen {
		return StatusGreen
	}
	if completed == StepApproval {
		return StatusGreen
	}
	return StatusYellow
}

// RecomputeStatus is the coarser rule used by the bulk repair sweep. It
// derives status from the lead's persisted position alone: GREEN at APPROVAL,
// YELLOW for any lead past the first step or with at least one dependent,
// RED otherwise. It intentionally differs from NextStatus (a lead with
// dependents still sitting on PERSONAL_DATA is YELLOW here but would stay RED
// under the completion rule); the sweep only repairs drift, it is not the
// canonical transition.
func RecomputeStatus(currentStep Step, dependents int) LeadStatus {
	if currentStep == StepApproval {
		return StatusGreen
	}
	if currentStep != StepPersonalData || dependents > 0 {
		return StatusYellow
	}
	return StatusRed
}
