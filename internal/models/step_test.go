package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextStepFollowsStepOrder(t *testing.T) {
	for i, step := range StepOrder {
		if i == len(StepOrder)-1 {
			assert.Equal(t, step, NextStep(step), "terminal step maps to itself")
			continue
		}
		assert.Equal(t, StepOrder[i+1], NextStep(step))
	}
	assert.Equal(t, Step("ONBOARDING"), NextStep(Step("ONBOARDING")), "unknown steps are left in place")
}

func TestNextStatusGreenIsAbsorbing(t *testing.T) {
	for _, step := range StepOrder {
		assert.Equal(t, StatusGreen, NextStatus(StatusGreen, step))
	}
	assert.Equal(t, StatusYellow, NextStatus(StatusRed, StepPersonalData))
	assert.Equal(t, StatusYellow, NextStatus(StatusYellow, StepPayment))
	assert.Equal(t, StatusGreen, NextStatus(StatusYellow, StepApproval))
	assert.Equal(t, StatusGreen, NextStatus(StatusRed, StepApproval))
}

func TestRecomputeStatus(t *testing.T) {
	assert.Equal(t, StatusGreen, RecomputeStatus(StepApproval, 0))
	assert.Equal(t, StatusYellow, RecomputeStatus(StepPlanSelection, 0))
	assert.Equal(t, StatusYellow, RecomputeStatus(StepPersonalData, 1))
	assert.Equal(t, StatusRed, RecomputeStatus(StepPersonalData, 0))
}
