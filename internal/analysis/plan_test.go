package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/creditlens/internal/domain"
	"github.com/opensource-finance/creditlens/internal/grading"
)

func TestImprovementPlan(t *testing.T) {
	grade := domain.GradeResult{Score: 55, Grade: domain.GradeCPlus}
	recs := []domain.Recommendation{
		{Priority: domain.PriorityHigh, Component: grading.ComponentDefaults, Title: "Regularise", ExpectedGain: 14},
		{Priority: domain.PriorityHigh, Component: grading.ComponentPaymentHistory, Title: "Pay on time", ExpectedGain: 14},
		{Priority: domain.PriorityHigh, Component: grading.ComponentCreditUtilization, Title: "Reduce utilization", ExpectedGain: 12},
		{Priority: domain.PriorityLow, Component: grading.ComponentCreditAge, Title: "Keep accounts", ExpectedGain: 9},
	}

	steps := ImprovementPlan(grade, recs)
	require.Len(t, steps, 4)

	assert.Equal(t, grading.ComponentCreditUtilization, steps[0].Component)
	assert.Equal(t, 2, steps[0].TargetMonths)
	assert.Equal(t, 67.0, steps[0].ProjectedScore)
	assert.Equal(t, domain.GradeB, steps[0].ProjectedGrade)

	assert.Equal(t, grading.ComponentDefaults, steps[1].Component)
	assert.Equal(t, 81.0, steps[1].ProjectedScore)

	// Payment history gain was already counted with the defaults step.
	assert.Equal(t, grading.ComponentPaymentHistory, steps[2].Component)
	assert.Equal(t, 81.0, steps[2].ProjectedScore)

	assert.Equal(t, grading.ComponentCreditAge, steps[3].Component)
	assert.Equal(t, 90.0, steps[3].ProjectedScore)
	assert.Equal(t, domain.GradeAPlus, steps[3].ProjectedGrade)

	for i, s := range steps {
		assert.Equal(t, i+1, s.Order)
	}
}

func TestImprovementPlanCapsAt100(t *testing.T) {
	steps := ImprovementPlan(domain.GradeResult{Score: 95}, []domain.Recommendation{
		{Priority: domain.PriorityLow, Component: grading.ComponentCreditMix, ExpectedGain: 20},
	})
	require.Len(t, steps, 1)
	assert.Equal(t, 100.0, steps[0].ProjectedScore)

	assert.Empty(t, ImprovementPlan(domain.GradeResult{Score: 95}, nil))
}
