package autopatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"Missing Translation: common.hello", 0, "missing-translation-common-hello"},
		{"--PDF Worker--", 0, "pdf-worker"},
		{"äöü", 0, ""},
		{"abcdef-ghij", 7, "abcdef"},
		{"abc", 10, "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slug(tt.in, tt.max))
		})
	}
}

func TestNewPlanAction_BoundsFixName(t *testing.T) {
	a := NewPlanAction("plan", PlanPayload{FixName: "A very long fix name that keeps going and going past the limit"})
	assert.Equal(t, ActionAutopatchPlan, a.Type)
	assert.LessOrEqual(t, len(a.Payload.FixName), MaxFixNameLength)
	assert.Equal(t, "a-very-long-fix-name-that-keeps-going-and-going", a.Payload.FixName)
}

func TestCandidate_PlanAction(t *testing.T) {
	c := &Candidate{Actions: []Action{
		{Type: ActionManualFollowup, Description: "call customer"},
		NewPlanAction("fix it", PlanPayload{FixName: "fix"}),
	}}
	a, ok := c.PlanAction()
	assert.True(t, ok)
	assert.Equal(t, "fix", a.Payload.FixName)
	assert.False(t, c.HasInstructions())

	_, ok = (&Candidate{}).PlanAction()
	assert.False(t, ok)
}
