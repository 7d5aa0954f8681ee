package achievement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	at := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	perfect := 100.0
	half := 50.0

	tests := []struct {
		name  string
		facts Facts
		want  []Type
	}{
		{"nothing", Facts{At: at}, nil},
		{"first component", Facts{ComponentCompleted: true, CompletedComponents: 1, ComponentType: "article"}, []Type{FirstComponent}},
		{"second component", Facts{ComponentCompleted: true, CompletedComponents: 2, ComponentType: "article"}, nil},
		{"perfect quiz", Facts{ComponentCompleted: true, CompletedComponents: 3, ComponentType: "quiz", QuizPercentage: &perfect}, []Type{PerfectQuiz}},
		{"passed quiz", Facts{ComponentCompleted: true, CompletedComponents: 3, ComponentType: "quiz", QuizPercentage: &half}, nil},
		{"first try task", Facts{ComponentCompleted: true, CompletedComponents: 4, ComponentType: "task", TaskAttempts: 1}, []Type{FirstTryTask}},
		{"step", Facts{StepCompleted: true}, []Type{StepMaster}},
		{
			"flow early",
			Facts{StepCompleted: true, FlowCompleted: true, At: at, Deadline: at.Add(48 * time.Hour)},
			[]Type{StepMaster, FlowFinisher, EarlyBird},
		},
		{
			"flow at the last minute",
			Facts{FlowCompleted: true, At: at, Deadline: at.Add(time.Hour)},
			[]Type{FlowFinisher},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.facts))
		})
	}
}

func TestLookup(t *testing.T) {
	for _, d := range Definitions() {
		got, ok := Lookup(d.Type)
		assert.True(t, ok)
		assert.NotEmpty(t, got.Title)
	}
	_, ok := Lookup("nope")
	assert.False(t, ok)
	assert.Equal(t, "Finisher", Achievement{Type: FlowFinisher}.Title())
}
