package content

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestType_IsKnown(t *testing.T) {
	for _, tp := range KnownTypes {
		assert.True(t, tp.IsKnown(), tp)
	}
	assert.False(t, Type("survey").IsKnown())
}

func TestValidateStruct_Quiz(t *testing.T) {
	q := QuizData{
		Questions: []QuizQuestion{
			{ID: "q1", Text: "2+2?", Options: []QuizOption{{ID: "a", IsCorrect: true}}},
		},
	}
	errs := ValidateStruct(q)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "questions[0].options")

	assert.NotEmpty(t, ValidateStruct(QuizData{}))
}

func TestValidateStruct_Video(t *testing.T) {
	assert.NotEmpty(t, ValidateStruct(VideoData{}))
	assert.Empty(t, ValidateStruct(VideoData{URL: "https://cdn.example.com/v.mp4"}))

	bad := VideoData{URL: "https://cdn.example.com/v.mp4", RequiredSegments: []Segment{{Start: 10, End: 5}}}
	assert.NotEmpty(t, ValidateStruct(bad))
}

func TestDecode(t *testing.T) {
	a, err := Decode[ArticleData](json.RawMessage(`{"content":"hi","estimatedReadTime":2}`))
	require.NoError(t, err)
	assert.Equal(t, "hi", a.Content)
	assert.Equal(t, 2.0, a.EstimatedReadTime)

	empty, err := Decode[TaskData](nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Description)

	_, err = Decode[TaskData](json.RawMessage(`{"description":1}`))
	assert.Error(t, err)
}

func TestClone_IsIndependent(t *testing.T) {
	src := json.RawMessage(`{"a":1}`)
	dst := Clone(src)
	dst[2] = 'b'
	assert.Equal(t, `{"a":1}`, string(src))
	assert.Nil(t, Clone(nil))
}

func TestTaskData_Defaults(t *testing.T) {
	td := TaskData{Description: "x"}
	assert.True(t, td.Trim())
	assert.False(t, td.HasAnswer())

	td.AlternativeAnswers = []string{"", "y"}
	assert.True(t, td.HasAnswer())
}

func TestQuizQuestion_Weight(t *testing.T) {
	assert.Equal(t, 1.0, QuizQuestion{}.Weight())
	assert.Equal(t, 3.0, QuizQuestion{Points: 3}.Weight())
}
