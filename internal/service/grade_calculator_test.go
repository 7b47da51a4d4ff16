package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

func grade(v float64) *float64 { return &v }

func activities(ids ...string) []models.Activity {
	acts := make([]models.Activity, 0, len(ids))
	for _, id := range ids {
		acts = append(acts, models.Activity{ID: id, Name: "Activity " + id})
	}
	return acts
}

func TestCalculatePeriodEmptyIsBajo(t *testing.T) {
	result := CalculatePeriod(models.PeriodGradeData{}, nil, nil)
	assert.Equal(t, 0.0, result.Definitive)
	assert.Equal(t, models.PerformanceBajo, result.Performance)
	assert.Empty(t, result.PendingActivities)
}

func TestCalculatePeriodExample(t *testing.T) {
	data := models.PeriodGradeData{
		Tasks:    models.NewGradeSlots(map[string]*float64{"t1": grade(8), "t2": grade(10)}),
		Attitude: grade(7),
		Exam:     grade(6),
	}
	result := CalculatePeriod(data, activities("t1", "t2"), nil)

	assert.InDelta(t, 9.0, result.TaskAverage, 1e-9)
	assert.Equal(t, 0.0, result.WorkshopAverage)
	assert.InDelta(t, 5.6, result.Definitive, 1e-9)
	assert.Equal(t, models.PerformanceBajo, result.Performance)
}

func TestCalculatePeriodCountsOnlyDefinedActivities(t *testing.T) {
	data := models.PeriodGradeData{
		Tasks: models.NewGradeSlots(map[string]*float64{"t1": grade(10), "gone": grade(0)}),
		Exam:  grade(10),
	}
	// t2 was added after grading started: no slot, counts as 0 and is pending.
	result := CalculatePeriod(data, activities("t1", "t2"), nil)
	assert.InDelta(t, 5.0, result.TaskAverage, 1e-9)
	assert.Equal(t, []string{"Activity t2"}, result.PendingActivities)
	assert.InDelta(t, 5.0, result.Definitive, 1e-9)
}

func TestCalculatePeriodLegacyPositionalGrades(t *testing.T) {
	data := models.PeriodGradeData{Tasks: models.LegacyGradeSlots([]*float64{grade(8), grade(10), grade(4)})}
	result := CalculatePeriod(data, activities("a", "b"), nil)
	assert.InDelta(t, 9.0, result.TaskAverage, 1e-9)
}

func TestCalculatePeriodClampsOutOfRange(t *testing.T) {
	data := models.PeriodGradeData{
		Tasks:     models.NewGradeSlots(map[string]*float64{"t1": grade(15)}),
		Workshops: models.NewGradeSlots(map[string]*float64{"w1": grade(-3)}),
		Attitude:  grade(12),
		Exam:      grade(10),
	}
	result := CalculatePeriod(data, activities("t1"), activities("w1"))
	assert.InDelta(t, 10.0, result.TaskAverage, 1e-9)
	assert.Equal(t, 0.0, result.WorkshopAverage)
	assert.InDelta(t, 8.0, result.Definitive, 1e-9)
	assert.Equal(t, models.PerformanceAlto, result.Performance)
}

func TestCalculatePeriodSuperiorThreshold(t *testing.T) {
	data := models.PeriodGradeData{
		Tasks:     models.NewGradeSlots(map[string]*float64{"t1": grade(10)}),
		Workshops: models.NewGradeSlots(map[string]*float64{"w1": grade(10)}),
		Attitude:  grade(10),
		Exam:      grade(9),
	}
	result := CalculatePeriod(data, activities("t1"), activities("w1"))
	assert.InDelta(t, 9.6, result.Definitive, 1e-9)
	assert.Equal(t, models.PerformanceSuperior, result.Performance)
}

func TestCalculatePeriodTierUsesUnroundedDefinitive(t *testing.T) {
	nearSuperior := models.PeriodGradeData{
		Tasks:     models.NewGradeSlots(map[string]*float64{"t1": grade(9.6)}),
		Workshops: models.NewGradeSlots(map[string]*float64{"w1": grade(9.6)}),
		Attitude:  grade(9.6),
		Exam:      grade(9.59),
	}
	result := CalculatePeriod(nearSuperior, activities("t1"), activities("w1"))
	assert.InDelta(t, 9.6, result.Definitive, 1e-9)
	assert.Equal(t, models.PerformanceAlto, result.Performance)

	// 0.2*9.995 + 0.4*10 = 5.999
	nearBasico := models.PeriodGradeData{Attitude: grade(9.995), Exam: grade(10)}
	result = CalculatePeriod(nearBasico, nil, nil)
	assert.InDelta(t, 6.0, result.Definitive, 1e-9)
	assert.Equal(t, models.PerformanceBajo, result.Performance)
}

func TestSummarizeFinalWeightsUnroundedDefinitives(t *testing.T) {
	// Each period is 0.4*9.9875 = 3.995, displayed as 4.0 (half to even on 399.5).
	settings := models.AcademicSettings{PeriodCount: 2, PeriodWeights: map[int]float64{1: 50, 2: 50}}
	record := models.StudentGradeRecord{Periods: map[int]models.PeriodGradeData{
		1: periodWithExam(9.9875), 2: periodWithExam(9.9875),
	}}
	summary := SummarizeFinal(record, settings, nil)
	assert.InDelta(t, 3.995, summary.WeightedFinal, 0.0051)
	assert.Equal(t, models.PerformanceBajo, summary.Performance)

	// Raw weighted 7.998 stays BASICO even though it displays as 8.0.
	settings = models.AcademicSettings{PeriodCount: 1, PeriodWeights: map[int]float64{1: 100}}
	record = models.StudentGradeRecord{Periods: map[int]models.PeriodGradeData{
		1: {Exam: grade(10), Attitude: grade(10), Tasks: models.NewGradeSlots(map[string]*float64{"t": grade(9.99)})},
	}}
	summary = SummarizeFinal(record, settings, map[int]models.PeriodActivities{1: {Tasks: activities("t")}})
	assert.InDelta(t, 8.0, summary.WeightedFinal, 1e-9)
	assert.InDelta(t, 8.0, summary.Periods[1], 1e-9)
	assert.Equal(t, models.PerformanceBasico, summary.Performance)
}

func periodWithExam(exam float64) models.PeriodGradeData {
	// Only the exam is graded, so definitive = exam * 0.4.
	return models.PeriodGradeData{Exam: grade(exam)}
}

func TestSummarizeFinalExample(t *testing.T) {
	record := models.StudentGradeRecord{Periods: map[int]models.PeriodGradeData{
		1: periodWithExam(20),   // clamped to 10 -> 4.0
		2: {Attitude: grade(10), Exam: grade(10), Tasks: models.NewGradeSlots(map[string]*float64{"t": grade(5)})},
		3: {Attitude: grade(10), Exam: grade(10), Tasks: models.NewGradeSlots(map[string]*float64{"t": grade(7.5)})},
	}}
	acts := map[int]models.PeriodActivities{2: {Tasks: activities("t")}, 3: {Tasks: activities("t")}}
	settings := models.AcademicSettings{PeriodCount: 3, PeriodWeights: map[int]float64{1: 30, 2: 30, 3: 40}}

	summary := SummarizeFinal(record, settings, acts)
	require.Len(t, summary.Periods, 3)
	assert.InDelta(t, 4.0, summary.Periods[1], 1e-9)
	assert.InDelta(t, 7.0, summary.Periods[2], 1e-9)
	assert.InDelta(t, 7.5, summary.Periods[3], 1e-9)
	assert.InDelta(t, 4.0*0.3+7.0*0.3+7.5*0.4, summary.WeightedFinal, 1e-9)
	assert.Equal(t, models.PerformanceBasico, summary.Performance)
}

func TestSummarizeFinalWeightedScenario(t *testing.T) {
	// Periods whose definitives are exactly 8.0, 9.0 and 6.5.
	record := models.StudentGradeRecord{Periods: map[int]models.PeriodGradeData{
		1: {Exam: grade(10), Attitude: grade(10), Tasks: models.NewGradeSlots(map[string]*float64{"t": grade(10)})},
		2: {Exam: grade(10), Attitude: grade(10), Tasks: models.NewGradeSlots(map[string]*float64{"t": grade(10)}), Workshops: models.NewGradeSlots(map[string]*float64{"w": grade(5)})},
		3: {Exam: grade(10), Attitude: grade(10), Tasks: models.NewGradeSlots(map[string]*float64{"t": grade(2.5)})},
	}}
	acts := map[int]models.PeriodActivities{
		1: {Tasks: activities("t")},
		2: {Tasks: activities("t"), Workshops: activities("w")},
		3: {Tasks: activities("t")},
	}
	settings := models.AcademicSettings{PeriodCount: 3, PeriodWeights: map[int]float64{1: 30, 2: 30, 3: 40}}

	summary := SummarizeFinal(record, settings, acts)
	assert.InDelta(t, 8.0, summary.Periods[1], 1e-9)
	assert.InDelta(t, 9.0, summary.Periods[2], 1e-9)
	assert.InDelta(t, 6.5, summary.Periods[3], 1e-9)
	assert.InDelta(t, 7.7, summary.WeightedFinal, 1e-9)
	assert.Equal(t, models.PerformanceBasico, summary.Performance)
}

func TestSummarizeFinalZeroGrades(t *testing.T) {
	settings := models.DefaultAcademicSettings(4)
	record := models.NewStudentGradeRecord("c", "s", 4)
	summary := SummarizeFinal(record, settings, nil)
	assert.Equal(t, 0.0, summary.WeightedFinal)
	assert.Equal(t, models.PerformanceBajo, summary.Performance)
	assert.Len(t, summary.Periods, 4)
}

func TestSummarizeFinalMissingPeriodCountsAsEmpty(t *testing.T) {
	settings := models.AcademicSettings{PeriodCount: 2, PeriodWeights: map[int]float64{1: 50, 2: 50}}
	record := models.StudentGradeRecord{Periods: map[int]models.PeriodGradeData{1: periodWithExam(10)}}
	summary := SummarizeFinal(record, settings, nil)
	assert.InDelta(t, 4.0, summary.Periods[1], 1e-9)
	assert.Equal(t, 0.0, summary.Periods[2])
	assert.InDelta(t, 2.0, summary.WeightedFinal, 1e-9)
}

func TestSummarizeFinalIsDeterministic(t *testing.T) {
	settings := models.AcademicSettings{PeriodCount: 4, PeriodWeights: map[int]float64{1: 10, 2: 20, 3: 30, 4: 40}}
	record := models.StudentGradeRecord{Periods: map[int]models.PeriodGradeData{
		1: periodWithExam(7.3), 2: periodWithExam(8.1), 3: periodWithExam(9.9), 4: periodWithExam(6.7),
	}}
	first := SummarizeFinal(record, settings, nil)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, SummarizeFinal(record, settings, nil))
	}
}
