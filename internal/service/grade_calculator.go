package service

import (
	"math"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// Component weights of a period definitive.
const (
	taskWeight     = 0.20
	workshopWeight = 0.20
	attitudeWeight = 0.20
	examWeight     = 0.40
)

// PeriodResult is the derived, never persisted, outcome of one period.
type PeriodResult struct {
	TaskAverage       float64                `json:"task_average"`
	WorkshopAverage   float64                `json:"workshop_average"`
	Definitive        float64                `json:"definitive"`
	Performance       models.PerformanceTier `json:"performance"`
	PendingActivities []string               `json:"pending_activities,omitempty"`
}

// FinalSummary combines every configured period by weight.
type FinalSummary struct {
	Periods       map[int]float64        `json:"periods"`
	WeightedFinal float64                `json:"weighted_final"`
	Performance   models.PerformanceTier `json:"performance"`
}

// roundGrade is the rounding applied to every displayed grade.
func roundGrade(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

func clampGrade(v *float64) float64 {
	if v == nil || math.IsNaN(*v) {
		return 0
	}
	return math.Min(models.MaxGradeValue, math.Max(models.MinGradeValue, *v))
}

// averageSlots averages the grades of the defined activities; ungraded counts as 0
// and an empty activity list yields 0.
func averageSlots(slots models.GradeSlots, activities []models.Activity) (float64, []string) {
	sum := 0.0
	var pending []string
	for i, activity := range activities {
		v := slots.Lookup(i, activity)
		if v == nil {
			pending = append(pending, activity.Name)
		}
		sum += clampGrade(v)
	}
	return sum / float64(max(len(activities), 1)), pending
}

// periodScore is the unrounded outcome of one period.
type periodScore struct {
	taskAvg, workshopAvg, definitive float64
	pending                          []string
}

func scorePeriod(data models.PeriodGradeData, tasks, workshops []models.Activity) periodScore {
	taskAvg, pendingTasks := averageSlots(data.Tasks, tasks)
	workshopAvg, pendingWorkshops := averageSlots(data.Workshops, workshops)
	definitive := taskAvg*taskWeight +
		workshopAvg*workshopWeight +
		clampGrade(data.Attitude)*attitudeWeight +
		clampGrade(data.Exam)*examWeight
	return periodScore{
		taskAvg:     taskAvg,
		workshopAvg: workshopAvg,
		definitive:  definitive,
		pending:     append(pendingTasks, pendingWorkshops...),
	}
}

// CalculatePeriod derives the definitive grade and tier of one student's period.
// Only the activities currently defined for the period are considered, whatever the
// number of stored slots. The tier is taken from the unrounded definitive; rounding
// applies to the reported figures only.
func CalculatePeriod(data models.PeriodGradeData, tasks, workshops []models.Activity) PeriodResult {
	score := scorePeriod(data, tasks, workshops)
	return PeriodResult{
		TaskAverage:       roundGrade(score.taskAvg),
		WorkshopAverage:   roundGrade(score.workshopAvg),
		Definitive:        roundGrade(score.definitive),
		Performance:       models.PerformanceFor(score.definitive),
		PendingActivities: score.pending,
	}
}

// SummarizeFinal weights every configured period's definitive into the final grade.
// A period absent from the record counts as an empty period. Periods are summed in
// ascending order so repeated calls produce identical floats, and the sum uses the
// unrounded definitives.
func SummarizeFinal(record models.StudentGradeRecord, settings models.AcademicSettings, activities map[int]models.PeriodActivities) FinalSummary {
	summary := FinalSummary{Periods: make(map[int]float64, settings.PeriodCount)}
	weighted := 0.0
	for p := 1; p <= settings.PeriodCount; p++ {
		acts := activities[p]
		score := scorePeriod(record.Periods[p], acts.Tasks, acts.Workshops)
		summary.Periods[p] = roundGrade(score.definitive)
		weighted += score.definitive * (settings.PeriodWeights[p] / 100)
	}
	summary.WeightedFinal = roundGrade(weighted)
	summary.Performance = models.PerformanceFor(weighted)
	return summary
}
