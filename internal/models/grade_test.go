package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func TestGradeSlotsKeepNullDistinctFromZero(t *testing.T) {
	data := PeriodGradeData{Tasks: NewGradeSlots(map[string]*float64{"a1": f(0), "a2": nil}), Exam: nil, Attitude: f(0)}

	raw, err := json.Marshal(data)
	require.NoError(t, err)

	var decoded PeriodGradeData
	require.NoError(t, json.Unmarshal(raw, &decoded))

	values := decoded.Tasks.Values()
	require.Contains(t, values, "a1")
	require.Contains(t, values, "a2")
	require.NotNil(t, values["a1"])
	assert.Equal(t, 0.0, *values["a1"])
	assert.Nil(t, values["a2"])
	assert.Nil(t, decoded.Exam)
	require.NotNil(t, decoded.Attitude)
	assert.Equal(t, 0.0, *decoded.Attitude)
}

func TestGradeSlotsMigrateLegacyArray(t *testing.T) {
	var data PeriodGradeData
	require.NoError(t, json.Unmarshal([]byte(`{"tasks":[8,null,10],"workshops":{"w1":7}}`), &data))
	assert.True(t, data.Tasks.Legacy())

	acts := []Activity{{ID: "t1"}, {ID: "t2"}}
	assert.Equal(t, 8.0, *data.Tasks.Lookup(0, acts[0]))
	assert.Nil(t, data.Tasks.Lookup(1, acts[1]))

	migrated := data.Tasks.Migrate(acts)
	assert.False(t, migrated.Legacy())
	values := migrated.Values()
	assert.Len(t, values, 2)
	assert.Equal(t, 8.0, *values["t1"])
	assert.Nil(t, values["t2"])
	assert.Equal(t, 7.0, *data.Workshops.Lookup(5, Activity{ID: "w1"}))
}

func TestGradeSlotsPruneDropsUndefinedActivities(t *testing.T) {
	slots := NewGradeSlots(map[string]*float64{"a": f(1), "gone": nil})

	pruned, changed := slots.Prune([]Activity{{ID: "a"}, {ID: "b"}})
	assert.True(t, changed)
	assert.Equal(t, map[string]*float64{"a": f(1)}, pruned.Values())
	assert.True(t, slots.Has("gone"))

	_, changed = pruned.Prune([]Activity{{ID: "a"}})
	assert.False(t, changed)
}

func TestGradeSlotsDeleteDoesNotShift(t *testing.T) {
	slots := NewGradeSlots(map[string]*float64{"a": f(1), "b": f(2), "c": f(3)})
	slots.Delete("b")

	acts := []Activity{{ID: "a"}, {ID: "c"}}
	assert.Equal(t, 1.0, *slots.Lookup(0, acts[0]))
	assert.Equal(t, 3.0, *slots.Lookup(1, acts[1]))
	assert.False(t, slots.Has("b"))
}

func TestPeriodKey(t *testing.T) {
	key, err := ParsePeriodKey(" Summary ")
	require.NoError(t, err)
	assert.True(t, key.IsSummary())
	assert.Equal(t, "summary", key.String())

	key, err = ParsePeriodKey("3")
	require.NoError(t, err)
	assert.False(t, key.IsSummary())
	assert.Equal(t, 3, key.Number())

	raw, err := json.Marshal([]PeriodKey{Period(2), Summary()})
	require.NoError(t, err)
	assert.JSONEq(t, `[2,"summary"]`, string(raw))

	var decoded []PeriodKey
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, []PeriodKey{Period(2), Summary()}, decoded)
	assert.Error(t, json.Unmarshal([]byte(`1.5`), &key))

	for _, bad := range []string{"0", "-1", "final", ""} {
		_, err := ParsePeriodKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestPerformanceFor(t *testing.T) {
	cases := map[float64]PerformanceTier{
		10:    PerformanceSuperior,
		9.6:   PerformanceSuperior,
		9.59:  PerformanceAlto,
		8.0:   PerformanceAlto,
		7.99:  PerformanceBasico,
		6.0:   PerformanceBasico,
		5.99:  PerformanceBajo,
		5.999: PerformanceBajo,
		9.596: PerformanceAlto,
		0:     PerformanceBajo,
		-0.01: PerformanceBajo,
	}
	for grade, want := range cases {
		assert.Equal(t, want, PerformanceFor(grade), "grade %v", grade)
	}
}

func TestAcademicSettingsValidate(t *testing.T) {
	valid := AcademicSettings{PeriodCount: 3, PeriodWeights: map[int]float64{1: 30, 2: 30, 3: 40}}
	assert.NoError(t, valid.Validate())

	assert.Error(t, AcademicSettings{PeriodCount: 0}.Validate())
	assert.Error(t, AcademicSettings{PeriodCount: 2, PeriodWeights: map[int]float64{1: 50, 2: 49}}.Validate())
	assert.Error(t, AcademicSettings{PeriodCount: 2, PeriodWeights: map[int]float64{1: 50, 3: 50}}.Validate())
	assert.Error(t, AcademicSettings{PeriodCount: 2, PeriodWeights: map[int]float64{1: 150, 2: -50}}.Validate())
}

func TestDefaultAcademicSettingsSumTo100(t *testing.T) {
	for n := 1; n <= 6; n++ {
		settings := DefaultAcademicSettings(n)
		assert.NoError(t, settings.Validate(), "period count %d", n)
	}
	assert.Equal(t, 33.34, DefaultAcademicSettings(3).PeriodWeights[3])
}

func TestGroupGradeRows(t *testing.T) {
	rows := []GradeRow{
		{StudentID: "s1", Period: 1, Data: PeriodGradeData{Exam: f(7)}},
		{StudentID: "s1", Period: 2},
		{StudentID: "s2", Period: 1},
	}
	records := GroupGradeRows("c1", rows)
	require.Len(t, records, 2)
	assert.Len(t, records["s1"].Periods, 2)
	assert.Equal(t, 7.0, *records["s1"].Periods[1].Exam)
	assert.Equal(t, "c1", records["s2"].CourseID)
}
