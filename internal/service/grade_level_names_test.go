package service

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeGradeName(t *testing.T) {
	cases := map[string]string{
		"  Transición ":  "transicion",
		"6°":             "6",
		"11º":            "11",
		"Pre-Jardín":     "pre-jardin",
		"Grado   Décimo": "grado decimo",
		"":               "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeGradeName(in), in)
	}
}

func TestGradeLessEducationalOrder(t *testing.T) {
	names := []string{"10°", "Robótica", "2°", "Transición", "Kinder", "Pre-Kinder", "1°", "Jardín"}
	sort.Slice(names, func(i, j int) bool { return gradeLess(names[i], names[j]) })
	assert.Equal(t, []string{"Pre-Kinder", "Jardín", "Kinder", "Transición", "1°", "2°", "10°", "Robótica"}, names)
}
