package confluence

// Grade labels a confluence strength.
type Grade string

const (
	GradeStrong     Grade = "strong"
	GradeModerate   Grade = "moderate"
	GradeWeak       Grade = "weak"
	GradeNegligible Grade = "negligible"
)

// Grades maps minimum strengths to labels, highest first.
var Grades = []struct {
	MinScore float64
	Grade    Grade
}{
	{0.75, GradeStrong},
	{0.50, GradeModerate},
	{0.25, GradeWeak},
}

// GradeOf maps a strength in [0,1] to its Grade.
func GradeOf(strength float64) Grade {
	for _, g := range Grades {
		if strength >= g.MinScore {
			return g.Grade
		}
	}
	return GradeNegligible
}
