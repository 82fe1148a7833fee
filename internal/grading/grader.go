package grading

import (
	"github.com/victornm/quizgrade/internal/domain"
)

// Outcome is the graded answer sheet.
type Outcome struct {
	Grades   []domain.Grade
	Score    int
	MaxScore int
}

// Grade scores each answer against the key. A question earns its points only
// when the chosen set equals the correct set; there is no partial credit.
// Answers to questions missing from the key get a zero-point grade flagged
// Unknown and do not count towards MaxScore.
func Grade(answers []domain.SubmittedAnswer, key domain.AnswerKey) Outcome {
	out := Outcome{Grades: make([]domain.Grade, 0, len(answers))}

	for _, a := range answers {
		chosen := normalize(a.Chosen)

		entry, ok := key[a.QuestionID]
		if !ok {
			out.Grades = append(out.Grades, domain.Grade{
				QuestionID:       a.QuestionID,
				CorrectOptionIDs: []string{},
				ChosenOptionIDs:  chosen,
				Unknown:          true,
			})
			continue
		}

		g := domain.Grade{
			QuestionID:       a.QuestionID,
			CorrectOptionIDs: append(make([]string, 0, len(entry.CorrectOptionIDs)), entry.CorrectOptionIDs...),
			ChosenOptionIDs:  chosen,
			MaxPoints:        entry.Points,
		}
		if sameSet(chosen, entry.CorrectOptionIDs) {
			g.Points = entry.Points
		}

		out.Grades = append(out.Grades, g)
		out.Score += g.Points
		out.MaxScore += g.MaxPoints
	}

	return out
}

// sameSet reports whether a and b contain the same members. Both must be
// free of duplicates.
func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	members := make(map[string]struct{}, len(b))
	for _, id := range b {
		members[id] = struct{}{}
	}
	for _, id := range a {
		if _, ok := members[id]; !ok {
			return false
		}
	}
	return true
}
