// Package grading derives answer keys from quiz definitions and scores
// answer sheets against them. Everything here is pure.
package grading

import (
	"sort"

	"github.com/victornm/quizgrade/internal/domain"
)

// extractor returns the correct option IDs of a question, or nil when the
// question does not use its schema.
type extractor struct {
	name    string
	extract func(q domain.Question) []string
}

// extractors are tried in order; the first non-empty result wins. Quizzes
// authored before per-option flags existed only carry the question-level list.
var extractors = []extractor{
	{name: "flagged_options", extract: flaggedOptions},
	{name: "legacy_correct_list", extract: legacyCorrectList},
}

func flaggedOptions(q domain.Question) []string {
	var ids []string
	for _, o := range q.Options {
		if o.Correct {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

func legacyCorrectList(q domain.Question) []string {
	if len(q.CorrectIDs) == 0 {
		return nil
	}
	return append([]string(nil), q.CorrectIDs...)
}

// BuildKey derives the answer key of a quiz.
func BuildKey(quiz domain.Quiz) domain.AnswerKey {
	key := make(domain.AnswerKey, len(quiz.Questions))

	for _, q := range quiz.Questions {
		var correct []string
		for _, e := range extractors {
			if correct = e.extract(q); len(correct) > 0 {
				break
			}
		}
		correct = normalize(correct)

		points := q.Points
		if points <= 0 {
			points = 1
		}

		key[q.ID] = domain.KeyEntry{
			CorrectOptionIDs: correct,
			Points:           points,
			Multiple:         len(correct) > 1,
		}
	}

	return key
}

// normalize returns a sorted copy without duplicates, never nil.
func normalize(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
