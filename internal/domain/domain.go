package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Session is a scheduled instance of a quiz offered within a time window.
// A nil OpenUntil means the session never closes and its results are always
// disclosed.
type Session struct {
	SessionID   string     `json:"sessionId"`
	SessionName string     `json:"sessionName"`
	QuizID      string     `json:"quizId"`
	OpenFrom    *time.Time `json:"openFrom,omitempty"`
	OpenUntil   *time.Time `json:"openUntil,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Quiz is the immutable quiz definition a session points to.
type Quiz struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	Questions []Question `json:"questions" yaml:"questions"`
}

type Question struct {
	ID      string   `json:"id" yaml:"id"`
	Text    string   `json:"text" yaml:"text"`
	Points  int      `json:"points,omitempty" yaml:"points,omitempty"` // defaults to 1 if zero
	Options []Option `json:"options" yaml:"options"`

	// CorrectIDs is the legacy question-level answer list, only consulted
	// when no option carries a Correct flag.
	CorrectIDs []string `json:"correct,omitempty" yaml:"correct,omitempty"`
}

type Option struct {
	ID      string `json:"id" yaml:"id"`
	Text    string `json:"text" yaml:"text"`
	Correct bool   `json:"correct,omitempty" yaml:"correct,omitempty"`
}

// KeyEntry is the answer key of a single question.
type KeyEntry struct {
	CorrectOptionIDs []string
	Points           int
	Multiple         bool
}

// AnswerKey maps question IDs to their key. It is derived from a Quiz on
// every grading pass and never persisted.
type AnswerKey map[string]KeyEntry

// SubmittedAnswer is one entry of a participant's answer sheet. Chosen is a
// set: duplicates are rejected by validation.
type SubmittedAnswer struct {
	QuestionID string   `json:"questionId" validate:"required,max=100"`
	Chosen     []string `json:"chosen" validate:"max=50,unique,dive,required,max=10"`
}

type Grade struct {
	QuestionID       string   `json:"questionId"`
	CorrectOptionIDs []string `json:"correctOptionIds"`
	ChosenOptionIDs  []string `json:"chosenOptionIds"`
	Points           int      `json:"points"`
	MaxPoints        int      `json:"maxPoints"`
	Unknown          bool     `json:"unknown,omitempty"`
}

// Submission is one participant's final graded answer sheet for a session.
// Its ID doubles as the public result token.
type Submission struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	SessionName string    `json:"sessionName"`
	UserCode    string    `json:"userCode"`
	Grades      []Grade   `json:"grades"`
	Score       int       `json:"score"`
	MaxScore    int       `json:"maxScore"`
	CreatedAt   time.Time `json:"createdAt"`
}

type QuestionStat struct {
	QuestionID           string         `json:"questionId"`
	TotalResponses       int            `json:"totalResponses"`
	CorrectCount         int            `json:"correctCount"`
	PerOptionChosenCount map[string]int `json:"perOptionChosenCount"`
}

// CorrectPercent is the share of correct responses, rounded to 2 places.
func (s QuestionStat) CorrectPercent() decimal.Decimal {
	if s.TotalResponses == 0 {
		return decimal.Zero
	}

	return decimal.NewFromInt(int64(s.CorrectCount)).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(int64(s.TotalResponses)), 2)
}

// PendingDisclosure is returned instead of a Result while the session is
// still inside its open window.
type PendingDisclosure struct {
	OpenAfter time.Time `json:"openAfter"`
}

// Result is a disclosed, display-ready submission.
type Result struct {
	ResultToken string           `json:"resultToken"`
	SessionName string           `json:"sessionName"`
	QuizTitle   string           `json:"quizTitle"`
	UserCode    string           `json:"userCode"`
	Score       int              `json:"score"`
	MaxScore    int              `json:"maxScore"`
	SubmittedAt time.Time        `json:"submittedAt"`
	Questions   []ResultQuestion `json:"questions"`
}

type ResultQuestion struct {
	QuestionID            string          `json:"questionId"`
	Text                  string          `json:"text"`
	Options               []ResultOption  `json:"options"`
	Points                int             `json:"points"`
	MaxPoints             int             `json:"maxPoints"`
	Correct               bool            `json:"correct"`
	Unknown               bool            `json:"unknown,omitempty"`
	AverageCorrectPercent decimal.Decimal `json:"averageCorrectPercent"`
}

type ResultOption struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	Correct     bool   `json:"correct"`
	Chosen      bool   `json:"chosen"`
	ChosenCount int    `json:"chosenCount"`
}

// Leaderboard represents a list of users and their scores within a quiz session.
// The list is sorted by score in descending order.
type Leaderboard struct {
	SessionName string
	Entries     []LeaderboardEntry
}

type LeaderboardEntry struct {
	UserCode string
	Score    float64
}
