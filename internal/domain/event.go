package domain

const (
	EventNameSubmissionAccepted = "submission.accepted"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventSubmissionAccepted struct {
	Submission Submission
}

func (EventSubmissionAccepted) Name() string { return EventNameSubmissionAccepted }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
