package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/quizgrade/internal/domain"
)

const maxConcurrent = 100

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	Leaderboard struct {
		SessionName string             `json:"sessionName"`
		Entries     []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		UserCode string `json:"userCode"`
		Score    string `json:"score"`
	}
)

func toLeaderboard(l domain.Leaderboard) Leaderboard {
	data := Leaderboard{
		SessionName: l.SessionName,
		Entries:     make([]LeaderboardEntry, 0, len(l.Entries)),
	}

	for _, entry := range l.Entries {
		data.Entries = append(data.Entries, LeaderboardEntry{
			UserCode: entry.UserCode,
			Score:    strconv.FormatFloat(entry.Score, 'f', -1, 64),
		})
	}

	return data
}

// PublishLeaderboardUpdated fans the new ranking out to the session channel,
// which backs the websocket stream, and to every ranked participant's own
// channel. The leaderboard service only raises the event once the session
// discloses its scores.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	data := toLeaderboard(e.Leaderboard)

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	eg.Go(func() error {
		return a.publishNotification(ctx, a.sessionChannel(data.SessionName), e.Name(), data)
	})

	for _, entry := range data.Entries {
		entry := entry
		eg.Go(func() error {
			return a.publishNotification(ctx, a.userChannel(entry.UserCode), e.Name(), data)
		})
	}

	return eg.Wait()
}

func (a *API) publishNotification(ctx context.Context, channel, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, channel, b).Err()
}

func (a *API) sessionChannel(sessionName string) string {
	return fmt.Sprintf("%s:session:%s", a.prefix, sessionName)
}

func (a *API) userChannel(userCode string) string {
	return fmt.Sprintf("%s:user:%s", a.prefix, userCode)
}
