package judge_client

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"time"
)

// Contest statuses reported by the judge.
const (
	ContestStatusPrePrep = "pre_prep"
	ContestStatusPrep    = "prep"
	ContestStatusOngoing = "ongoing"
	ContestStatusEnded   = "ended"
)

// ContestStatus is the body of GET /api/contest/{id}. Timestamp is the start
// time before the contest and the end time afterwards, in epoch seconds.
type ContestStatus struct {
	Status    string  `json:"status"`
	Timestamp float64 `json:"timestamp"`
}

func (s ContestStatus) Time() time.Time {
	return epochSeconds(s.Timestamp)
}

func (c *JudgeClient) GetContest(ctx context.Context, contestID string) (*ContestStatus, error) {
	endpoint := fmt.Sprintf("%s/%s", ContestEndpoint, url.PathEscape(contestID))

	var response ContestStatus
	if err := c.GetJSON(ctx, endpoint, &response); err != nil {
		return nil, fmt.Errorf("failed to get contest %s: %w", contestID, err)
	}
	return &response, nil
}

func epochSeconds(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(math.Round(frac*1e3))*int64(time.Millisecond))
}
