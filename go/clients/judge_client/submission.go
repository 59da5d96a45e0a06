package judge_client

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// VerdictPending is the only verdict a submission can leave.
const VerdictPending = "Pending"

// SubmissionStatus is the body of GET /api/submission/{id}. Timestamp is the
// submission time in epoch seconds.
type SubmissionStatus struct {
	Verdict   string  `json:"verdict"`
	Timestamp float64 `json:"timestamp"`
}

func (s SubmissionStatus) Time() time.Time {
	return epochSeconds(s.Timestamp)
}

func (s SubmissionStatus) Pending() bool {
	return s.Verdict == VerdictPending
}

func (c *JudgeClient) GetSubmission(ctx context.Context, submissionID string) (*SubmissionStatus, error) {
	endpoint := fmt.Sprintf("%s/%s", SubmissionEndpoint, url.PathEscape(submissionID))

	var response SubmissionStatus
	if err := c.GetJSON(ctx, endpoint, &response); err != nil {
		return nil, fmt.Errorf("failed to get submission %s: %w", submissionID, err)
	}
	return &response, nil
}
