package judge_client

import (
	"context"
	"fmt"
	"net/url"
)

// SubmissionLanguages holds parallel slices, one entry per language.
type SubmissionLanguages struct {
	Occurrences []int    `json:"occurrences"`
	Languages   []string `json:"languages"`
}

type UserProfile struct {
	SubmissionLanguages SubmissionLanguages `json:"submission_languages"`
}

func (c *JudgeClient) GetUser(ctx context.Context, username string) (*UserProfile, error) {
	endpoint := fmt.Sprintf("%s/%s", UserEndpoint, url.PathEscape(username))

	var response UserProfile
	if err := c.GetJSON(ctx, endpoint, &response); err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", username, err)
	}
	return &response, nil
}
