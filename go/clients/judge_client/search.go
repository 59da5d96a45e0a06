package judge_client

import (
	"context"
	"fmt"
	"net/url"
)

type TaskResult struct {
	TaskID string `json:"task_id"`
	Title  string `json:"title"`
}

type UserResult struct {
	Username string `json:"username"`
	Name     string `json:"name"`
}

type SearchResults struct {
	Tasks []TaskResult `json:"tasks"`
	Users []UserResult `json:"users"`
}

// Search does not validate the query length; callers decide whether a query
// is worth sending.
func (c *JudgeClient) Search(ctx context.Context, query string) (*SearchResults, error) {
	endpoint := fmt.Sprintf("%s?query=%s", SearchEndpoint, url.QueryEscape(query))

	var response SearchResults
	if err := c.GetJSON(ctx, endpoint, &response); err != nil {
		return nil, fmt.Errorf("failed to search %q: %w", query, err)
	}
	return &response, nil
}
