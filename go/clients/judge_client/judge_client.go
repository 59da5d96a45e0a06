package judge_client

import (
	"github.com/wykoj/livewatch/go/clients"
)

type JudgeClient struct {
	*clients.BaseClient
}

func NewJudgeClient(baseURL string) *JudgeClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &JudgeClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}
}
