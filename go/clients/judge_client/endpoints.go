package judge_client

const (
	// Base URL of a local judge instance
	DefaultBaseURL = "http://localhost:3000"

	// API Endpoints
	ContestEndpoint    = "/api/contest"
	SubmissionEndpoint = "/api/submission"
	SearchEndpoint     = "/api/search"
	UserEndpoint       = "/api/user"

	// Search query bounds enforced by the judge
	MinQueryLength = 3
	MaxQueryLength = 50
)
