package registry

// JobRegistry describes every job type the worker manager can run.
type JobRegistry struct {
	Version     string    `json:"version"`
	LastUpdated string    `json:"lastUpdated"`
	JobTypes    []JobType `json:"jobTypes"`
}

type JobType struct {
	ID           string                 `json:"id"`
	DisplayName  string                 `json:"displayName"`
	Description  string                 `json:"description"`
	Queue        string                 `json:"queue"`
	Version      string                 `json:"version"`
	InputSchema  map[string]interface{} `json:"inputSchema"`
	OutputSchema map[string]interface{} `json:"outputSchema,omitempty"`
	ErrorCodes   []string               `json:"errorCodes"`
	Timeout      string                 `json:"timeout"`
	Retries      int                    `json:"retries"`
	Tags         []string               `json:"tags,omitempty"`
}
