package models

// Attachment references a file the generated site may use
type Attachment struct {
	Name string `json:"name" example:"sample.csv"`
	URL  string `json:"url" example:"data:text/csv;base64,YSxiCjEsMg=="`
}

// TaskRequest is the inbound build request for one round
type TaskRequest struct {
	Email         string       `json:"email" binding:"required" example:"student@example.com"`
	Secret        string       `json:"secret" binding:"required"`
	Task          string       `json:"task" binding:"required" example:"sum-of-sales"`
	Round         int          `json:"round" binding:"required" example:"1"`
	Nonce         string       `json:"nonce" example:"ab12-cd34"`
	Brief         string       `json:"brief" binding:"required" example:"Publish a page that sums the sales column of sample.csv"`
	Checks        []string     `json:"checks"`
	EvaluationURL string       `json:"evaluation_url" binding:"required,url" example:"https://evaluator.example.com/notify"`
	Attachments   []Attachment `json:"attachments"`
}

// TaskResponse reports a completed round
type TaskResponse struct {
	Email     string `json:"email"`
	Task      string `json:"task"`
	Round     int    `json:"round"`
	Nonce     string `json:"nonce"`
	RepoURL   string `json:"repo_url"`
	PagesURL  string `json:"pages_url"`
	CommitSHA string `json:"commit_sha"`
	Status    int    `json:"status"`
	RunID     string `json:"run_id"`
}
