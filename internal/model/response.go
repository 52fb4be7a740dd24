package model

type ErrorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

type RateLimitErrorResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
}

type QuotaErrorResponse struct {
	Error   string `json:"error"`
	Plan    Plan   `json:"plan"`
	Limit   int    `json:"limit"`
	Current int64  `json:"current"`
}

// PartialIngestErrorResponse - 앞의 accepted건은 큐에 들어감
type PartialIngestErrorResponse struct {
	Error    string `json:"error"`
	Accepted int    `json:"accepted"`
	Total    int    `json:"total"`
}

type PingResponse struct {
	Message string `json:"message"`
}

type RootResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type IncidentEnvelope struct {
	Status string    `json:"status"`
	Data   *Incident `json:"data"`
}

type SimilarIncidentsResponse struct {
	Status string            `json:"status"`
	Data   []SimilarIncident `json:"data"`
}

type CommentEnvelope struct {
	Status string           `json:"status"`
	Data   *IncidentComment `json:"data"`
}

type CommentListResponse struct {
	Status string            `json:"status"`
	Data   []IncidentComment `json:"data"`
}

type WebhookEnvelope struct {
	Status string               `json:"status"`
	Data   *WebhookRegistration `json:"data"`
}

type WebhookListResponse struct {
	Status string                `json:"status"`
	Data   []WebhookRegistration `json:"data"`
}

type ApplicationListResponse struct {
	Status string        `json:"status"`
	Data   []Application `json:"data"`
}
