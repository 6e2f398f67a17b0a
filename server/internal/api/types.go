package api

// HealthResponse is the payload for GET /healthz.
type HealthResponse struct {
	Status      string `json:"status"`
	Records     int    `json:"records"`
	Subscribers int    `json:"subscribers"`
}
