package dto

type ErrorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status           string `json:"status"`
	Timestamp        string `json:"timestamp"`
	DB               string `json:"db"`
	Cache            string `json:"cache,omitempty"`
	Resources        string `json:"resources"`
	ResourcesVersion string `json:"resources_version,omitempty"`
	AppCount         int    `json:"app_count"`
}
