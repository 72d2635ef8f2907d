// internal/workers/pricing/compare-prices/models.go
package compareprices

type Input struct {
	ProjectID    string   `json:"projectId"`
	JobID        string   `json:"jobId"`
	ProductNames []string `json:"productNames"`
	ZipCode      string   `json:"zipCode,omitempty"`
	ForceRefresh bool     `json:"forceRefresh,omitempty"`
}

type Output struct {
	Cached bool   `json:"cached"`
	JobID  string `json:"jobId"`
}
