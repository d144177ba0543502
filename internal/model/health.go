package model

// 健康检查状态。
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// HealthResponse 是 /health 的响应体。
type HealthResponse struct {
	Status     string `json:"status"`
	Collection string `json:"collection"`
	Available  bool   `json:"available"`
}
