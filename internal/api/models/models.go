package models

import (
	"github.com/smazurov/browserpool/internal/monitor"
	"github.com/smazurov/browserpool/internal/pool"
	"github.com/smazurov/browserpool/internal/registry"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
	Pool    string `json:"pool" example:"booted" doc:"Pool manager state"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"42" doc:"Build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go version used to build"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Target platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Pool models
type PoolData struct {
	State string           `json:"state" example:"booted" doc:"Pool manager state"`
	Units pool.Stats       `json:"units" doc:"Browser unit pool counts"`
	Live  []registry.Entry `json:"live" doc:"Live browser units in creation order"`
}

type PoolResponse struct {
	Body PoolData
}

type PoolMetricsRequest struct {
	ID int `query:"id" minimum:"0" doc:"Browser unit id; 0 or omitted samples every unit"`
}

type PoolMetricsResponse struct {
	Body []monitor.Snapshot
}

type RebootData struct {
	State   string `json:"state" example:"booted" doc:"Pool manager state after reboot"`
	Message string `json:"message" example:"Pool rebooted" doc:"Status message"`
}

type RebootResponse struct {
	Body RebootData
}

// Fetch models
type FetchRequestData struct {
	URL string `json:"url" format:"uri" example:"https://example.com" doc:"Page to load"`
}

type FetchRequest struct {
	Body FetchRequestData
}

type FetchData struct {
	URL    string `json:"url" example:"https://example.com/" doc:"Final page URL"`
	Title  string `json:"title" example:"Example Domain" doc:"Document title"`
	Length int    `json:"length" example:"1256" doc:"Length of the rendered HTML in bytes"`
}

type FetchResponse struct {
	Body FetchData
}
