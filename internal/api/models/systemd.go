package models

// ServiceStatusData describes the browserpool systemd unit.
type ServiceStatusData struct {
	Service     string `json:"service" example:"browserpool.service" doc:"Unit name"`
	ActiveState string `json:"active_state" example:"active" doc:"ActiveState (active, reloading, inactive, failed, activating, deactivating)"`
	SubState    string `json:"sub_state" example:"running" doc:"Unit type specific SubState"`
	MainPID     uint32 `json:"main_pid" example:"4242" doc:"Main process id, 0 when not running"`
}

type ServiceStatusResponse struct {
	Body ServiceStatusData
}

// ServiceRestartData reports the queued restart job.
type ServiceRestartData struct {
	Service string `json:"service" example:"browserpool.service" doc:"Unit name"`
	JobID   int    `json:"job_id" example:"1234" doc:"Queued systemd job id"`
}

type ServiceRestartResponse struct {
	Body ServiceRestartData
}
