package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/browserpool/internal/api/models"
)

// registerSystemdRoutes exposes status and restart of the browserpool unit
// itself. Restarting goes through systemd so the shutdown coordinator runs.
func (s *Server) registerSystemdRoutes() {
	if s.options.SystemdManager == nil || s.options.ServiceName == "" {
		return
	}

	manager := s.options.SystemdManager
	serviceName := s.options.ServiceName

	huma.Register(s.api, huma.Operation{
		OperationID: "get-service-status",
		Method:      http.MethodGet,
		Path:        "/api/systemd/status",
		Summary:     "Service Status",
		Description: fmt.Sprintf("Get the %s systemd unit state", serviceName),
		Tags:        []string{"systemd"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, _ *struct{}) (*models.ServiceStatusResponse, error) {
		st, err := manager.Status(ctx, serviceName)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to get service status", err)
		}
		return &models.ServiceStatusResponse{
			Body: models.ServiceStatusData{
				Service:     serviceName,
				ActiveState: st.ActiveState,
				SubState:    st.SubState,
				MainPID:     st.MainPID,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "restart-service",
		Method:      http.MethodPost,
		Path:        "/api/systemd/restart",
		Summary:     "Restart Service",
		Description: fmt.Sprintf("Ask systemd to restart %s", serviceName),
		Tags:        []string{"systemd"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, _ *struct{}) (*models.ServiceRestartResponse, error) {
		jobID, err := manager.Restart(ctx, serviceName)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to restart service", err)
		}
		s.logger.Info("Service restart queued", "service", serviceName, "job", jobID)
		return &models.ServiceRestartResponse{
			Body: models.ServiceRestartData{Service: serviceName, JobID: jobID},
		}, nil
	})
}
