package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/browserpool/internal/api/models"
	"github.com/smazurov/browserpool/internal/browser"
	"github.com/smazurov/browserpool/internal/manager"
)

// poolError maps manager errors onto HTTP statuses. Callback failures are
// reported generically; the detail is only logged.
func (s *Server) poolError(op string, err error) error {
	var sce *manager.SessionCallbackError
	switch {
	case manager.IsUnavailable(err):
		s.logger.Warn("Pool unavailable", "op", op, "error", err)
		return huma.Error503ServiceUnavailable("pool manager misconfigured")
	case errors.As(err, &sce):
		s.logger.Error("Session failed", "op", op, "error", err)
		return huma.Error500InternalServerError("session failed")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return huma.Error503ServiceUnavailable("no browser available", err)
	default:
		s.logger.Error("Pool operation failed", "op", op, "error", err)
		return huma.Error500InternalServerError("pool operation failed")
	}
}

func (s *Server) registerPoolRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-pool",
		Method:      http.MethodGet,
		Path:        "/api/pool",
		Summary:     "Pool Status",
		Description: "Browser unit pool counts and live units",
		Tags:        []string{"pool"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.PoolResponse, error) {
		stats := s.pool.Stats()
		return &models.PoolResponse{
			Body: models.PoolData{
				State: stats.State,
				Units: stats.Units,
				Live:  stats.Live,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-pool-metrics",
		Method:      http.MethodGet,
		Path:        "/api/pool/metrics",
		Summary:     "Pool Metrics",
		Description: "CPU and memory of one browser unit, or of every unit when id is omitted",
		Tags:        []string{"pool"},
		Security:    withAuth(),
		Errors:      []int{401, 503},
	}, func(ctx context.Context, input *models.PoolMetricsRequest) (*models.PoolMetricsResponse, error) {
		var id *int
		if input.ID > 0 {
			id = &input.ID
		}
		snaps, err := s.pool.GetPoolMetrics(ctx, id)
		if err != nil {
			return nil, s.poolError("metrics", err)
		}
		return &models.PoolMetricsResponse{Body: snaps}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "reboot-pool",
		Method:      http.MethodPost,
		Path:        "/api/pool/reboot",
		Summary:     "Reboot Pool",
		Description: "Drain and close every browser, then boot a fresh pool. Waits for in-flight sessions.",
		Tags:        []string{"pool"},
		Security:    withAuth(),
		Errors:      []int{401, 500, 503},
	}, func(ctx context.Context, _ *struct{}) (*models.RebootResponse, error) {
		if err := s.pool.Reboot(ctx); err != nil {
			return nil, s.poolError("reboot", err)
		}
		return &models.RebootResponse{
			Body: models.RebootData{
				State:   s.pool.Stats().State,
				Message: "Pool rebooted",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "fetch-page",
		Method:      http.MethodPost,
		Path:        "/api/fetch",
		Summary:     "Fetch Page",
		Description: "Load a URL in a pooled browser session and report its title and HTML length",
		Tags:        []string{"sessions"},
		Security:    withAuth(),
		Errors:      []int{401, 422, 500, 503},
	}, func(ctx context.Context, input *models.FetchRequest) (*models.FetchResponse, error) {
		result, err := s.pool.IssueSession(ctx, func(ctx context.Context, page browser.Page) (any, error) {
			if err := page.Navigate(ctx, input.Body.URL); err != nil {
				return nil, err
			}
			title, err := page.Title()
			if err != nil {
				return nil, err
			}
			html, err := page.Content()
			if err != nil {
				return nil, err
			}
			return models.FetchData{URL: page.URL(), Title: title, Length: len(html)}, nil
		})
		if err != nil {
			return nil, s.poolError("fetch", err)
		}
		data, _ := result.(models.FetchData)
		return &models.FetchResponse{Body: data}, nil
	})
}
