package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/browserpool/internal/events"
)

// registerSSERoutes registers the alert and pool lifecycle streams.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "alerts-stream",
		Method:      http.MethodGet,
		Path:        "/api/alerts",
		Summary:     "Threshold Alerts Stream",
		Description: "Real-time stream of CPU and memory threshold alerts",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"alert": events.AlertEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 10)
		unsubscribe := events.SubscribeToChannel[events.AlertEvent](s.eventBus, eventCh)
		defer unsubscribe()

		forward(ctx, eventCh, send)
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Pool Events Stream",
		Description: "Real-time stream of browser unit lifecycle and pool state changes",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"unit-created":       events.UnitCreatedEvent{},
		"unit-destroyed":     events.UnitDestroyedEvent{},
		"pool-state-changed": events.PoolStateChangedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 10)
		unsubscribers := []func(){
			events.SubscribeToChannel[events.UnitCreatedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.UnitDestroyedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.PoolStateChangedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Let the client know it is connected before the first event arrives.
		if err := send.Data(events.PoolStateChangedEvent{
			State:     s.pool.Stats().State,
			Timestamp: nowRFC3339(),
		}); err != nil {
			return
		}

		forward(ctx, eventCh, send)
	})
}

// forward relays events until the client goes away or a write fails.
func forward(ctx context.Context, eventCh <-chan any, send sse.Sender) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eventCh:
			if err := send.Data(event); err != nil {
				return
			}
		}
	}
}
