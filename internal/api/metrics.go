package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/burstcam/internal/api/models"
	"github.com/smazurov/burstcam/internal/metrics"
)

// registerMetricsRoutes registers the per-camera metrics endpoint. The
// Prometheus exposition is served separately on /metrics.
func (s *Server) registerMetricsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-camera-metrics",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{camera_id}/metrics",
		Summary:     "Camera Metrics",
		Description: "Get burst, error, and preview counters of a camera",
		Tags:        []string{"metrics"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(ctx context.Context, input *models.CameraPath) (*models.CameraMetricsResponse, error) {
		if _, err := s.coord.Camera(input.CameraID); err != nil {
			return nil, mapCameraError(err)
		}
		return &models.CameraMetricsResponse{
			Body: models.CameraMetricsData{
				CameraID:       input.CameraID,
				Metrics:        metrics.GetCameraMetrics(input.CameraID),
				PreviewDropped: s.coord.Preview().Dropped(input.CameraID),
			},
		}, nil
	})
}
