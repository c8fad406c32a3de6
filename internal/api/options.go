package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/burstcam/internal/api/models"
	"github.com/smazurov/burstcam/internal/ffmpeg"
)

// registerOptionsRoutes registers export option endpoints.
func (s *Server) registerOptionsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-codecs",
		Method:      http.MethodGet,
		Path:        "/api/options/codecs",
		Summary:     "Export Codecs",
		Description: "Get the video codecs available for burst export with their container and defaults",
		Tags:        []string{"configuration"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.CodecListResponse, error) {
		return &models.CodecListResponse{
			Body: models.CodecListData{
				Codecs: ffmpeg.AllCodecs,
			},
		}, nil
	})
}
