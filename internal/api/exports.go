package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/burstcam/internal/api/models"
	"github.com/smazurov/burstcam/internal/sink"
)

// registerExportRoutes registers burst and export endpoints
func (s *Server) registerExportRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-latest-burst",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{camera_id}/bursts/latest",
		Summary:     "Latest Burst",
		Description: "Get the metadata of the last burst handed off by a camera",
		Tags:        []string{"bursts"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.CameraPath) (*models.BurstResponse, error) {
		entry, err := s.coord.Burst(input.CameraID, "")
		if err != nil {
			return nil, mapCameraError(err)
		}
		return &models.BurstResponse{Body: burstData(entry)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-bursts",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{camera_id}/bursts",
		Summary:     "List Saved Bursts",
		Description: "List the burst directories of a camera on disk",
		Tags:        []string{"bursts"},
		Errors:      []int{401, 404, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.CameraPath) (*models.BurstListResponse, error) {
		bursts, err := s.coord.Bursts(input.CameraID)
		if err != nil {
			return nil, mapCameraError(err)
		}
		return &models.BurstListResponse{Body: models.BurstListData{Bursts: bursts}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-burst",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{camera_id}/bursts/{burst_id}",
		Summary:     "Get Saved Burst",
		Description: "Load a saved burst from disk and get its metadata",
		Tags:        []string{"bursts"},
		Errors:      []int{400, 401, 404, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.BurstPath) (*models.BurstResponse, error) {
		entry, err := s.coord.Burst(input.CameraID, input.BurstID)
		if err != nil {
			return nil, mapCameraError(err)
		}
		return &models.BurstResponse{Body: burstData(entry)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-burst",
		Method:      http.MethodDelete,
		Path:        "/api/cameras/{camera_id}/bursts/{burst_id}",
		Summary:     "Delete Saved Burst",
		Description: "Remove a burst directory with its images, preset snapshot, and exports",
		Tags:        []string{"bursts"},
		Errors:      []int{400, 401, 404, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.BurstPath) (*struct{}, error) {
		if err := s.coord.DeleteBurst(input.CameraID, input.BurstID); err != nil {
			return nil, mapCameraError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "export-video",
		Method:      http.MethodPost,
		Path:        "/api/cameras/{camera_id}/exports/video",
		Summary:     "Export Video",
		Description: "Encode a frame range of the latest or a saved burst with ffmpeg. Blocks until the encoder exits.",
		Tags:        []string{"exports"},
		Errors:      []int{400, 401, 404, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.VideoExportRequest) (*models.ExportResponse, error) {
		req := sink.VideoRequest{
			Start:     input.Body.Start,
			End:       input.Body.End,
			FrameRate: input.Body.FrameRate,
			Codec:     input.Body.Codec,
			CRF:       input.Body.CRF,
			Output:    input.Body.Output,
		}
		if req.Start > 0 && req.End > 0 && req.Start > req.End {
			return nil, huma.Error400BadRequest("start must not be after end")
		}
		path, err := s.coord.ExportVideo(ctx, input.CameraID, input.Body.Burst, req)
		if err != nil {
			return nil, mapCameraError(err)
		}
		return &models.ExportResponse{Body: models.ExportData{Path: path}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "export-fits",
		Method:      http.MethodPost,
		Path:        "/api/cameras/{camera_id}/exports/fits",
		Summary:     "Export FITS",
		Description: "Write the latest or a saved burst as a FITS cube with a frame timestamp table",
		Tags:        []string{"exports"},
		Errors:      []int{400, 401, 404, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.FITSExportRequest) (*models.ExportResponse, error) {
		path, err := s.coord.ExportFITS(input.CameraID, input.Burst)
		if err != nil {
			return nil, mapCameraError(err)
		}
		return &models.ExportResponse{Body: models.ExportData{Path: path}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-export-jobs",
		Method:      http.MethodGet,
		Path:        "/api/exports/jobs",
		Summary:     "List Export Jobs",
		Description: "Get the state of running and finished video encoder jobs",
		Tags:        []string{"exports"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.JobListResponse, error) {
		return &models.JobListResponse{
			Body: models.JobListData{Jobs: s.coord.Jobs().List()},
		}, nil
	})
}

func burstData(entry sink.Entry) models.BurstData {
	b := entry.Burst
	return models.BurstData{
		CameraID:   b.CameraID,
		Dir:        entry.Dir,
		Frames:     b.Len(),
		Timestamps: b.Timestamps,
		Reason:     b.Reason,
		Preset:     b.Preset,
		StartedAt:  b.StartedAt,
		Duration:   b.Duration.String(),
		ReceivedAt: entry.ReceivedAt,
	}
}
