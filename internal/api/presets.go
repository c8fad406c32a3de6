package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/burstcam/internal/api/models"
	"github.com/smazurov/burstcam/internal/camera"
	"github.com/smazurov/burstcam/internal/preset"
)

// registerPresetRoutes registers preset endpoints
func (s *Server) registerPresetRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-camera-presets",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{camera_id}/presets",
		Summary:     "List Camera Presets",
		Description: "Get the built-in and user presets of a camera",
		Tags:        []string{"presets"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.CameraPath) (*models.PresetListResponse, error) {
		var resp models.PresetListResponse
		err := s.coord.Dispatch(input.CameraID, func(c *camera.Controller) error {
			resp.Body.Presets = c.Presets().Snapshot()
			return nil
		})
		if err != nil {
			return nil, mapCameraError(err)
		}
		return &resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "apply-camera-preset",
		Method:      http.MethodPost,
		Path:        "/api/cameras/{camera_id}/presets/{name}/apply",
		Summary:     "Apply Preset",
		Description: "Apply a stored preset as the acquisition settings",
		Tags:        []string{"presets"},
		Errors:      []int{401, 404, 409},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.ApplyPresetRequest) (*models.SettingsResponse, error) {
		var resp models.SettingsResponse
		err := s.coord.Dispatch(input.CameraID, func(c *camera.Controller) error {
			fps, err := c.ApplyPreset(ctx, input.Name)
			resp.Body.AchievedFrameRate = fps
			return err
		})
		return settingsResult(&resp, err)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-user-presets",
		Method:      http.MethodGet,
		Path:        "/api/presets",
		Summary:     "List User Presets",
		Description: "Get the presets stored in the user preset file",
		Tags:        []string{"presets"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.PresetListResponse, error) {
		return &models.PresetListResponse{
			Body: models.PresetListData{Presets: s.coord.UserPresets()},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "save-user-preset",
		Method:      http.MethodPut,
		Path:        "/api/presets/{name}",
		Summary:     "Save User Preset",
		Description: "Save the trigger preset of a camera under name in the user preset file",
		Tags:        []string{"presets"},
		Errors:      []int{400, 401, 404, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.SavePresetRequest) (*struct{}, error) {
		if preset.IsBuiltin(input.Name) {
			return nil, huma.Error400BadRequest("built-in presets cannot be overwritten")
		}
		if err := s.coord.SavePreset(input.Body.CameraID, input.Name); err != nil {
			return nil, mapCameraError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-user-preset",
		Method:      http.MethodDelete,
		Path:        "/api/presets/{name}",
		Summary:     "Delete User Preset",
		Description: "Remove a preset from the user preset file and every camera",
		Tags:        []string{"presets"},
		Errors:      []int{401, 404, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.DeletePresetRequest) (*struct{}, error) {
		if err := s.coord.DeletePreset(input.Name); err != nil {
			return nil, mapCameraError(err)
		}
		return &struct{}{}, nil
	})
}
