package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/burstcam/internal/api/models"
	"github.com/smazurov/burstcam/internal/camera"
	"github.com/smazurov/burstcam/internal/device"
)

// registerCameraRoutes registers camera control endpoints
func (s *Server) registerCameraRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-cameras",
		Method:      http.MethodGet,
		Path:        "/api/cameras",
		Summary:     "List Cameras",
		Description: "Get the status of every open camera",
		Tags:        []string{"cameras"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.CameraListResponse, error) {
		cams := s.coord.Cameras()
		statuses := make([]camera.Status, len(cams))
		for i, c := range cams {
			statuses[i] = c.Status()
		}
		return &models.CameraListResponse{
			Body: models.CameraListData{Cameras: statuses, Count: len(statuses)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "discover-cameras",
		Method:      http.MethodPost,
		Path:        "/api/cameras/discover",
		Summary:     "Discover Cameras",
		Description: "Enumerate devices again and open any camera that is not open yet",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.DiscoverResponse, error) {
		n, err := s.coord.Discover(ctx)
		if err != nil {
			return nil, mapCameraError(err)
		}
		return &models.DiscoverResponse{Body: models.DiscoverData{Cameras: n}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-camera",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{camera_id}",
		Summary:     "Get Camera",
		Description: "Get the status of a camera",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.CameraPath) (*models.CameraResponse, error) {
		return s.cameraStatus(input.CameraID, nil)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "switch-recording",
		Method:      http.MethodPost,
		Path:        "/api/cameras/{camera_id}/recording",
		Summary:     "Switch Recording",
		Description: "Start the stream and live preview, or stop them. Stopping disarms a pending trigger.",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404, 409, 502},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.CameraPath) (*models.CameraResponse, error) {
		return s.cameraStatus(input.CameraID, func(c *camera.Controller) error {
			return c.SwitchRecording(ctx)
		})
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "switch-trigger",
		Method:      http.MethodPost,
		Path:        "/api/cameras/{camera_id}/trigger",
		Summary:     "Switch Trigger",
		Description: "Arm the camera for a burst, or disarm it when already armed. Requires a running stream.",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404, 409},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.TriggerRequest) (*models.CameraResponse, error) {
		return s.cameraStatus(input.CameraID, func(c *camera.Controller) error {
			source := ""
			if input.Body != nil {
				source = input.Body.Source
			}
			return c.SwitchTrigger(ctx, source)
		})
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "apply-settings",
		Method:      http.MethodPut,
		Path:        "/api/cameras/{camera_id}/settings",
		Summary:     "Apply Settings",
		Description: "Store the acquisition settings as the trigger preset and derive the preview presets from them",
		Tags:        []string{"cameras"},
		Errors:      []int{400, 401, 404, 409},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.SettingsRequest) (*models.SettingsResponse, error) {
		var resp models.SettingsResponse
		err := s.coord.Dispatch(input.CameraID, func(c *camera.Controller) error {
			fps, err := c.ApplySettings(ctx, input.Body)
			resp.Body.AchievedFrameRate = fps
			return err
		})
		return settingsResult(&resp, err)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-transform",
		Method:      http.MethodPost,
		Path:        "/api/cameras/{camera_id}/transform",
		Summary:     "Toggle Transform",
		Description: "Rotate the image by 90 degrees or toggle a flip or the crosshair",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404, 422},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.TransformRequest) (*models.TransformResponse, error) {
		var resp models.TransformResponse
		err := s.coord.Dispatch(input.CameraID, func(c *camera.Controller) error {
			switch input.Body.Action {
			case "rotate_left":
				c.RotateLeft()
			case "rotate_right":
				c.RotateRight()
			case "flip_h":
				c.ToggleFlipH()
			case "flip_v":
				c.ToggleFlipV()
			case "crosshair":
				c.ToggleCrosshair()
			}
			resp.Body = c.Transform()
			return nil
		})
		if err != nil {
			return nil, mapCameraError(err)
		}
		return &resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "balance-white",
		Method:      http.MethodPost,
		Path:        "/api/cameras/{camera_id}/white-balance",
		Summary:     "Balance White Once",
		Description: "Run one automatic white balance pass on a colour camera",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404, 409, 502},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.CameraPath) (*models.CameraResponse, error) {
		return s.cameraStatus(input.CameraID, func(c *camera.Controller) error {
			return c.BalanceWhiteOnce()
		})
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-color",
		Method:      http.MethodPut,
		Path:        "/api/cameras/{camera_id}/color",
		Summary:     "Set Colour Mode",
		Description: "Convert frames to RGB or to Mono8",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404, 409},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.ColorRequest) (*models.CameraResponse, error) {
		return s.cameraStatus(input.CameraID, func(c *camera.Controller) error {
			return c.SetColorMode(input.Body.Color)
		})
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "close-camera",
		Method:      http.MethodDelete,
		Path:        "/api/cameras/{camera_id}",
		Summary:     "Close Camera",
		Description: "Disarm and close a camera and release its device. Discover opens it again.",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.CameraPath) (*struct{}, error) {
		if err := s.coord.Remove(ctx, input.CameraID); err != nil {
			return nil, mapCameraError(err)
		}
		return &struct{}{}, nil
	})
}

// cameraStatus runs op, if any, and returns the resulting camera status.
func (s *Server) cameraStatus(id string, op func(*camera.Controller) error) (*models.CameraResponse, error) {
	var resp models.CameraResponse
	err := s.coord.Dispatch(id, func(c *camera.Controller) error {
		if op != nil {
			if err := op(c); err != nil {
				return err
			}
		}
		resp.Body = c.Status()
		return nil
	})
	if err != nil {
		return nil, mapCameraError(err)
	}
	return &resp, nil
}

// settingsResult reports device errors as a partial success, since the
// controller keeps the new presets and stays usable.
func settingsResult(resp *models.SettingsResponse, err error) (*models.SettingsResponse, error) {
	if err == nil {
		return resp, nil
	}
	var commErr *device.CommunicationError
	if errors.As(err, &commErr) {
		resp.Body.Error = err.Error()
		return resp, nil
	}
	return nil, mapCameraError(err)
}
