package api

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/burstcam/internal/camera"
	"github.com/smazurov/burstcam/internal/coordinator"
	"github.com/smazurov/burstcam/internal/device"
	"github.com/smazurov/burstcam/internal/preset"
)

// mapCameraError maps domain errors to HTTP errors
func mapCameraError(err error) error {
	var camErr *camera.Error
	if errors.As(err, &camErr) {
		switch camErr.Code {
		case camera.ErrCodeUnknownCamera, coordinator.ErrCodeNoBurst:
			return huma.Error404NotFound(camErr.Message, err)
		case camera.ErrCodeNotStreaming, camera.ErrCodeBusy, camera.ErrCodeClosed, camera.ErrCodeUnsupported:
			return huma.Error409Conflict(camErr.Message, err)
		case coordinator.ErrCodeInvalidBurst:
			return huma.Error400BadRequest(camErr.Message, err)
		}
	}

	var presetErr *preset.UnknownPresetError
	if errors.As(err, &presetErr) {
		return huma.Error404NotFound(presetErr.Error(), err)
	}

	var commErr *device.CommunicationError
	if errors.As(err, &commErr) {
		return huma.Error502BadGateway("camera communication failed", err)
	}

	return huma.Error500InternalServerError("internal server error", err)
}
