package api

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/burstcam/internal/api/models"
	"github.com/smazurov/burstcam/internal/frame"
)

const (
	defaultPreviewQuality = 80
	mjpegBoundary         = "burstcamframe"
)

func (s *Server) previewQuality() int {
	if q := s.options.PreviewQuality; q > 0 && q <= 100 {
		return q
	}
	return defaultPreviewQuality
}

func (s *Server) encodeJPEG(f *frame.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.Image, &jpeg.Options{Quality: s.previewQuality()}); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

// registerPreviewRoutes registers the live preview endpoints
func (s *Server) registerPreviewRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-preview",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{camera_id}/preview.jpg",
		Summary:     "Preview Snapshot",
		Description: "Get the latest preview frame as JPEG",
		Tags:        []string{"preview"},
		Errors:      []int{401, 404, 500},
		Security:    withAuth(),
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Latest frame",
				Content:     map[string]*huma.MediaType{"image/jpeg": {}},
			},
		},
	}, func(ctx context.Context, input *models.CameraPath) (*models.PreviewResponse, error) {
		if _, err := s.coord.Camera(input.CameraID); err != nil {
			return nil, mapCameraError(err)
		}
		f, ok := s.coord.Preview().Latest(input.CameraID)
		if !ok {
			return nil, huma.Error404NotFound("no preview frame yet, start recording first")
		}
		data, err := s.encodeJPEG(f)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to encode preview", err)
		}
		return &models.PreviewResponse{
			ContentType:  "image/jpeg",
			CacheControl: "no-store",
			Body:         data,
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stream-preview",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{camera_id}/preview.mjpeg",
		Summary:     "Preview Stream",
		Description: "Stream preview frames as multipart JPEG until the client disconnects",
		Tags:        []string{"preview"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.CameraPath) (*huma.StreamResponse, error) {
		if _, err := s.coord.Camera(input.CameraID); err != nil {
			return nil, mapCameraError(err)
		}
		frames, unsubscribe := s.coord.Preview().Subscribe(input.CameraID)

		return &huma.StreamResponse{
			Body: func(hctx huma.Context) {
				defer unsubscribe()
				hctx.SetHeader("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
				hctx.SetHeader("Cache-Control", "no-store")
				w := hctx.BodyWriter()
				flusher, _ := w.(http.Flusher)

				for {
					select {
					case <-hctx.Context().Done():
						return
					case f, ok := <-frames:
						if !ok {
							return
						}
						data, err := s.encodeJPEG(f)
						if err != nil {
							s.logger.Warn("Dropping preview frame", "camera", input.CameraID, "error", err)
							continue
						}
						if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(data)); err != nil {
							return
						}
						if _, err := w.Write(append(data, '\r', '\n')); err != nil {
							return
						}
						if flusher != nil {
							flusher.Flush()
						}
					}
				}
			},
		}, nil
	})
}
