package camera

import "github.com/smazurov/burstcam/internal/frame"

// Transform toggles apply to the next decoded frame in both loops.

// RotateLeft rotates frames by +90 degrees and returns the new angle.
func (c *Controller) RotateLeft() int { return c.processor.RotateLeft() }

// RotateRight rotates frames by -90 degrees and returns the new angle.
func (c *Controller) RotateRight() int { return c.processor.RotateRight() }

// ToggleFlipH toggles horizontal mirroring.
func (c *Controller) ToggleFlipH() bool { return c.processor.ToggleFlipH() }

// ToggleFlipV toggles vertical mirroring.
func (c *Controller) ToggleFlipV() bool { return c.processor.ToggleFlipV() }

// ToggleCrosshair toggles the centred crosshair overlay.
func (c *Controller) ToggleCrosshair() bool { return c.processor.ToggleCrosshair() }

// Transform returns the current transform settings.
func (c *Controller) Transform() frame.Transform { return c.processor.Transform() }
