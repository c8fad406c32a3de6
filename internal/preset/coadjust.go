package preset

// Axis describes one sensor dimension.
type Axis struct {
	SensorMax int
	MinSize   int
}

// Sensor holds both sensor axes of a camera.
type Sensor struct {
	Width  Axis
	Height Axis
}

// Member identifies which half of a (size, offset) pair was edited.
type Member int

const (
	SizeMember Member = iota
	OffsetMember
)

// AdjustedMax is the largest value the partner of dimension may take.
func AdjustedMax(dimension, sensorMax int) int {
	return sensorMax - dimension
}

// CoAdjust keeps size+offset within the sensor. The changed member is clamped
// to its own legal range first, then the other member is clamped into
// [0, AdjustedMax(changed)].
func CoAdjust(size, offset int, axis Axis, changed Member) (int, int) {
	switch changed {
	case SizeMember:
		size = clamp(size, axis.MinSize, axis.SensorMax)
		offset = clamp(offset, 0, AdjustedMax(size, axis.SensorMax))
	case OffsetMember:
		offset = clamp(offset, 0, axis.SensorMax-axis.MinSize)
		size = clamp(size, axis.MinSize, AdjustedMax(offset, axis.SensorMax))
	}
	return size, offset
}

// Adjust sets one of width, height, offsetX, offsetY and co-adjusts its partner.
// Other parameters are assigned unchanged.
func (p *Preset) Adjust(param string, value float64, s Sensor) error {
	if err := p.Set(param, value); err != nil {
		return err
	}
	switch param {
	case ParamWidth:
		p.Width, p.OffsetX = CoAdjust(p.Width, p.OffsetX, s.Width, SizeMember)
	case ParamOffsetX:
		p.Width, p.OffsetX = CoAdjust(p.Width, p.OffsetX, s.Width, OffsetMember)
	case ParamHeight:
		p.Height, p.OffsetY = CoAdjust(p.Height, p.OffsetY, s.Height, SizeMember)
	case ParamOffsetY:
		p.Height, p.OffsetY = CoAdjust(p.Height, p.OffsetY, s.Height, OffsetMember)
	}
	return nil
}

// Constrain returns p with both ROI pairs inside the sensor, sizes taking priority.
func (p Preset) Constrain(s Sensor) Preset {
	p.Width, p.OffsetX = CoAdjust(p.Width, p.OffsetX, s.Width, SizeMember)
	p.Height, p.OffsetY = CoAdjust(p.Height, p.OffsetY, s.Height, SizeMember)
	return p
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	return max(lo, min(v, hi))
}
