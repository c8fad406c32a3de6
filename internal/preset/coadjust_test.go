package preset

import "testing"

var testSensor = Sensor{
	Width:  Axis{SensorMax: 1440, MinSize: 16},
	Height: Axis{SensorMax: 1080, MinSize: 2},
}

func TestAdjustedMax(t *testing.T) {
	if got := AdjustedMax(1000, 1440); got != 440 {
		t.Errorf("AdjustedMax(1000, 1440) = %d, want 440", got)
	}
}

func TestWidthThenOffsetCoAdjustment(t *testing.T) {
	p := Preset{Width: 1440, OffsetX: 0}

	if err := p.Adjust(ParamWidth, 1000, testSensor); err != nil {
		t.Fatal(err)
	}
	if p.OffsetX > 440 {
		t.Errorf("offsetX = %d, want <= 440", p.OffsetX)
	}

	if err := p.Adjust(ParamOffsetX, 500, testSensor); err != nil {
		t.Fatal(err)
	}
	if p.OffsetX != 500 {
		t.Errorf("offsetX = %d, want 500", p.OffsetX)
	}
	if p.Width > 940 {
		t.Errorf("width = %d, want <= 940", p.Width)
	}
}

func TestCoAdjustClampsExistingOffset(t *testing.T) {
	size, offset := CoAdjust(1000, 700, testSensor.Width, SizeMember)
	if size != 1000 || offset != 440 {
		t.Errorf("CoAdjust = (%d, %d), want (1000, 440)", size, offset)
	}
}

func TestCoAdjustTable(t *testing.T) {
	axis := Axis{SensorMax: 100, MinSize: 10}
	tests := []struct {
		name         string
		size, offset int
		changed      Member
		wantSize     int
		wantOffset   int
	}{
		{"size fits", 50, 20, SizeMember, 50, 20},
		{"size too big", 150, 20, SizeMember, 100, 0},
		{"size below min", 2, 0, SizeMember, 10, 0},
		{"offset pushes size", 80, 40, OffsetMember, 60, 40},
		{"offset beyond sensor", 80, 200, OffsetMember, 10, 90},
		{"negative offset", 50, -5, OffsetMember, 50, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, offset := CoAdjust(tt.size, tt.offset, axis, tt.changed)
			if size != tt.wantSize || offset != tt.wantOffset {
				t.Errorf("CoAdjust(%d, %d) = (%d, %d), want (%d, %d)",
					tt.size, tt.offset, size, offset, tt.wantSize, tt.wantOffset)
			}
		})
	}
}

func TestConstrainKeepsInvariant(t *testing.T) {
	p := Preset{Width: 1200, OffsetX: 600, Height: 1080, OffsetY: 50}.Constrain(testSensor)
	if p.OffsetX+p.Width > 1440 {
		t.Errorf("offsetX+width = %d exceeds sensor", p.OffsetX+p.Width)
	}
	if p.OffsetY+p.Height > 1080 {
		t.Errorf("offsetY+height = %d exceeds sensor", p.OffsetY+p.Height)
	}
}
