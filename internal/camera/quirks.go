package camera

import "slices"

// Quirks lists per-family device workarounds. Families are the values
// returned by device.Family, e.g. "MER" or "MER2".
type Quirks struct {
	// TriggerOffAfterFirstFrame disables trigger mode once the first frame
	// of an externally triggered burst arrives.
	TriggerOffAfterFirstFrame []string `toml:"trigger_off_after_first_frame"`
	// LegacyFamilies lack the burst trigger selector, the burst frame count,
	// and the exposure time mode.
	LegacyFamilies []string `toml:"legacy_families"`
}

// DefaultQuirks returns the workarounds known for first generation MER cameras.
func DefaultQuirks() Quirks {
	return Quirks{
		TriggerOffAfterFirstFrame: []string{"MER"},
		LegacyFamilies:            []string{"MER"},
	}
}

func (q Quirks) triggerOffAfterFirstFrame(family string) bool {
	return slices.Contains(q.TriggerOffAfterFirstFrame, family)
}

func (q Quirks) legacy(family string) bool {
	return slices.Contains(q.LegacyFamilies, family)
}
