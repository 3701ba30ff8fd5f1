package transit

import (
	"fmt"
	"strings"
)

// Display is the presentation form of an Estimate.
type Display struct {
	TimeText   string `json:"time_text"`
	RouteText  string `json:"route_text"`
	DetailText string `json:"detail_text"`
}

// Display renders e for the UI, e.g. {"42 min", "7 → 22", "1 transfer · 8 min walk"}.
func (e Estimate) Display() Display {
	d := Display{
		TimeText:  fmt.Sprintf("%d min", e.DurationMinutes),
		RouteText: e.RouteLabel,
	}
	if len(e.Legs) == 0 || d.RouteText == "" {
		d.RouteText = "Walk"
	}

	var parts []string
	switch {
	case len(e.Legs) == 0:
	case e.TransferCount == 0:
		parts = append(parts, "Direct")
	case e.TransferCount == 1:
		parts = append(parts, "1 transfer")
	default:
		parts = append(parts, fmt.Sprintf("%d transfers", e.TransferCount))
	}
	if e.WalkingMinutes > 0 {
		parts = append(parts, fmt.Sprintf("%d min walk", e.WalkingMinutes))
	}
	if e.Estimated() {
		parts = append(parts, "estimated")
	}
	d.DetailText = strings.Join(parts, " · ")
	return d
}
