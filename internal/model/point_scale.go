package model

// PointScaleEntry maps a bug size to its base point value.  The table
// holds exactly one row per size and is only read by the award workflow.
type PointScaleEntry struct {
	Size  BugSize `json:"size"`  // point_scale.size
	Value int     `json:"value"` // point_scale.value
}
