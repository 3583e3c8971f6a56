package debugui

import (
	"github.com/plus3/scenetree/ecs"
)

type HierarchyBrowserComponent struct {
	selected   *ecs.EntityRef
	filterText string
	showFrozen bool
}

type MatrixInspectorComponent struct {
	selected *ecs.EntityRef
}

type PerformanceStatsComponent struct {
	historyFrames int
	frameHistory  []float32
	frameIndex    int
}
