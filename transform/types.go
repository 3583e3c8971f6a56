package transform

import "reflect"

// Component reflect.Types shared by the systems' command calls.
var (
	typeParent        = reflect.TypeFor[Parent]()
	typeAttached      = reflect.TypeFor[Attached]()
	typeDepth         = reflect.TypeFor[Depth]()
	typeLocalToParent = reflect.TypeFor[LocalToParent]()
	typeLocalToWorld  = reflect.TypeFor[LocalToWorld]()
	typePosition      = reflect.TypeFor[Position]()
	typeRotation      = reflect.TypeFor[Rotation]()
	typeScale         = reflect.TypeFor[Scale]()
	typePendingFrozen = reflect.TypeFor[PendingFrozen]()
	typeFrozen        = reflect.TypeFor[Frozen]()
)
