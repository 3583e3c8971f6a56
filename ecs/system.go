package ecs

// System represents a behavior that operates on entities with specific components.
// User-defined systems should implement this interface and can include Query fields
// for accessing entities, as well as custom state fields that persist between frames.
//
// A non-nil error aborts the rest of the frame; it is reserved for internal
// consistency failures, not for per-entity conditions.
type System interface {
	Execute(frame *UpdateFrame) error
}
