package ecs

// UpdateFrame carries one frame's context through every system: the elapsed
// time in seconds, the shared command buffer flushed at barriers, and the
// storage itself for random access.
type UpdateFrame struct {
	DeltaTime float64
	Commands  *Commands
	Storage   *Storage
}

func newUpdateFrame(dt float64, storage *Storage) *UpdateFrame {
	return &UpdateFrame{
		DeltaTime: dt,
		Commands:  newCommands(),
		Storage:   storage,
	}
}
