package ecs_test

import "github.com/plus3/scenetree/ecs"

// Common test component types
type Translation struct {
	X, Y, Z float32
}

type Spin struct {
	Speed float32
}

type Label struct {
	Value string
}

type Lifetime struct {
	Remaining float64
	Total     float64
}

type Culled struct{}

type Billboard struct {
	Locked bool
}

// Custom primitive types for testing non-pointer components
type Layer int32
type NodeName string
type Opacity float64

type BoneWeights struct {
	Values []float32
}

type Metadata struct {
	Fields map[string]string
}

type TargetNode struct {
	Node *Translation
}

func newTestRegistry() *ecs.ComponentRegistry {
	registry := ecs.NewComponentRegistry()
	ecs.RegisterComponent[Translation](registry)
	ecs.RegisterComponent[Spin](registry)
	ecs.RegisterComponent[Label](registry)
	ecs.RegisterComponent[Lifetime](registry)
	ecs.RegisterComponent[Culled](registry)
	ecs.RegisterComponent[Billboard](registry)
	ecs.RegisterComponent[Layer](registry)
	ecs.RegisterComponent[NodeName](registry)
	ecs.RegisterComponent[Opacity](registry)
	ecs.RegisterComponent[BoneWeights](registry)
	ecs.RegisterComponent[Metadata](registry)
	ecs.RegisterComponent[TargetNode](registry)
	return registry
}

func ptr[T any](v T) *T {
	return &v
}
