package ecs

import "iter"

// iComponentStorage is an interface for a type-erased component storage.
// Version carries the change-detection stamp for the whole storage block;
// see Storage.Version for the frame counter it is compared against.
type iComponentStorage interface {
	Append(item any) int
	Delete(index int)
	Get(index int) any
	Has(index int) bool
	Compact() map[int]int
	Iter() iter.Seq[int]
	Version() uint32
	Stamp(version uint32)
}
