package grid

// Linked is a block together with the blocks it is currently connected to.
type Linked[T any] struct {
	Block Block[T]
	Links []Block[T]
}

// Predicate decides whether two touching blocks belong to the same group. It is
// evaluated from the perspective of the block being inserted but must be
// symmetric.
type Predicate[T any] interface {
	Group(a, b Linked[T]) bool
}

// PredicateFunc adapts a function to the Predicate interface.
type PredicateFunc[T any] func(a, b Linked[T]) bool

func (f PredicateFunc[T]) Group(a, b Linked[T]) bool {
	return f(a, b)
}

type always[T any] struct{}

func (always[T]) Group(_, _ Linked[T]) bool { return true }

type single[T any] struct{}

func (single[T]) Group(_, _ Linked[T]) bool { return false }

// Always fuses any touching blocks, e.g. the pixel canvases of one picture.
func Always[T any]() Predicate[T] {
	return always[T]{}
}

// Single never fuses blocks. Blocks stay individually addressable by position,
// which suits point-like markers that are looked up by proximity.
func Single[T any]() Predicate[T] {
	return single[T]{}
}
