package catalog

// Optional is an edit to a nullable field: leave it alone, clear it, or set it.
// The zero value leaves the field alone.
type Optional[T any] struct {
	state optionalState
	value T
}

type optionalState uint8

const (
	optionalUnset optionalState = iota
	optionalClear
	optionalSet
)

// Unset leaves the field unchanged
func Unset[T any]() Optional[T] { return Optional[T]{} }

// Clear sets the field to null
func Clear[T any]() Optional[T] { return Optional[T]{state: optionalClear} }

// Set sets the field to v
func Set[T any](v T) Optional[T] { return Optional[T]{state: optionalSet, value: v} }

// FromPointer maps nil to Clear and anything else to Set
func FromPointer[T any](v *T) Optional[T] {
	if v == nil {
		return Clear[T]()
	}
	return Set(*v)
}

// Supplied reports whether the field should be written
func (o Optional[T]) Supplied() bool { return o.state != optionalUnset }

// IsClear reports whether the field should become null
func (o Optional[T]) IsClear() bool { return o.state == optionalClear }

// Value returns the new value and whether one was set
func (o Optional[T]) Value() (T, bool) { return o.value, o.state == optionalSet }

// arg is the database argument for a supplied edit: nil when cleared
func (o Optional[T]) arg() any {
	if o.state == optionalSet {
		return o.value
	}
	return nil
}
