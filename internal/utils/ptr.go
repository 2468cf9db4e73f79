package utils

func Ptr[T any](v T) *T {
	return &v
}

// Or dereferences v, falling back when it is nil.
func Or[T any](v *T, fallback T) T {
	if v == nil {
		return fallback
	}
	return *v
}
