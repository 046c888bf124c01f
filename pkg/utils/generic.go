package utils

// Ptr returns a pointer to a copy of v, handy for populating the many
// optional *string/*bool fields in the A2A data model from a plain value.
func Ptr[T any](v T) *T {
	return &v
}
