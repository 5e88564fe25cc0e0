package domain

// Brand is immutable after creation.
type Brand struct {
	ID   int64
	Name string
}
