package models

// Group represents a set of participants with a shared expense history.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string

	// Name is the display name of the group (e.g., "Roommates", "Ski Trip").
	Name string

	// Currency is the display currency code for the group (e.g., "USD").
	// Informational only: the engine works in minor units and performs no
	// conversion.
	Currency string

	// Members is the ordered list of participant ids in this group.
	Members []string

	// CreatedAt is the Unix timestamp when the group was created.
	CreatedAt int64
}
