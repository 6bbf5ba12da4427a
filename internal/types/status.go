package types

// Status is a type for the lifecycle status of a resource in the datastore.
// Queries exclude anything that is not published unless a filter says otherwise.
type Status string

const (
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
	StatusDeleted   Status = "deleted"
)
