package models

// Query carries the pagination and filter fields shared by metadata and
// user listings. A zero Limit means unlimited at the store level; the
// HTTP layer defaults an absent limit to 10 before it gets here.
type Query struct {
	Offset uint64
	Limit  uint64

	// Search is a substring match: against summary for blobs, against
	// name for users.
	Search string

	// UpdateAfter/UpdateBefore bound update_time (unix seconds);
	// zero means unbounded.
	UpdateAfter  int64
	UpdateBefore int64
}

// MetadataQuery filters blob metadata listings.
type MetadataQuery struct {
	// ID selects a single blob when non-zero.
	ID int64

	// Owner restricts results to one user when non-empty.
	Owner string

	// Sha256 selects by digest when non-empty.
	Sha256 string

	// RecycleBefore selects rows with 0 < recycle_time < RecycleBefore.
	// Pinned rows (recycle_time == 0) never match.
	RecycleBefore int64

	Query
}

// UserQuery filters user listings.
type UserQuery struct {
	// Name selects a single user when non-empty.
	Name string

	Query
}
