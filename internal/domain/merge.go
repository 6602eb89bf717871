package domain

// MergeStatus tracks the lifecycle of a single merge attempt.
// It transitions monotonically Idle -> Pending -> Success|Error for one
// attempt, then resets to Idle on request.
type MergeStatus string

const (
	MergeIdle    MergeStatus = "IDLE"
	MergePending MergeStatus = "PENDING"
	MergeSuccess MergeStatus = "SUCCESS"
	MergeError   MergeStatus = "ERROR"
)

func (s MergeStatus) IsTerminal() bool {
	return s == MergeSuccess || s == MergeError
}

func (s MergeStatus) String() string {
	return string(s)
}

// Collection distinguishes the two independently merged item collections.
type Collection string

const (
	CollectionCart     Collection = "cart"
	CollectionWishlist Collection = "wishlist"
)

// Mode says which replica is authoritative for reads and mutations.
type Mode string

const (
	// ModeGuest: unauthenticated, the local replica is authoritative.
	ModeGuest Mode = "GUEST"
	// ModeAccount: authenticated, the server-held replica is authoritative.
	ModeAccount Mode = "ACCOUNT"
)
