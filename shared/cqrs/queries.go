package cqrs

// GetBalanceQuery fetches the current balance of a single account.
type GetBalanceQuery struct {
	AccountID string
}

// ListChildrenQuery fetches the child account ids linked to a parent.
type ListChildrenQuery struct {
	ParentID string
}
