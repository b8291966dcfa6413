package billing

import "context"

// FilingLookup resolves how many billable filing units a filing reference
// represents. The filing system lives outside this service; implementations
// wrap whatever transport it exposes.
type FilingLookup interface {
	UnitCount(ctx context.Context, filingRef string) (int, error)
}

// OwnerContact is the deliverable contact surface for an account owner.
type OwnerContact struct {
	OwnerID string
	Name    string
	Email   string
	Phone   string
}

// OwnerDirectory resolves contact details for notifications. Implementations
// wrap the external account directory.
type OwnerDirectory interface {
	Contact(ctx context.Context, ownerID string) (*OwnerContact, error)
}
