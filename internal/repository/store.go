package repository

// Store combines an organization repository with a revocation repository so
// that revocations can live in a different backend than tenant data.
type Store struct {
	OrganizationRepository
	RevocationRepository
}

var _ AuthenticationStore = (*Store)(nil)

// NewStore composes the authentication store.
func NewStore(orgs OrganizationRepository, revocations RevocationRepository) *Store {
	return &Store{OrganizationRepository: orgs, RevocationRepository: revocations}
}
