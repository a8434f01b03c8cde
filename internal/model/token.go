package model

// TokenManager signs and validates session tokens carrying an identity.
type TokenManager interface {
	Issue(identity Identity) (token string, issued Identity, err error)
	Parse(token string) (Identity, error)
}
