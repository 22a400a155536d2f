package user

// User identifies whose ledger a request operates on. Identity is asserted by
// the fronting proxy through the X-User-Id header.
type User struct {
	Uid string
}
