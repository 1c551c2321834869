package identity

// PasswordHasher hashes and verifies account passwords.
// password.Config implements it with Argon2id.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(encoded, plain string) (bool, error)
}

// Rehasher is implemented by hashers that can tell when a stored hash was
// produced with outdated parameters.
type Rehasher interface {
	NeedsRehash(encoded string) bool
}
