// Package token hashes opaque bearer secrets for server-side storage.
//
// Refresh tokens are never stored in the clear. A Hasher keyed with
// EUCL_TOKEN_HMAC_KEY produces HMAC-SHA256 digests; without a key it
// falls back to plain SHA-256, which is acceptable for development only.
// Output is always 64 lowercase hex characters.
package token
