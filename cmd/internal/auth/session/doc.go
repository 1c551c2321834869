// Package session issues, verifies, rotates and revokes eucl's session
// credentials.
//
// A login yields a pair: a short-lived signed access credential (JWT,
// carrying identity id, roles and a unique credential id) and a long-lived
// opaque refresh credential whose hash is stored server-side. Refresh
// rotates the refresh credential single-use. Logout puts the access
// credential's id on a revocation registry until that credential expires.
//
// HTTP transport lives in the auth/api package.
package session
