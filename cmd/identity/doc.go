// Package identity owns eucl's principals: customers and administrators.
//
// It stores users with their role sets, hashes and checks passwords through
// a pluggable PasswordHasher, and answers the two questions the session
// layer asks: "do these credentials match a user?" and "what roles does
// this user hold right now?".
package identity
