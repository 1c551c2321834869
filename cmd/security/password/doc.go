// Package password hashes and verifies account passwords with Argon2id.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
//
// Encoded hashes are untrusted input on Verify. Parameters far above the
// configured cost are refused so a tampered row cannot pin a CPU.
package password
