// Package api exposes the eucl auth endpoints over net/http and provides
// the middleware that gates every other route on a verified access
// credential.
package api
