// Package jwt signs and verifies the session tokens the identity provider stores in
// a device's shared storage. A token names the provider-side session record (sid)
// and its user (uid); the record itself stays authoritative.
package jwt
