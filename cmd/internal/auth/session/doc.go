// Package session verifies the PASETO v4.public access tokens minted by the external
// authentication system. Only the public key is required; a secret key lets tests and
// local setups mint tokens.
package session
