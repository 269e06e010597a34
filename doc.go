// Package accounts provides the account lifecycle for web applications built
// on go-router: credential login, signup with email confirmation, password
// change/recovery through single-use keys, JWT issuance, and OAuth sign-in.
//
// The package is organized around a small set of collaborators:
//
//   - Backend implements the authentication business rules (credential
//     verification, user creation, auth key issuance and consumption) over a
//     RepositoryManager backed by Bun repositories.
//   - Sessions binds authenticated users to a signed cookie and resolves the
//     per-request RequestContext that handlers receive.
//   - AuthController maps HTTP routes to form validation plus exactly one
//     Backend operation per request, rendering JSON or redirects.
//   - TokenMinter signs compact {username, application} claims for API
//     consumers. Expiry is caller-configurable, not enforced by default.
//
// OAuth providers live in the oauth subpackage; CSRF and bearer-token
// middleware live under middleware/.
package accounts
