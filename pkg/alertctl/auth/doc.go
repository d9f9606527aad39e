// Package auth signs a user into the identity provider with email and
// password and trades the resulting access token for a backend token.
//
// The flow mimics what the browser does against the provider's interaction
// API: authorization request with PKCE, sign-in interaction, optional consent,
// authorization code capture from the redirect, code exchange at the token
// endpoint and finally the backend exchange. All calls of one attempt share a
// cookie jar and never follow redirects.
package auth
