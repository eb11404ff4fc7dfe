// Package auth resolves inbound credentials into a core.ActorContext.
//
// Two schemes are supported. Static API keys have the form "<id>.<secret>"
// and are verified against a bcrypt hash kept in a core.APIKeyStore. Bearer
// tokens are HS256 JWTs whose claims carry the acting user, role,
// organization, client and warehouse. Chain tries the API key first and only
// decodes a bearer token when no key was presented.
package auth
