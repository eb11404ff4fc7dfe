// Package inbound routes external calls to named server-side actions.
//
// A request moves through a fixed sequence: the action is resolved by name,
// the caller is authenticated, the caller's identity is checked against the
// action's access grants, declared parameters are validated and finally the
// action handler is invoked. Every failure maps to one HTTP status through
// StatusCode; transports such as adapters/fiber only translate requests and
// responses.
package inbound
