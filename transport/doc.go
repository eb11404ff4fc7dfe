// Package transport delivers rendered webhook payloads.
//
// The Dispatcher implements core.Sender: it substitutes URL path parameters,
// applies header parameters, renders the template tree into JSON or XML and
// hands the request to the adapter registered for the URL scheme. Responses
// with 4xx or 5xx status codes are reported, not treated as failures.
package transport
