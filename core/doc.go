// Package core contains the webhook dispatch domain: definitions, the template
// resolution engine, the durable dispatch queue and the service that wires
// them together. Storage, transport and HTTP adapters depend on this package;
// core must not depend on them.
package core
