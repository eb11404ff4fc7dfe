// Package command exposes the mutating webhook operations as go-command
// commanders. Results are stored in the gocmd result collector carried by
// the context when one is present.
package command
