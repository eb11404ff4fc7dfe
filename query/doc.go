// Package query exposes read-only webhook operations as go-command queriers.
package query
