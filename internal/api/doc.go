// Package api exposes a read-only HTTP view of the addon loader: the outcome
// journal, the attached node tree and the metrics endpoint.
package api
