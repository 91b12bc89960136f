// Package update keeps the external tool current.
//
// A Coordinator runs at most one check-and-download cycle at a time:
//
//	no-update|done --start--> prechecking --newer--> downloading --installed--> done
//	prechecking --not newer--> no-update
//	any failure --> no-update
//
// The release record on disk only ever describes a fully installed binary.
// Releases are compared by publication time alone; assets are not signed or
// verified.
package update
