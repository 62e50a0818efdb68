// Package page holds the pure normalization steps applied to a submitted page
// before it is archived: URL canonicalization, resource absolutization, and
// metadata plus filename derivation. Nothing here performs I/O.
package page
