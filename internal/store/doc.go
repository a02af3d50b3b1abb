// Package store defines the relational persistence contract for movies and
// their quotes. Implementations live in subpackages; this package must not
// import database drivers or concrete clients.
package store
