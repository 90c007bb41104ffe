// Package object provides the object tables of a node: local tables that
// allocate ids and map them to control blocks, and the global table that
// records objects other nodes announced as global.
package object
