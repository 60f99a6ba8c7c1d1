// Package engine provides helpers for working with the modernc.org/sqlite
// driver in this module: opening connections and registering the cover tree
// distance primitives as SQL scalar functions.
package engine
