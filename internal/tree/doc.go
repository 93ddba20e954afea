// Package tree implements structural editing of a page's component tree.
//
// A Tree owns the forest of root nodes for one page and an id index over
// every node in it. All operations address nodes by their immutable id;
// there is no positional addressing. The page id stands in as the parent of
// root nodes, so inserting "inside" the page adds a root.
//
// Every operation checks all of its preconditions before mutating. A
// rejected Insert, Move, Remove or Update leaves the tree exactly as it was.
//
// Sibling order keys keep their gaps. A node placed between two siblings
// takes the midpoint of their orders; only when no integer gap remains are
// the siblings renumbered with a fixed step, and the renumbered ids are
// reported back in the Placement so callers can persist them.
//
// Tree is not safe for concurrent use. One editing session owns one tree.
package tree
