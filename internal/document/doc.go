// Package document converts component trees to and from the portable JSON
// form used for import, export and external generators.
//
// A document is a JSON array of nodes. Each node is an object with "id",
// "type", its props lifted to the top level, and "children" present exactly
// when the node is a container:
//
//	[
//	  {"id": "c1", "type": "column", "gap": 4, "children": [
//	    {"id": "h1", "type": "heading", "text": "Welcome"}
//	  ]}
//	]
//
// Because "id", "type" and "children" are structural, they can never be
// props.
package document
