// Package ir provides the canonical data model for pagetree.
//
// This package contains type definitions and their serialization only. All
// other internal packages import ir; ir imports nothing internal. This keeps
// the model the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - NO float types in props - use Int (int64) for numbers
//   - Node identity is the ID field, never a position in the tree
//   - All JSON tags use snake_case
//   - Row order is the Order column, never physical storage order
package ir
