// Package state persists the working copy's own record of itself.
//
// The working state names the parent versions the working directory was last
// synchronized to, the entries it tracks (identity, location, content and
// attributes as last written or committed), and the unresolved issues left by
// the last merge. It is stored as JSON in .wcmerge/state.json and written
// atomically.
//
// Key concepts:
//   - WorkingState: parents, tracked entries and issues
//   - TrackedEntry: an entry plus its pending-add flag
//   - StateStore: interface for loading and saving the working state
//   - Lock: advisory lock held by mutating commands
package state
