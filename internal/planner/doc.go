// Package planner holds the data side of a working-directory merge plan.
//
// A Plan is an ordered list of primitive steps that turns the current working
// directory into a merge result. Steps are plain data with no live handles, so
// a plan can be previewed, saved and loaded again without touching disk.
// Statistics accumulate as steps are added, independent of execution.
//
// Key components:
//   - Step: sealed set of step kinds (Move, Remove, AddNew, Unadd, GetFromRepo, Alter)
//   - Plan / Stats: ordered steps with running counts
//   - Issue: a recorded conflict the user can mark resolved
//   - Marshal / Unmarshal: ordered YAML records for saved plans
//   - Report: human-readable preview
package planner
