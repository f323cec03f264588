package planner

import (
	"fmt"
	"strings"
)

// IssueKind classifies a conflict.
type IssueKind string

const (
	// IssueDivergentMove: sides moved or renamed the entry differently.
	IssueDivergentMove IssueKind = "divergent-move"

	// IssueDivergentContent: sides edited the content and the merge conflicted.
	IssueDivergentContent IssueKind = "divergent-content"

	// IssueDivergentAttrs: sides changed attributes differently.
	IssueDivergentAttrs IssueKind = "divergent-attrs"

	// IssueDivergentKind: sides turned the entry into different kinds.
	IssueDivergentKind IssueKind = "divergent-kind"

	// IssueDeleteModify: one side deleted the entry while another changed it.
	IssueDeleteModify IssueKind = "delete-modify"

	// IssueCollision: two entries ended up with one name and one was renamed.
	IssueCollision IssueKind = "collision"

	// IssueOrphan: an entry's parent directory was deleted and was restored.
	IssueOrphan IssueKind = "orphan"

	// IssueMoveCycle: directory moves formed a cycle and were reverted.
	IssueMoveCycle IssueKind = "move-cycle"
)

// Candidate is one side's value in a conflict.
type Candidate struct {
	Side  string `json:"side" yaml:"side"`
	Value string `json:"value" yaml:"value"`
}

// Issue is one conflict recorded by a merge. The merge always picks a value
// and carries on; Chosen records which.
type Issue struct {
	Kind       IssueKind   `json:"kind" yaml:"kind"`
	EntryID    string      `json:"entry" yaml:"entry"`
	Path       string      `json:"path" yaml:"path"`
	Candidates []Candidate `json:"candidates,omitempty" yaml:"candidates,omitempty"`
	Chosen     string      `json:"chosen,omitempty" yaml:"chosen,omitempty"`
	Detail     string      `json:"detail,omitempty" yaml:"detail,omitempty"`
	Resolved   bool        `json:"resolved" yaml:"resolved"`
}

func (is Issue) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", is.Kind, is.Path)
	if len(is.Candidates) > 0 {
		parts := make([]string, len(is.Candidates))
		for i, c := range is.Candidates {
			parts[i] = fmt.Sprintf("%s=%s", c.Side, c.Value)
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(parts, ", "))
	}
	if is.Chosen != "" {
		fmt.Fprintf(&b, " -> %s", is.Chosen)
	}
	if is.Detail != "" {
		fmt.Fprintf(&b, " (%s)", is.Detail)
	}
	return b.String()
}

// Unresolved filters out resolved issues.
func Unresolved(issues []Issue) []Issue {
	var out []Issue
	for _, is := range issues {
		if !is.Resolved {
			out = append(out, is)
		}
	}
	return out
}
