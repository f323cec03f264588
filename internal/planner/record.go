package planner

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/danieljhkim/wcmerge/internal/repo"
)

// record is the saved form of a step: a kind plus the fixed fields of that
// kind.
type record struct {
	Kind       StepKind    `yaml:"kind"`
	ID         string      `yaml:"id,omitempty"`
	From       string      `yaml:"from,omitempty"`
	To         string      `yaml:"to,omitempty"`
	ParentID   string      `yaml:"parent,omitempty"`
	Name       string      `yaml:"name,omitempty"`
	Path       string      `yaml:"path,omitempty"`
	IsDir      bool        `yaml:"dir,omitempty"`
	Parking    Parking     `yaml:"parking,omitempty"`
	EntryKind  repo.Kind   `yaml:"entry_kind,omitempty"`
	Entry      *repo.Entry `yaml:"entry,omitempty"`
	Content    bool        `yaml:"content,omitempty"`
	Attrs      bool        `yaml:"attrs,omitempty"`
	Merged     bool        `yaml:"merged,omitempty"`
	Conflicted bool        `yaml:"conflicted,omitempty"`
	Reason     string      `yaml:"reason,omitempty"`
}

type document struct {
	Version    int      `yaml:"version"`
	Session    string   `yaml:"session"`
	ParkingLot string   `yaml:"parking_lot"`
	Baseline   string   `yaml:"baseline,omitempty"`
	Parents    []string `yaml:"parents"`
	Steps      []record `yaml:"steps"`
	Issues     []Issue  `yaml:"issues,omitempty"`
	Warnings   []string `yaml:"warnings,omitempty"`
}

const documentVersion = 1

func toRecord(s Step) record {
	switch s := s.(type) {
	case Move:
		return record{Kind: KindMove, ID: s.ID, From: s.From, To: s.To, ParentID: s.ParentID, Name: s.Name,
			IsDir: s.IsDir, Parking: s.Parking, Reason: s.Reason}
	case Remove:
		return record{Kind: KindRemove, ID: s.ID, Path: s.Path, EntryKind: s.EntryKind, Reason: s.Reason}
	case AddNew:
		e := s.Entry.Clone()
		return record{Kind: KindAddNew, Entry: &e, Path: s.Path, Reason: s.Reason}
	case Unadd:
		return record{Kind: KindUnadd, ID: s.ID, Path: s.Path, Reason: s.Reason}
	case GetFromRepo:
		e := s.Entry.Clone()
		return record{Kind: KindGetFromRepo, Entry: &e, Path: s.Path, Reason: s.Reason}
	case Alter:
		e := s.Entry.Clone()
		return record{Kind: KindAlter, Entry: &e, Path: s.Path, Content: s.Content, Attrs: s.Attrs,
			Merged: s.Merged, Conflicted: s.Conflicted, Reason: s.Reason}
	default:
		panic(fmt.Sprintf("planner: unknown step type %T", s))
	}
}

func fromRecord(i int, r record) (Step, error) {
	needEntry := func() (repo.Entry, error) {
		if r.Entry == nil {
			return repo.Entry{}, fmt.Errorf("step %d (%s): missing entry", i, r.Kind)
		}
		return *r.Entry, nil
	}

	switch r.Kind {
	case KindMove:
		return Move{ID: r.ID, From: r.From, To: r.To, ParentID: r.ParentID, Name: r.Name,
			IsDir: r.IsDir, Parking: r.Parking, Reason: r.Reason}, nil
	case KindRemove:
		return Remove{ID: r.ID, Path: r.Path, EntryKind: r.EntryKind, Reason: r.Reason}, nil
	case KindAddNew:
		e, err := needEntry()
		if err != nil {
			return nil, err
		}
		return AddNew{Entry: e, Path: r.Path, Reason: r.Reason}, nil
	case KindUnadd:
		return Unadd{ID: r.ID, Path: r.Path, Reason: r.Reason}, nil
	case KindGetFromRepo:
		e, err := needEntry()
		if err != nil {
			return nil, err
		}
		return GetFromRepo{Entry: e, Path: r.Path, Reason: r.Reason}, nil
	case KindAlter:
		e, err := needEntry()
		if err != nil {
			return nil, err
		}
		return Alter{Entry: e, Path: r.Path, Content: r.Content, Attrs: r.Attrs,
			Merged: r.Merged, Conflicted: r.Conflicted, Reason: r.Reason}, nil
	default:
		return nil, fmt.Errorf("step %d: unknown kind %q", i, r.Kind)
	}
}

// Marshal encodes a plan as an ordered list of YAML records.
func Marshal(p *Plan) ([]byte, error) {
	doc := document{
		Version:    documentVersion,
		Session:    p.Session,
		ParkingLot: p.ParkingLot,
		Baseline:   p.Baseline,
		Parents:    p.Parents,
		Issues:     p.Issues,
		Warnings:   p.Warnings,
	}
	for _, s := range p.Steps {
		doc.Steps = append(doc.Steps, toRecord(s))
	}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode plan: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a saved plan for review. Statistics are recomputed from
// the steps. A decoded plan carries no session, so it cannot be applied.
func Unmarshal(data []byte) (*Plan, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}
	if doc.Version != documentVersion {
		return nil, fmt.Errorf("unsupported plan version %d", doc.Version)
	}

	p := NewPlan(doc.Session, doc.ParkingLot)
	p.Baseline = doc.Baseline
	p.Parents = doc.Parents
	p.Warnings = doc.Warnings
	if doc.Issues != nil {
		p.Issues = doc.Issues
	}
	for i, r := range doc.Steps {
		s, err := fromRecord(i, r)
		if err != nil {
			return nil, err
		}
		p.Add(s)
	}
	return p, nil
}
