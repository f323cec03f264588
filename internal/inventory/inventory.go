// Package inventory indexes the entries of one merge by directory and name.
//
// Every entry identity can be bound twice: once in the source view (where it
// sits on disk before the merge) and once in the target view (where the merge
// result puts it). Each directory keeps one slot per name holding the source
// and target occupant of that name. The index detects two identities claiming
// one name in the same view, finds rename cycles that cannot be applied with
// plain moves, and hands out parking paths for the entries in those cycles.
//
// Entries live in an arena and are referenced by index from the directory
// slots and the per-identity maps. Caller state attached to a binding (Assoc)
// is never inspected by the inventory.
package inventory

import (
	"errors"
	"fmt"
	"path"
	"sort"
)

var (
	// ErrCollision indicates two identities bound to one name in one view.
	ErrCollision = errors.New("name collision")

	// ErrParkingLotNotEmpty indicates parked entries left behind after a
	// successful execution. It is a consistency fault.
	ErrParkingLotNotEmpty = errors.New("parking lot not empty")

	// ErrUnknownEntry indicates an identity that was never bound.
	ErrUnknownEntry = errors.New("unknown entry")
)

// FaultError carries the entry and directory a fault was detected at.
type FaultError struct {
	Entry     string
	Directory string
	Err       error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("entry %s in directory %s: %v", e.Entry, e.Directory, e.Err)
}

func (e *FaultError) Unwrap() error {
	return e.Err
}

// Reason says why an entry is parked.
type Reason int

const (
	NotParked Reason = iota
	// ParkedForSwap marks members of a two-entry rename cycle.
	ParkedForSwap
	// ParkedForCycle marks members of a longer rename cycle.
	ParkedForCycle
	// ParkedForOrder marks entries parked to break a structural deadlock,
	// such as directories moving into each other.
	ParkedForOrder
)

func (r Reason) String() string {
	switch r {
	case NotParked:
		return "none"
	case ParkedForSwap:
		return "swap"
	case ParkedForCycle:
		return "cycle"
	case ParkedForOrder:
		return "order"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Binding is an entry's placement in one view.
type Binding struct {
	Bound      bool
	Active     bool
	ParentID   string
	ParentPath string
	Name       string
	Assoc      any
}

// Path returns the binding's relative path.
func (b Binding) Path() string {
	return path.Join(b.ParentPath, b.Name)
}

// Entry is one identity known to the inventory.
type Entry struct {
	ID     string
	IsDir  bool
	Source Binding
	Target Binding

	Reason     Reason
	ParkedPath string
}

// Moves reports whether the entry is live in both views at different places.
func (e *Entry) Moves() bool {
	if !e.Source.Active || !e.Target.Active {
		return false
	}
	return e.Source.ParentID != e.Target.ParentID || e.Source.Name != e.Target.Name
}

// Parked reports whether the entry was assigned a parking path.
func (e *Entry) Parked() bool {
	return e.Reason != NotParked
}

type slot struct {
	source int
	target int
}

type directory struct {
	id    string
	names map[string]*slot
}

// Inventory is the per-merge index. It is not safe for concurrent use.
type Inventory struct {
	parkingLot string

	arena    []*Entry
	byID     map[string]int
	bySource map[string]int
	byTarget map[string]int
	dirs     map[string]*directory
}

// New creates an empty inventory whose parking paths live under parkingLot,
// a path relative to the working directory root.
func New(parkingLot string) *Inventory {
	return &Inventory{
		parkingLot: parkingLot,
		byID:       make(map[string]int),
		bySource:   make(map[string]int),
		byTarget:   make(map[string]int),
		dirs:       make(map[string]*directory),
	}
}

// ParkingLot returns the parking directory.
func (inv *Inventory) ParkingLot() string {
	return inv.parkingLot
}

func (inv *Inventory) entry(id string, isDir bool) int {
	if idx, ok := inv.byID[id]; ok {
		if isDir {
			inv.arena[idx].IsDir = true
		}
		return idx
	}
	inv.arena = append(inv.arena, &Entry{ID: id, IsDir: isDir})
	idx := len(inv.arena) - 1
	inv.byID[id] = idx
	return idx
}

func (inv *Inventory) slot(parentID, name string) *slot {
	d, ok := inv.dirs[parentID]
	if !ok {
		d = &directory{id: parentID, names: make(map[string]*slot)}
		inv.dirs[parentID] = d
	}
	s, ok := d.names[name]
	if !ok {
		s = &slot{source: -1, target: -1}
		d.names[name] = s
	}
	return s
}

func (inv *Inventory) lookupSlot(parentID, name string) *slot {
	d, ok := inv.dirs[parentID]
	if !ok {
		return nil
	}
	return d.names[name]
}

// BindSource records where entryID sits in the source view. Binding an
// identity again moves it; an inactive binding is recorded but holds no name.
func (inv *Inventory) BindSource(parentID, parentPath, entryID, name string, isDir bool, assoc any, active bool) error {
	idx := inv.entry(entryID, isDir)
	e := inv.arena[idx]
	if e.Source.Bound && e.Source.Active {
		if s := inv.lookupSlot(e.Source.ParentID, e.Source.Name); s != nil && s.source == idx {
			s.source = -1
		}
	}

	if active {
		s := inv.slot(parentID, name)
		if s.source != -1 && s.source != idx {
			return &FaultError{Entry: entryID, Directory: parentID,
				Err: fmt.Errorf("%w: %q already holds %s in source view", ErrCollision, name, inv.arena[s.source].ID)}
		}
		s.source = idx
	}

	e.Source = Binding{Bound: true, Active: active, ParentID: parentID, ParentPath: parentPath, Name: name, Assoc: assoc}
	inv.bySource[entryID] = idx
	return nil
}

// BindTarget records where entryID goes in the target view.
func (inv *Inventory) BindTarget(parentID, parentPath, entryID, name string, isDir bool, assoc any, active bool) error {
	idx := inv.entry(entryID, isDir)
	e := inv.arena[idx]
	if e.Target.Bound && e.Target.Active {
		if s := inv.lookupSlot(e.Target.ParentID, e.Target.Name); s != nil && s.target == idx {
			s.target = -1
		}
	}

	if active {
		s := inv.slot(parentID, name)
		if s.target != -1 && s.target != idx {
			return &FaultError{Entry: entryID, Directory: parentID,
				Err: fmt.Errorf("%w: %q already holds %s in target view", ErrCollision, name, inv.arena[s.target].ID)}
		}
		s.target = idx
	}

	e.Target = Binding{Bound: true, Active: active, ParentID: parentID, ParentPath: parentPath, Name: name, Assoc: assoc}
	inv.byTarget[entryID] = idx
	return nil
}

// Get returns the entry for an identity.
func (inv *Inventory) Get(entryID string) (*Entry, bool) {
	idx, ok := inv.byID[entryID]
	if !ok {
		return nil, false
	}
	return inv.arena[idx], true
}

// Entries returns every entry in binding order.
func (inv *Inventory) Entries() []*Entry {
	out := make([]*Entry, len(inv.arena))
	copy(out, inv.arena)
	return out
}

// SourceOccupant returns the entry holding name in the source view.
func (inv *Inventory) SourceOccupant(parentID, name string) (*Entry, bool) {
	s := inv.lookupSlot(parentID, name)
	if s == nil || s.source == -1 {
		return nil, false
	}
	return inv.arena[s.source], true
}

// TargetOccupant returns the entry holding name in the target view.
func (inv *Inventory) TargetOccupant(parentID, name string) (*Entry, bool) {
	s := inv.lookupSlot(parentID, name)
	if s == nil || s.target == -1 {
		return nil, false
	}
	return inv.arena[s.target], true
}

// Park assigns a parking path to an entry. Parking an already parked entry
// keeps its first reason.
func (inv *Inventory) Park(entryID string, reason Reason) (*Entry, error) {
	e, ok := inv.Get(entryID)
	if !ok {
		return nil, fmt.Errorf("park %s: %w", entryID, ErrUnknownEntry)
	}
	if reason == NotParked {
		return nil, fmt.Errorf("park %s: missing reason", entryID)
	}
	if !e.Parked() {
		e.Reason = reason
		e.ParkedPath = inv.ParkedPath(entryID)
	}
	return e, nil
}

// ParkedPath returns the parking location of an identity. Identities are
// unique, so parking paths never collide.
func (inv *Inventory) ParkedPath(entryID string) string {
	return path.Join(inv.parkingLot, entryID)
}

// Parked returns parked entries sorted by identity.
func (inv *Inventory) Parked() []*Entry {
	var out []*Entry
	for _, e := range inv.arena {
		if e.Parked() {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CheckForSwaps finds rename cycles and parks every entry on one.
//
// An entry moving to a name that is still held in the source view by another
// moving entry has to wait for that entry. Each entry waits on at most one
// other, so the waits form chains that either end at a free name or close
// into a cycle. Chains resolve by ordering moves; cycles cannot, and their
// members are parked: two members as a swap, more as a cycle. The parked
// entries are returned sorted by identity.
func (inv *Inventory) CheckForSwaps() []*Entry {
	waits := make([]int, len(inv.arena))
	for i, e := range inv.arena {
		waits[i] = -1
		if !e.Moves() {
			continue
		}
		s := inv.lookupSlot(e.Target.ParentID, e.Target.Name)
		if s == nil || s.source == -1 || s.source == i {
			continue
		}
		if inv.arena[s.source].Moves() {
			waits[i] = s.source
		}
	}

	const (
		unvisited = iota
		onPath
		done
	)
	color := make([]int, len(inv.arena))
	for start := range inv.arena {
		if color[start] != unvisited {
			continue
		}
		var trail []int
		cur := start
		for cur != -1 && color[cur] == unvisited {
			color[cur] = onPath
			trail = append(trail, cur)
			cur = waits[cur]
		}
		if cur != -1 && color[cur] == onPath {
			var cycle []int
			for i := len(trail) - 1; i >= 0; i-- {
				cycle = append(cycle, trail[i])
				if trail[i] == cur {
					break
				}
			}
			reason := ParkedForCycle
			if len(cycle) == 2 {
				reason = ParkedForSwap
			}
			for _, idx := range cycle {
				e := inv.arena[idx]
				if !e.Parked() {
					e.Reason = reason
					e.ParkedPath = inv.ParkedPath(e.ID)
				}
			}
		}
		for _, idx := range trail {
			color[idx] = done
		}
	}

	return inv.Parked()
}
