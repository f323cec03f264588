package inventory_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danieljhkim/wcmerge/internal/inventory"
)

const root = "root"

// move binds id at from in the source view and at to in the target view,
// both inside root.
func move(t *testing.T, inv *inventory.Inventory, id, from, to string) {
	t.Helper()
	require.NoError(t, inv.BindSource(root, "", id, from, false, nil, true))
	require.NoError(t, inv.BindTarget(root, "", id, to, false, nil, true))
}

func parkedIDs(entries []*inventory.Entry) []string {
	var ids []string
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return ids
}

func TestCheckForSwaps_Swap(t *testing.T) {
	inv := inventory.New(".wcmerge/parking/s1")
	move(t, inv, "i1", "A.txt", "B.txt")
	move(t, inv, "i2", "B.txt", "A.txt")

	parked := inv.CheckForSwaps()
	require.Len(t, parked, 2)
	for _, e := range parked {
		assert.Equal(t, inventory.ParkedForSwap, e.Reason)
		assert.Equal(t, ".wcmerge/parking/s1/"+e.ID, e.ParkedPath)
	}
}

func TestCheckForSwaps_ThreeCycle(t *testing.T) {
	inv := inventory.New("lot")
	move(t, inv, "i1", "a", "b")
	move(t, inv, "i2", "b", "c")
	move(t, inv, "i3", "c", "a")

	parked := inv.CheckForSwaps()
	assert.Equal(t, []string{"i1", "i2", "i3"}, parkedIDs(parked))
	for _, e := range parked {
		assert.Equal(t, inventory.ParkedForCycle, e.Reason)
	}
}

func TestCheckForSwaps_CycleLengths(t *testing.T) {
	names := []string{"n0", "n1", "n2", "n3", "n4", "n5"}
	for k := 2; k <= len(names); k++ {
		inv := inventory.New("lot")
		for i := 0; i < k; i++ {
			move(t, inv, "id-"+names[i], names[i], names[(i+1)%k])
		}
		// an unrelated rename that is not part of the cycle
		move(t, inv, "bystander", "x", "y")

		parked := inv.CheckForSwaps()
		assert.Len(t, parked, k, "cycle of length %d", k)
		assert.NotContains(t, parkedIDs(parked), "bystander")
	}
}

func TestCheckForSwaps_ChainNotParked(t *testing.T) {
	inv := inventory.New("lot")
	// c -> d (free), b -> c, a -> b: resolvable by ordering
	move(t, inv, "i1", "a", "b")
	move(t, inv, "i2", "b", "c")
	move(t, inv, "i3", "c", "d")

	assert.Empty(t, inv.CheckForSwaps())
}

func TestCheckForSwaps_CycleBesideChain(t *testing.T) {
	inv := inventory.New("lot")
	move(t, inv, "i1", "a", "b")
	move(t, inv, "i2", "b", "a")
	// e -> c waits on c -> d, which is free
	move(t, inv, "tail", "e", "c")
	move(t, inv, "head", "c", "d")

	parked := inv.CheckForSwaps()
	assert.Equal(t, []string{"i1", "i2"}, parkedIDs(parked))
}

func TestCheckForSwaps_CycleNameIsNotFree(t *testing.T) {
	inv := inventory.New("lot")
	move(t, inv, "i1", "a", "b")
	move(t, inv, "i2", "b", "a")

	require.NoError(t, inv.BindSource(root, "", "tail", "t", false, nil, true))
	err := inv.BindTarget(root, "", "tail", "a", false, nil, true)
	require.ErrorIs(t, err, inventory.ErrCollision)
}

func TestCheckForSwaps_DeletedOccupantIsNotAWait(t *testing.T) {
	inv := inventory.New("lot")
	move(t, inv, "i1", "a", "b")
	require.NoError(t, inv.BindSource(root, "", "gone", "b", false, nil, true))
	require.NoError(t, inv.BindTarget(root, "", "gone", "b", false, nil, false))

	assert.Empty(t, inv.CheckForSwaps())
}

func TestCheckForSwaps_AcrossDirectories(t *testing.T) {
	inv := inventory.New("lot")
	require.NoError(t, inv.BindSource("d1", "d1", "i1", "f", false, nil, true))
	require.NoError(t, inv.BindTarget("d2", "d2", "i1", "f", false, nil, true))
	require.NoError(t, inv.BindSource("d2", "d2", "i2", "f", false, nil, true))
	require.NoError(t, inv.BindTarget("d1", "d1", "i2", "f", false, nil, true))

	parked := inv.CheckForSwaps()
	assert.Len(t, parked, 2)
}

func TestBind_Collision(t *testing.T) {
	inv := inventory.New("lot")
	require.NoError(t, inv.BindTarget(root, "", "i1", "same", false, nil, true))
	err := inv.BindTarget(root, "", "i2", "same", false, nil, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, inventory.ErrCollision)

	var fault *inventory.FaultError
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, "i2", fault.Entry)
	assert.Equal(t, root, fault.Directory)

	// inactive bindings hold no name
	require.NoError(t, inv.BindTarget(root, "", "i3", "same", false, nil, false))
}

func TestBind_RebindReleasesName(t *testing.T) {
	inv := inventory.New("lot")
	require.NoError(t, inv.BindSource(root, "", "i1", "old", false, "assoc-1", true))
	require.NoError(t, inv.BindSource(root, "", "i1", "new", true, "assoc-2", true))
	require.NoError(t, inv.BindSource(root, "", "i2", "old", false, nil, true))

	e, ok := inv.Get("i1")
	require.True(t, ok)
	assert.True(t, e.IsDir)
	assert.Equal(t, "new", e.Source.Name)
	assert.Equal(t, "assoc-2", e.Source.Assoc)

	occ, ok := inv.SourceOccupant(root, "old")
	require.True(t, ok)
	assert.Equal(t, "i2", occ.ID)
}

func TestPark(t *testing.T) {
	inv := inventory.New("lot")
	move(t, inv, "i1", "a", "b")

	e, err := inv.Park("i1", inventory.ParkedForOrder)
	require.NoError(t, err)
	assert.Equal(t, "lot/i1", e.ParkedPath)

	e, err = inv.Park("i1", inventory.ParkedForSwap)
	require.NoError(t, err)
	assert.Equal(t, inventory.ParkedForOrder, e.Reason)

	_, err = inv.Park("nope", inventory.ParkedForOrder)
	assert.ErrorIs(t, err, inventory.ErrUnknownEntry)
}

func TestCheckForPortability(t *testing.T) {
	inv := inventory.New("lot")
	bind := func(id, name string) {
		require.NoError(t, inv.BindTarget(root, "", id, name, false, nil, true))
	}
	bind("i1", "readme.md")
	bind("i2", "README.md")
	bind("i3", "con.txt")
	bind("i4", "bad:name")
	bind("i5", "trailing.")
	bind("i6", "build.tmp")
	bind("i7", "fine.go")

	policy, err := inventory.NewPortabilityPolicy([]string{"*.tmp"})
	require.NoError(t, err)

	warnings := inv.CheckForPortability(policy)
	byEntry := map[string][]string{}
	conflicting := map[string]string{}
	for _, w := range warnings {
		byEntry[w.Entry] = append(byEntry[w.Entry], w.Message)
		if w.Conflicting != "" {
			conflicting[w.Entry] = w.Conflicting
		}
	}

	assert.Contains(t, byEntry, "i3")
	assert.Contains(t, byEntry, "i4")
	assert.Contains(t, byEntry, "i5")
	assert.Contains(t, byEntry, "i6")
	assert.NotContains(t, byEntry, "i7")
	// the case collision is reported once, on the later name in sort order
	assert.Len(t, byEntry["i1"], 1)
	assert.NotContains(t, byEntry, "i2")
	assert.Equal(t, map[string]string{"i1": "i2"}, conflicting)
}

func TestNewPortabilityPolicy_BadPattern(t *testing.T) {
	_, err := inventory.NewPortabilityPolicy([]string{"[unclosed"})
	assert.Error(t, err)
}
