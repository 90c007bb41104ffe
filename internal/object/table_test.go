package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/synccore/internal/ir"
)

type obj struct{ label string }

func TestTable_ReserveInstallGet(t *testing.T) {
	tbl := NewTable[*obj](ir.APIClassic, ir.ClassSemaphores, 1, 2)

	id, status := tbl.Reserve(ir.MustName("A"))
	require.Equal(t, ir.StatusSuccessful, status)
	assert.Equal(t, uint32(1), id.Index())
	assert.Equal(t, uint32(1), id.Node())

	_, ok := tbl.Get(id)
	assert.False(t, ok, "reserved ids are not visible")

	tbl.Install(id, &obj{"a"})
	got, ok := tbl.Get(id)
	require.True(t, ok)
	assert.Equal(t, "a", got.label)
	assert.Equal(t, 1, tbl.Len())
}

func TestTable_TooMany(t *testing.T) {
	tbl := NewTable[*obj](ir.APIClassic, ir.ClassSemaphores, 1, 1)
	_, status := tbl.Reserve(ir.MustName("A"))
	require.Equal(t, ir.StatusSuccessful, status)

	_, status = tbl.Reserve(ir.MustName("B"))
	assert.Equal(t, ir.StatusTooMany, status)
}

func TestTable_RemoveReusesOldestIndex(t *testing.T) {
	tbl := NewTable[*obj](ir.APIClassic, ir.ClassSemaphores, 1, 3)
	a, _ := tbl.Reserve(ir.MustName("A"))
	tbl.Install(a, &obj{"a"})

	got, ok := tbl.Remove(a)
	require.True(t, ok)
	assert.Equal(t, "a", got.label)
	_, ok = tbl.Get(a)
	assert.False(t, ok)

	b, _ := tbl.Reserve(ir.MustName("B"))
	assert.Equal(t, uint32(2), b.Index(), "freed index goes to the back of the free list")
}

func TestTable_RejectsForeignIDs(t *testing.T) {
	tbl := NewTable[*obj](ir.APIClassic, ir.ClassSemaphores, 1, 3)
	id, _ := tbl.Reserve(ir.MustName("A"))
	tbl.Install(id, &obj{"a"})

	for _, bad := range []ir.ObjectID{
		ir.BuildID(ir.APIClassic, ir.ClassSemaphores, 2, id.Index()),
		ir.BuildID(ir.APIClassic, ir.ClassTasks, 1, id.Index()),
		ir.BuildID(ir.APIPOSIX, ir.ClassSemaphores, 1, id.Index()),
		ir.BuildID(ir.APIClassic, ir.ClassSemaphores, 1, 0),
		ir.BuildID(ir.APIClassic, ir.ClassSemaphores, 1, 99),
	} {
		_, ok := tbl.Get(bad)
		assert.False(t, ok, bad.String())
	}
}

func TestTable_NameToIDAndEach(t *testing.T) {
	tbl := NewTable[*obj](ir.APIClassic, ir.ClassSemaphores, 1, 3)
	a, _ := tbl.Reserve(ir.MustName("A"))
	tbl.Install(a, &obj{"a"})
	b, _ := tbl.Reserve(ir.MustName("B"))
	tbl.Install(b, &obj{"b"})

	id, ok := tbl.NameToID(ir.MustName("B"))
	require.True(t, ok)
	assert.Equal(t, b, id)

	var labels []string
	tbl.Each(func(_ ir.ObjectID, o *obj) { labels = append(labels, o.label) })
	assert.Equal(t, []string{"a", "b"}, labels)
}

func TestGlobal_AddLookupRemove(t *testing.T) {
	g := NewGlobal(2)
	remote := ir.BuildID(ir.APIClassic, ir.ClassSemaphores, 2, 1)
	name := ir.MustName("G")

	require.Equal(t, ir.StatusSuccessful, g.Add(name, remote))
	id, ok := g.Lookup(ir.APIClassic, ir.ClassSemaphores, name, ir.SearchAllNodes)
	require.True(t, ok)
	assert.Equal(t, remote, id)

	_, ok = g.Lookup(ir.APIClassic, ir.ClassSemaphores, name, 3)
	assert.False(t, ok)
	_, ok = g.Lookup(ir.APIClassic, ir.ClassTasks, name, ir.SearchAllNodes)
	assert.False(t, ok)

	require.Equal(t, ir.StatusSuccessful, g.Add(ir.MustName("H"), ir.BuildID(ir.APIClassic, ir.ClassSemaphores, 2, 2)))
	assert.Equal(t, ir.StatusTooMany, g.Add(ir.MustName("I"), ir.BuildID(ir.APIClassic, ir.ClassSemaphores, 2, 3)))

	assert.True(t, g.Remove(remote))
	assert.False(t, g.Contains(remote))
	assert.False(t, g.Remove(remote))
}

func TestResolver_Ident(t *testing.T) {
	local := NewTable[*obj](ir.APIClassic, ir.ClassSemaphores, 1, 3)
	id, _ := local.Reserve(ir.MustName("L"))
	local.Install(id, &obj{"l"})
	global := NewGlobal(4)
	remote := ir.BuildID(ir.APIClassic, ir.ClassSemaphores, 2, 1)
	global.Add(ir.MustName("R"), remote)

	r := Resolver[*obj]{Local: local, Global: global, Node: 1, Nodes: 2}

	got, status := r.Ident(ir.MustName("L"), ir.SearchAllNodes)
	assert.Equal(t, ir.StatusSuccessful, status)
	assert.Equal(t, id, got)

	got, status = r.Ident(ir.MustName("R"), ir.SearchAllNodes)
	assert.Equal(t, ir.StatusSuccessful, status)
	assert.Equal(t, remote, got)

	_, status = r.Ident(ir.MustName("R"), ir.SearchLocalNode)
	assert.Equal(t, ir.StatusInvalidName, status)

	got, status = r.Ident(ir.MustName("R"), 2)
	assert.Equal(t, ir.StatusSuccessful, status)
	assert.Equal(t, remote, got)

	_, status = r.Ident(ir.MustName("L"), 2)
	assert.Equal(t, ir.StatusInvalidName, status)

	_, status = r.Ident(ir.MustName("L"), 9)
	assert.Equal(t, ir.StatusInvalidNode, status)

	_, status = r.Ident(0, ir.SearchAllNodes)
	assert.Equal(t, ir.StatusInvalidName, status)
}
