package neighbors

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/otmesh/meshrouter/mesh"
)

func TestIterate_FilterAnyExceptInvalidReturnsAllAttached(t *testing.T) {
	tbl := New()
	tbl.Attach(0, 0x1000, [8]byte{1}, false)
	tbl.Attach(1, 0x1001, [8]byte{2}, true)

	got := tbl.Iterate(mesh.FilterAnyExceptInvalid)
	assert.Equal(t, []mesh.ChildIndex{0, 1}, got)
}

func TestIterate_FilterAnyExceptValidOrRestoringOnlyReturnsDetached(t *testing.T) {
	tbl := New()
	tbl.Attach(0, 0x1000, [8]byte{1}, false)
	tbl.Attach(1, 0x1001, [8]byte{2}, false)

	assert.Empty(t, tbl.Iterate(mesh.FilterAnyExceptValidOrRestoring), "nothing has left yet")

	tbl.Detach(1)

	assert.Equal(t, []mesh.ChildIndex{1}, tbl.Iterate(mesh.FilterAnyExceptValidOrRestoring))
	assert.Equal(t, []mesh.ChildIndex{0, 1}, tbl.Iterate(mesh.FilterAnyExceptInvalid),
		"a detached-but-not-yet-removed child is still visible to the unfiltered iteration")
}

func TestAttach_ClearsAPriorDetach(t *testing.T) {
	tbl := New()
	tbl.Attach(0, 0x1000, [8]byte{1}, false)
	tbl.Detach(0)
	assert.NotEmpty(t, tbl.Iterate(mesh.FilterAnyExceptValidOrRestoring))

	tbl.Attach(0, 0x1000, [8]byte{1}, false)
	assert.Empty(t, tbl.Iterate(mesh.FilterAnyExceptValidOrRestoring), "re-attaching clears the removed mark")
}

func TestRemove_DropsTheRecordEntirely(t *testing.T) {
	tbl := New()
	tbl.Attach(0, 0x1000, [8]byte{1}, false)
	tbl.Detach(0)
	tbl.Remove(0)

	assert.Empty(t, tbl.Iterate(mesh.FilterAnyExceptInvalid))
	assert.Empty(t, tbl.Iterate(mesh.FilterAnyExceptValidOrRestoring))
}

func TestRecordMessageTxStatusAndRecordSentFrame_IgnoreUnknownChild(t *testing.T) {
	tbl := New()
	assert.NotPanics(t, func() {
		tbl.RecordMessageTxStatus(99, true)
		tbl.RecordSentFrame(99)
	})
}

func TestShortAndExtAddress_ReflectAttach(t *testing.T) {
	tbl := New()
	ext := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	tbl.Attach(0, 0x2000, ext, true)

	assert.Equal(t, uint16(0x2000), tbl.ShortAddress(0))
	assert.Equal(t, ext, tbl.ExtAddress(0))
	assert.True(t, tbl.IsRxOnWhenIdle(0))
}
