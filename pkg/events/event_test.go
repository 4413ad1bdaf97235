package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queueforge/pkg/types"
)

func TestEncodeDecode(t *testing.T) {
	item := types.QueueItem{
		ID:              "5f0c7a4e-2d7f-4f4e-9a43-1c1f6d0f2a11",
		Category:        types.CategoryBuilding,
		PlanetID:        7,
		TargetKind:      "metal_mine",
		LevelOrQuantity: 12,
		StartTime:       1000,
		Duration:        100,
	}
	ev := FromItem(TypeSettled, item, 1100)

	data, err := Encode(ev)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, ev, got)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)
}

func TestSubject(t *testing.T) {
	ev := Event{Type: TypeCancelled, Category: types.CategoryShip}
	assert.Equal(t, "queueforge.ship.cancelled", Subject("queueforge", ev))
}

func TestRecorderFiltersByType(t *testing.T) {
	var r Recorder
	ctx := t.Context()
	require.NoError(t, r.Publish(ctx, Event{Type: TypeEnqueued}))
	require.NoError(t, r.Publish(ctx, Event{Type: TypeSettled}))
	require.NoError(t, r.Publish(ctx, Event{Type: TypeSettled}))

	assert.Len(t, r.Events(), 3)
	assert.Len(t, r.OfType(TypeSettled), 2)
	assert.Empty(t, r.OfType(TypeCancelled))
}
