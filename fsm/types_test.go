package fsm_test

import (
	"testing"
	"time"

	"github.com/amp-labs/amp-fsm/fsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordIDsAreTimeOrdered(t *testing.T) {
	t.Parallel()

	before := time.Now().Truncate(time.Millisecond)

	first, err := fsm.NewRecordID()
	require.NoError(t, err)

	second, err := fsm.NewRecordID()
	require.NoError(t, err)

	a := &fsm.StateRecord{ID: first}
	b := &fsm.StateRecord{ID: second}
	assert.Equal(t, -1, fsm.CompareRecords(a, b))

	created := fsm.RecordTime(first)
	assert.False(t, created.Before(before))
	assert.WithinDuration(t, time.Now(), created, time.Second)
}

func TestRecordIDBounds(t *testing.T) {
	t.Parallel()

	id, err := fsm.NewRecordID()
	require.NoError(t, err)

	at := fsm.RecordTime(id)

	lo, hi := fsm.RecordIDBounds(at, at)
	assert.LessOrEqual(t, lo.String(), id.String())
	assert.GreaterOrEqual(t, hi.String(), id.String())

	lo, _ = fsm.RecordIDBounds(at.Add(time.Microsecond), at.Add(time.Second))
	assert.Greater(t, lo.String(), id.String())
}

func TestStateRecordClone(t *testing.T) {
	t.Parallel()

	rec := &fsm.StateRecord{State: "A", ContextData: map[string]any{"k": 1}}
	clone := rec.Clone()
	clone.ContextData["k"] = 2

	assert.Equal(t, 1, rec.ContextData["k"])
	assert.Nil(t, (*fsm.StateRecord)(nil).Clone())
}

func TestRecordIDBoundsClampsToEpoch(t *testing.T) {
	t.Parallel()

	id, err := fsm.NewRecordID()
	require.NoError(t, err)

	lo, hi := fsm.RecordIDBounds(time.Time{}, time.Now().Add(time.Second))
	assert.Equal(t, "00000000-0000-0000-0000-000000000000", lo.String())
	assert.Less(t, lo.String(), id.String())
	assert.Greater(t, hi.String(), id.String())

	now := time.Now()
	lo, hi = fsm.RecordIDBounds(now, now.Add(-time.Second))
	assert.Greater(t, lo.String(), hi.String(), "reversed range must be empty")

	lo, hi = fsm.RecordIDBounds(time.Time{}, time.Unix(-60, 0))
	assert.Greater(t, lo.String(), hi.String(), "range ending before the epoch must be empty")
}
