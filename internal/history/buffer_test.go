package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(start int64) func() time.Time {
	ms := start
	return func() time.Time {
		ms++
		return time.UnixMilli(ms)
	}
}

func TestAppendStampsAndOrders(t *testing.T) {
	b := NewBuffer(5, WithClock(fixedClock(1000)))

	first := b.Append(Big)
	second := b.Append(Small)

	assert.Equal(t, int64(1001), first.Timestamp)
	assert.Equal(t, int64(1002), second.Timestamp)
	assert.Equal(t, []Observation{first, second}, b.Snapshot())
}

func TestAppendEvictsOldestPastCapacity(t *testing.T) {
	b := NewBuffer(3, WithClock(fixedClock(0)))

	var appended []Observation
	for i := 0; i < 10; i++ {
		r := Big
		if i%2 == 1 {
			r = Small
		}
		appended = append(appended, b.Append(r))
		require.LessOrEqual(t, b.Len(), 3)
	}

	assert.Equal(t, appended[7:], b.Snapshot())
	assert.True(t, b.Full())
}

func TestRemoveLastOnEmptyIsNoop(t *testing.T) {
	b := NewBuffer(3)
	calls := 0
	b.OnChange(func(int) { calls++ })

	assert.False(t, b.RemoveLast())
	assert.Equal(t, 0, calls)
}

func TestRemoveLastDropsNewest(t *testing.T) {
	b := NewBuffer(3, WithClock(fixedClock(0)))
	first := b.Append(Big)
	b.Append(Small)

	require.True(t, b.RemoveLast())
	assert.Equal(t, []Observation{first}, b.Snapshot())
}

func TestReplaceKeepsMostRecent(t *testing.T) {
	b := NewBuffer(2)
	seq := []Observation{
		{Result: Big, Timestamp: 1},
		{Result: Small, Timestamp: 2},
		{Result: Big, Timestamp: 3},
	}

	b.Replace(seq)

	assert.Equal(t, seq[1:], b.Snapshot())
}

func TestSnapshotIsACopy(t *testing.T) {
	b := NewBuffer(2)
	b.Append(Big)

	snap := b.Snapshot()
	snap[0].Result = Small

	assert.Equal(t, Big, b.Snapshot()[0].Result)
}

func TestMutationsNotifyObservers(t *testing.T) {
	b := NewBuffer(2)
	var lengths []int
	b.OnChange(func(n int) { lengths = append(lengths, n) })

	b.Append(Big)
	b.Append(Big)
	b.Append(Small)
	b.RemoveLast()
	b.Replace([]Observation{{Result: Big}, {Result: Big}})
	b.Clear()

	assert.Equal(t, []int{1, 2, 2, 1, 2, 0}, lengths)
}

func TestNonPositiveCapacityUsesDefault(t *testing.T) {
	assert.Equal(t, DefaultCapacity, NewBuffer(0).Capacity())
}

func TestNormalizeResult(t *testing.T) {
	tests := []struct {
		in      string
		want    Result
		wantErr bool
	}{
		{"Big", Big, false},
		{"  Small\n", Small, false},
		{"big", "", true},
		{"X", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeResult(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
