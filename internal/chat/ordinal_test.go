package chat

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrdinalOrdering(t *testing.T) {
	committed := CommittedOrdinal(100)
	pending := committed.NextPending()
	pending2 := pending.NextPending()
	next := CommittedOrdinal(101)

	assert.True(t, committed.Less(pending))
	assert.True(t, pending.Less(pending2))
	assert.True(t, pending2.Less(next))
	assert.Equal(t, 0, pending.Compare(Ordinal{Base: 100, Seq: 1}))

	ords := []Ordinal{next, pending2, committed, pending}
	sort.Slice(ords, func(i, j int) bool { return ords[i].Less(ords[j]) })
	assert.Equal(t, []Ordinal{committed, pending, pending2, next}, ords)
}

func TestOrdinalFloor(t *testing.T) {
	assert.Equal(t, MessageID(100), Ordinal{Base: 100, Seq: 7}.Floor())
	assert.Equal(t, MessageID(100), CommittedOrdinal(100).Floor())
	assert.False(t, CommittedOrdinal(100).IsPending())
	assert.True(t, Ordinal{Base: 100, Seq: 7}.IsPending())
	assert.True(t, Ordinal{}.IsZero())
}

func TestParseOrdinal(t *testing.T) {
	tests := []struct {
		in   string
		want Ordinal
		err  bool
	}{
		{"100", CommittedOrdinal(100), false},
		{"100.3", Ordinal{Base: 100, Seq: 3}, false},
		{"100.0", Ordinal{}, true},
		{"x", Ordinal{}, true},
		{"1.x", Ordinal{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOrdinal(tt.in)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestOrdinalJSONKeepsPendingSequence(t *testing.T) {
	b, err := json.Marshal(map[string]Ordinal{"at": {Base: 9, Seq: 1}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"at":"9.1"}`, string(b))

	var back map[string]Ordinal
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, Ordinal{Base: 9, Seq: 1}, back["at"])
}
