package replication

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSequence(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    uint64
		wantErr bool
	}{
		{
			name:    "bare field",
			content: "sequenceNumber=665",
			want:    665,
		},
		{
			name:    "full state file",
			content: "#Fri Jul 03 15:34:34 UTC 2026\ntimestamp=2026-07-03T15\\:34\\:02Z\nsequenceNumber=4117\n",
			want:    4117,
		},
		{
			name:    "zero",
			content: "sequenceNumber=0\n",
			want:    0,
		},
		{
			name:    "surrounded by opaque lines",
			content: "foo=bar\nsequenceNumber=42\nbaz=qux\n",
			want:    42,
		},
		{
			name:    "garbage",
			content: "garbage",
			wantErr: true,
		},
		{
			name:    "empty",
			content: "",
			wantErr: true,
		},
		{
			name:    "missing digits",
			content: "sequenceNumber=\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSequence(tt.content)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, KindInvalidState, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPublishPath(t *testing.T) {
	tests := []struct {
		n    uint64
		want string
	}{
		{0, "000/000/000"},
		{667, "000/000/667"},
		{1_000, "000/001/000"},
		{999_999, "000/999/999"},
		{1_000_000, "001/000/000"},
		{1_234_568, "001/234/568"},
		{999_999_999, "999/999/999"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			top, mid, leaf := PublishPath(tt.n)
			assert.Equal(t, tt.want, fmt.Sprintf("%s/%s/%s", top, mid, leaf))
		})
	}
}

// TestPublishPathRoundTrip verifies that joining the path components and
// parsing them back yields the original sequence number.
func TestPublishPathRoundTrip(t *testing.T) {
	samples := []uint64{0, 1, 999, 1_000, 665, 667, 123_456, 999_999, 1_000_000, 1_234_567, 500_000_001, 999_999_999}

	for _, n := range samples {
		top, mid, leaf := PublishPath(n)
		parts := []string{top, mid, leaf}

		var back uint64
		for _, p := range parts {
			require.Len(t, p, 3)
			v, err := strconv.ParseUint(p, 10, 64)
			require.NoError(t, err)
			back = back*1000 + v
		}
		assert.Equal(t, n, back, "round trip for %d", n)
	}
}

func TestSequenceKeys(t *testing.T) {
	assert.Equal(t, "000/000/667.osc.gz", DiffKey(667))
	assert.Equal(t, "000/000/667.state.txt", StateKey(667))
	assert.Equal(t, "001/234/568.osc.gz", DiffKey(1_234_568))
	assert.Equal(t, "state.txt", PointerKey)
}
