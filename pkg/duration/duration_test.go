package duration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr error
	}{
		{name: "empty means unlimited", input: "", want: Unlimited},
		{name: "zero", input: "00-00:00:00", want: 0},
		{name: "one second", input: "00-00:00:01", want: 1},
		{name: "one minute", input: "00-00:01:00", want: 60},
		{name: "one hour", input: "00-01:00:00", want: 3600},
		{name: "one day", input: "01-00:00:00", want: 86400},
		{name: "mixed", input: "02-03:04:05", want: 2*86400 + 3*3600 + 4*60 + 5},
		{name: "single digit days", input: "7-00:00:00", want: 7 * 86400},
		{name: "large days", input: "365-00:00:00", want: 365 * 86400},
		{name: "missing days", input: "01:02:03", wantErr: ErrFormat},
		{name: "spaces", input: " 00-00:00:01", wantErr: ErrFormat},
		{name: "negative", input: "-1-00:00:00", wantErr: ErrFormat},
		{name: "short fields", input: "0-0:0:0", wantErr: ErrFormat},
		{name: "minutes overflow", input: "00-00:61:00", wantErr: ErrRange},
		{name: "seconds overflow", input: "00-00:00:99", wantErr: ErrRange},
		{name: "int64 overflow", input: "99999999999999999999-00:00:00", wantErr: ErrRange},
		{name: "total overflow", input: "106751991167301-00:00:00", wantErr: ErrRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name    string
		seconds int64
		want    string
	}{
		{name: "zero", seconds: 0, want: "00-00:00:00"},
		{name: "negative clamps", seconds: -5, want: "00-00:00:00"},
		{name: "one second", seconds: 1, want: "00-00:00:01"},
		{name: "padding", seconds: 2*86400 + 3*3600 + 4*60 + 5, want: "02-03:04:05"},
		{name: "wide days", seconds: 365 * 86400, want: "365-00:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.seconds))
		})
	}
}

func TestRoundTrip(t *testing.T) {
	for _, s := range []string{"00-00:00:00", "00-23:59:59", "31-12:00:30"} {
		sec, err := Parse(s)
		require.NoError(t, err)
		assert.Equal(t, s, Format(sec))
	}
}

func TestIsUnlimited(t *testing.T) {
	assert.True(t, IsUnlimited(0))
	assert.True(t, IsUnlimited(-1))
	assert.False(t, IsUnlimited(1))
}
