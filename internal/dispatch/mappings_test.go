package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMappings(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Mapping
		wantErr bool
	}{
		{name: "plain", raw: "/gd:/mnt/gd", want: Mapping{Source: "/gd", Target: "/mnt/gd"}},
		{name: "leading colon", raw: ":/x:/y", want: Mapping{Source: ":/x", Target: "/y"}},
		{name: "colon in longer side", raw: "C:/data:/mnt/data", want: Mapping{Source: "C", Target: "/data:/mnt/data"}},
		{name: "no colon", raw: "/gd", wantErr: true},
		{name: "too many colons", raw: "a:b:c:d", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMappings([]string{tt.raw})
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0])
		})
	}
}

func TestApplyMappings(t *testing.T) {
	mappings, err := ParseMappings([]string{"/MOVIES:/mnt/gd/movies"})
	require.NoError(t, err)

	mapped := ApplyMappings("/MOVIES/dir/m.mkv", mappings)
	assert.Equal(t, "/mnt/gd/movies/dir/m.mkv", mapped)

	// Idempotent once the source prefix is gone.
	assert.Equal(t, mapped, ApplyMappings(mapped, mappings))

	// Sequential application.
	chained, err := ParseMappings([]string{"/a:/b", "/b:/c"})
	require.NoError(t, err)
	assert.Equal(t, "/c/x", ApplyMappings("/a/x", chained))
}
