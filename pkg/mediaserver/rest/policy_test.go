package rest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecForVersion(t *testing.T) {
	tests := []struct {
		version string
		want    string
	}{
		{"10.8.13", "folders-v1"},
		{"10.9.0", "libraries-v2"},
		{"10.10.3", "libraries-v2"},
		{"11.0.0", "libraries-v2"},
		{"4.8.0.56", "folders-v1"},
		{"garbage", "folders-v1"},
		{"", "folders-v1"},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			assert.Equal(t, tt.want, codecForVersion(tt.version).name())
		})
	}
}

func TestFolderFieldCodec_Decode(t *testing.T) {
	policy := json.RawMessage(`{
		"IsAdministrator": false,
		"EnableAllFolders": true,
		"EnabledFolders": ["lib-1", "lib-2"]
	}`)

	ids, allAccess, err := folderFieldCodec{}.decode(policy)
	require.NoError(t, err)
	assert.True(t, allAccess)
	assert.Equal(t, []string{"lib-1", "lib-2"}, ids)
}

func TestLibraryFieldCodec_Decode_MissingFields(t *testing.T) {
	ids, allAccess, err := libraryFieldCodec{}.decode(json.RawMessage(`{"IsAdministrator": true}`))
	require.NoError(t, err)
	assert.False(t, allAccess)
	assert.Empty(t, ids)
}

func TestDecode_MalformedPolicy(t *testing.T) {
	_, _, err := libraryFieldCodec{}.decode(json.RawMessage(`[]`))
	assert.Error(t, err)
}

func TestEncode_PreservesUnrelatedFields(t *testing.T) {
	policy := json.RawMessage(`{
		"IsAdministrator": true,
		"EnableAllLibraries": true,
		"EnabledLibraries": ["old"],
		"MaxParentalRating": 12
	}`)

	out, err := libraryFieldCodec{}.encode(policy, []string{"lib-3"})
	require.NoError(t, err)

	assert.Equal(t, true, out["IsAdministrator"])
	assert.Equal(t, float64(12), out["MaxParentalRating"])
	assert.Equal(t, false, out["EnableAllLibraries"])
	assert.Equal(t, []string{"lib-3"}, out["EnabledLibraries"])
}

func TestEncode_EmptyPolicy(t *testing.T) {
	out, err := folderFieldCodec{}.encode(nil, []string{})
	require.NoError(t, err)
	assert.Equal(t, false, out["EnableAllFolders"])
	assert.Equal(t, []string{}, out["EnabledFolders"])
}
