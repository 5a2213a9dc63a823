package keys

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseKeyfileCaseInsensitiveAndComments(t *testing.T) {
	text := "# a comment\n; another comment\nMaster_Key_Source = aabbccdd\n\nheader_kek_source=00112233\n"
	raw, err := ParseKeyfile(text)
	require.NoError(t, err)
	require.Equal(t, []byte{0xaa, 0xbb, 0xcc, 0xdd}, raw.get("master_key_source"))
	require.Equal(t, []byte{0x00, 0x11, 0x22, 0x33}, raw.get("header_kek_source"))
}

func TestParseKeyfileRejectsBadHex(t *testing.T) {
	_, err := ParseKeyfile("master_key_source = zzzz")
	require.Error(t, err)
}

func TestParseKeyfileIndexedNames(t *testing.T) {
	raw, err := ParseKeyfile("keyblob_key_source_05 = ff\n")
	require.NoError(t, err)
	require.Equal(t, []byte{0xff}, raw.getIndexed("keyblob_key_source_", 5))
}

func TestParseKeyfileMissingNameReturnsNil(t *testing.T) {
	raw, err := ParseKeyfile("")
	require.NoError(t, err)
	require.Nil(t, raw.get("nonexistent"))
}
