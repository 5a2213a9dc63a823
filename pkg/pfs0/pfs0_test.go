package pfs0

import (
	"bytes"
	"testing"

	nsacrypto "github.com/falk/nca-forge/pkg/crypto"
	"github.com/stretchr/testify/require"
)

func TestBuildOpenRoundTrip(t *testing.T) {
	files := []InputFile{
		{Name: "a.txt", Data: []byte("alpha")},
		{Name: "b.txt", Data: []byte("beta and a bit more")},
	}
	raw := Build(files)

	parsed, dataStart, err := Open(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	require.Equal(t, "a.txt", parsed[0].Name)
	require.Equal(t, "b.txt", parsed[1].Name)

	aData := raw[dataStart+int64(parsed[0].Entry.DataOffset) : dataStart+int64(parsed[0].Entry.DataOffset)+int64(parsed[0].Entry.DataSize)]
	require.Equal(t, "alpha", string(aData))
}

func TestBuildHashTableMasterHashMatchesBlocks(t *testing.T) {
	raw := Build([]InputFile{{Name: "f", Data: bytes.Repeat([]byte{0x42}, 100)}})

	ht, err := BuildHashTable(raw, 64)
	require.NoError(t, err)

	numBlocks := (len(raw) + 63) / 64
	require.Len(t, ht.Table, numBlocks*32)
	require.True(t, len(ht.Padded)%0x200 == 0)

	block0 := raw[0:64]
	want0 := nsacrypto.SHA256(block0)
	require.Equal(t, want0[:], ht.Table[0:32])

	master := MasterHash(ht.Table)
	wantMaster := nsacrypto.SHA256(ht.Table)
	require.Equal(t, wantMaster, master)
}

func TestOpenRejectsBadMagic(t *testing.T) {
	_, _, err := Open(bytes.NewReader(make([]byte, 0x10)))
	require.Error(t, err)
}
