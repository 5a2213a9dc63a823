package romfs

import (
	"encoding/binary"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func flatten(e *Entry, prefix string, out map[string][]byte) {
	if e.IsDir() {
		for _, c := range e.Children {
			flatten(c, prefix+e.Name+"/", out)
		}
		return
	}
	out[prefix+e.Name] = e.Data
}

func buildTree() *Entry {
	return &Entry{
		Name: "",
		Children: []*Entry{
			{Name: "b.bin", Data: []byte("second file, not block aligned")},
			{Name: "a.txt", Data: []byte("hello")},
			{
				Name: "sub",
				Children: []*Entry{
					{Name: "deep.bin", Data: make([]byte, 37)},
					{Name: "nested", Children: []*Entry{
						{Name: "leaf.txt", Data: []byte("leaf")},
					}},
				},
			},
			{Name: "empty.bin", Data: []byte{}},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	root := buildTree()
	want := map[string][]byte{}
	flatten(root, "", want)

	image, err := Encode(root)
	require.NoError(t, err)
	require.NotEmpty(t, image)

	decoded, err := Decode(image)
	require.NoError(t, err)

	got := map[string][]byte{}
	flatten(decoded, "", got)

	require.Equal(t, len(want), len(got))
	for name, data := range want {
		gotData, ok := got[name]
		require.True(t, ok, "missing file %s", name)
		require.Equal(t, data, gotData, "mismatched data for %s", name)
	}
}

func TestEncodeFileDataAlignment(t *testing.T) {
	root := &Entry{
		Name: "",
		Children: []*Entry{
			{Name: "a", Data: []byte("123")},
			{Name: "b", Data: []byte("4567890123456789")},
		},
	}
	image, err := Encode(root)
	require.NoError(t, err)

	decoded, err := Decode(image)
	require.NoError(t, err)

	names := make([]string, 0, len(decoded.Children))
	for _, c := range decoded.Children {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	require.Equal(t, []string{"a", "b"}, names)

	// "b" follows "a" in the file table; its data starts after a's 3 bytes
	// rounded up to 16.
	fileTableOfs := binary.LittleEndian.Uint64(image[0x38:])
	bEntry := image[fileTableOfs+uint64(entrySize(fileEntryFixedSize, len("a"))):]
	require.Equal(t, uint64(0x10), binary.LittleEndian.Uint64(bEntry[0x08:]))
}

func TestBucketCountAvoidsSmallFactors(t *testing.T) {
	for n := 19; n < 200; n++ {
		c := bucketCount(n)
		require.False(t, hasSmallFactor(c), "bucketCount(%d) = %d has a small factor", n, c)
	}
}

func TestEntryHashDeterministic(t *testing.T) {
	h1 := entryHash(0, "foo")
	h2 := entryHash(0, "foo")
	require.Equal(t, h1, h2)

	h3 := entryHash(0x18, "foo")
	require.NotEqual(t, h1, h3)
}
