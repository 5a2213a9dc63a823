package nsp

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/falk/nca-forge/pkg/pfs0"
	"github.com/stretchr/testify/require"
)

func makeNpdm(titleID uint64) []byte {
	buf := make([]byte, 0x400)
	copy(buf[0x00:0x04], "META")

	const aci0Off = 0x80
	const acidOff = 0x180
	binary.LittleEndian.PutUint32(buf[0x70:], aci0Off)
	binary.LittleEndian.PutUint32(buf[0x78:], acidOff)

	copy(buf[aci0Off:aci0Off+4], "ACI0")
	binary.LittleEndian.PutUint64(buf[aci0Off+0x10:], titleID)

	copy(buf[acidOff+0x200:acidOff+0x204], "ACID")

	return buf
}

func blankNacp() []byte {
	return make([]byte, 0x4000)
}

func TestBuildMinimalNsp(t *testing.T) {
	titleID := uint64(0x0100000000001000)

	opts := Options{
		ExeFS: map[string][]byte{
			"main.npdm": makeNpdm(titleID),
			"main":      []byte("fake executable"),
		},
		Control: map[string][]byte{
			"control.nacp":             blankNacp(),
			"icon_AmericanEnglish.dat": []byte("fake icon bytes"),
		},
		Plaintext:      true,
		NoSignNcaSig2:  true,
		NoPatchAcidKey: true,
		TitleName:      "My Game",
		TitlePublisher: "My Studio",
	}

	res, err := Build(opts)
	require.NoError(t, err)
	require.Equal(t, titleID, res.TitleID)
	require.Len(t, res.NcaIDs, 3) // program, control, meta
	require.NotEmpty(t, res.NSP)

	files, _, err := pfs0.Open(bytes.NewReader(res.NSP))
	require.NoError(t, err)
	require.Len(t, files, 3)

	last := files[len(files)-1]
	require.Contains(t, last.Name, ".cnmt.nca")
}

func TestBuildFailsWithoutMainNpdm(t *testing.T) {
	opts := Options{
		ExeFS: map[string][]byte{},
		Control: map[string][]byte{
			"control.nacp": blankNacp(),
			"icon":         []byte("x"),
		},
	}
	_, err := Build(opts)
	require.Error(t, err)
}

func TestBuildFailsWithoutControlIcon(t *testing.T) {
	opts := Options{
		ExeFS: map[string][]byte{
			"main.npdm": makeNpdm(0x0100000000001000),
		},
		Control: map[string][]byte{
			"control.nacp": blankNacp(),
		},
	}
	_, err := Build(opts)
	require.Error(t, err)
}

func TestBuildFailsWithoutKeysUnlessPlaintext(t *testing.T) {
	titleID := uint64(0x0100000000001000)
	opts := Options{
		ExeFS: map[string][]byte{
			"main.npdm": makeNpdm(titleID),
		},
		Control: map[string][]byte{
			"control.nacp": blankNacp(),
			"icon":         []byte("x"),
		},
	}

	_, err := Build(opts)
	require.Error(t, err)

	opts.Plaintext = true
	opts.NoSignNcaSig2 = true
	opts.NoPatchAcidKey = true
	_, err = Build(opts)
	require.NoError(t, err)
}
