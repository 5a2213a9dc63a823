// Package nsp orchestrates a full NSP build from loose inputs: NPDM/NACP
// patching, RomFS/IVFC encoding, NCA assembly for Program/Control/Manual/
// Meta content, CNMT generation, and final PFS0 packaging (spec.md §4.11).
package nsp

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/falk/nca-forge/pkg/cnmt"
	nsacrypto "github.com/falk/nca-forge/pkg/crypto"
	"github.com/falk/nca-forge/pkg/keys"
	"github.com/falk/nca-forge/pkg/nacp"
	"github.com/falk/nca-forge/pkg/nca"
	"github.com/falk/nca-forge/pkg/ncaerr"
	"github.com/falk/nca-forge/pkg/npdm"
	"github.com/falk/nca-forge/pkg/pfs0"
	"github.com/falk/nca-forge/pkg/romfs"
)

const (
	defaultKeyGeneration = 1
	defaultSdkVersion    = 0x000C1100
	exefsBlockSize       = 0x200
	controlBlockSize     = 0x200
)

var defaultKeyAreaKey = [16]byte{0x04, 0x04, 0x04, 0x04, 0x04, 0x04, 0x04, 0x04, 0x04, 0x04, 0x04, 0x04, 0x04, 0x04, 0x04, 0x04}

// Options carries every input buildNsp needs (spec.md §6).
type Options struct {
	KeysText string
	KeySet   *keys.KeySet

	ExeFS   map[string][]byte // required: must contain "main.npdm"
	Control map[string][]byte // required: must contain "control.nacp" and >=1 icon
	RomFS   *romfs.Entry      // optional program data partition

	Logo      map[string][]byte
	HtmlDoc   *romfs.Entry
	LegalInfo *romfs.Entry

	TitleID         *uint64
	KeyGeneration   uint8
	KeyAreaKey      *[16]byte
	SdkVersion      uint32
	Plaintext       bool
	NoLogo          bool
	NoPatchNacpLogo bool
	NoPatchAcidKey  bool
	NoSignNcaSig2   bool
	TitleName       string
	TitlePublisher  string
}

// Result is what buildNsp returns: the finished NSP bytes, the title id,
// and the NCA ids in on-disk order (spec.md §4.11 step 11).
type Result struct {
	NSP      []byte
	TitleID  uint64
	NcaIDs   []string
	Filename string
}

// Build runs the full orchestration described in spec.md §4.11.
func Build(opts Options) (*Result, error) {
	keySet, err := resolveKeySet(opts)
	if err != nil {
		return nil, err
	}
	if err := validate(opts); err != nil {
		return nil, err
	}

	keyGen := opts.KeyGeneration
	if keyGen == 0 {
		keyGen = defaultKeyGeneration
	}
	kak := defaultKeyAreaKey
	if opts.KeyAreaKey != nil {
		kak = *opts.KeyAreaKey
	}
	sdkVersion := opts.SdkVersion
	if sdkVersion == 0 {
		sdkVersion = defaultSdkVersion
	}
	sign := !opts.NoSignNcaSig2

	exefs := cloneMap(opts.ExeFS)

	var publicModulus []byte
	patchAcidKey := !opts.NoPatchAcidKey
	if patchAcidKey {
		publicModulus, err = nsacrypto.PublicModulus()
		if err != nil {
			return nil, ncaerr.Wrap(ncaerr.CryptoBackend, "nsp acid modulus", err)
		}
	}

	titleID, err := npdm.Patch(exefs["main.npdm"], opts.TitleID, publicModulus, patchAcidKey)
	if err != nil {
		return nil, err
	}

	control := cloneMap(opts.Control)
	nacpBytes := control["control.nacp"]
	if !opts.NoPatchNacpLogo {
		nacp.PatchLogoHandling(nacpBytes)
	}
	if opts.TitleName != "" || opts.TitlePublisher != "" {
		nacp.PatchTitleAndPublisher(nacpBytes, opts.TitleName, opts.TitlePublisher)
	}

	programSections := []*nca.Section{}
	exefsSection, err := nca.BuildPFS0Section(mapToInputFiles(exefs), exefsBlockSize, nca.CryptTypeCTR)
	if err != nil {
		return nil, err
	}
	programSections = append(programSections, exefsSection)

	if opts.RomFS != nil {
		romSection, err := nca.BuildRomFSSection(opts.RomFS)
		if err != nil {
			return nil, err
		}
		programSections = append(programSections, romSection)
	}
	if !opts.NoLogo && len(opts.Logo) > 0 {
		logoSection, err := nca.BuildRomFSSection(mapToFlatTree(opts.Logo))
		if err != nil {
			return nil, err
		}
		programSections = append(programSections, logoSection)
	}

	programResult, err := nca.Assemble(nca.AssembleOptions{
		KeySet: keySet, KeyGeneration: keyGen, KeyAreaKey: kak,
		TitleID: titleID, SdkVersion: sdkVersion,
		ContentType: nca.ContentTypeProgram, Sections: programSections,
		Sign: sign, Plaintext: opts.Plaintext,
	})
	if err != nil {
		return nil, err
	}

	controlRomfsSection, err := nca.BuildRomFSSection(mapToFlatTree(control))
	if err != nil {
		return nil, err
	}
	controlResult, err := nca.Assemble(nca.AssembleOptions{
		KeySet: keySet, KeyGeneration: keyGen, KeyAreaKey: kak,
		TitleID: titleID, SdkVersion: sdkVersion,
		ContentType: nca.ContentTypeControl, Sections: []*nca.Section{controlRomfsSection},
		Sign: sign, Plaintext: opts.Plaintext,
	})
	if err != nil {
		return nil, err
	}

	records := []cnmt.ContentRecord{
		{Hash: nsacrypto.SHA256(programResult.Bytes), Size: uint64(len(programResult.Bytes)), Type: cnmt.ContentTypeProgram},
		{Hash: nsacrypto.SHA256(controlResult.Bytes), Size: uint64(len(controlResult.Bytes)), Type: cnmt.ContentTypeControl},
	}
	files := []namedNca{
		{id: programResult.ID, ext: ".nca", data: programResult.Bytes},
		{id: controlResult.ID, ext: ".nca", data: controlResult.Bytes},
	}

	if opts.HtmlDoc != nil {
		sec, err := nca.BuildRomFSSection(opts.HtmlDoc)
		if err != nil {
			return nil, err
		}
		res, err := nca.Assemble(nca.AssembleOptions{
			KeySet: keySet, KeyGeneration: keyGen, KeyAreaKey: kak,
			TitleID: titleID, SdkVersion: sdkVersion,
			ContentType: nca.ContentTypeManual, Sections: []*nca.Section{sec},
			Sign: sign, Plaintext: opts.Plaintext,
		})
		if err != nil {
			return nil, err
		}
		records = append(records, cnmt.ContentRecord{Hash: nsacrypto.SHA256(res.Bytes), Size: uint64(len(res.Bytes)), Type: cnmt.ContentTypeManualHtmlDoc})
		files = append(files, namedNca{id: res.ID, ext: ".nca", data: res.Bytes})
	}

	if opts.LegalInfo != nil {
		sec, err := nca.BuildRomFSSection(opts.LegalInfo)
		if err != nil {
			return nil, err
		}
		res, err := nca.Assemble(nca.AssembleOptions{
			KeySet: keySet, KeyGeneration: keyGen, KeyAreaKey: kak,
			TitleID: titleID, SdkVersion: sdkVersion,
			ContentType: nca.ContentTypeManual, Sections: []*nca.Section{sec},
			Sign: sign, Plaintext: opts.Plaintext,
		})
		if err != nil {
			return nil, err
		}
		records = append(records, cnmt.ContentRecord{Hash: nsacrypto.SHA256(res.Bytes), Size: uint64(len(res.Bytes)), Type: cnmt.ContentTypeLegalInfo})
		files = append(files, namedNca{id: res.ID, ext: ".nca", data: res.Bytes})
	}

	cnmtBytes := cnmt.Build(titleID, 0, records)
	cnmtName := fmt.Sprintf("Application_%016x.cnmt", titleID)
	metaSection, err := nca.BuildPFS0Section([]pfs0.InputFile{{Name: cnmtName, Data: cnmtBytes}}, controlBlockSize, nca.CryptTypeNone)
	if err != nil {
		return nil, err
	}
	metaResult, err := nca.Assemble(nca.AssembleOptions{
		KeySet: keySet, KeyGeneration: keyGen, KeyAreaKey: kak,
		TitleID: titleID, SdkVersion: sdkVersion,
		ContentType: nca.ContentTypeMeta, Sections: []*nca.Section{metaSection},
		Sign: sign, Plaintext: opts.Plaintext,
	})
	if err != nil {
		return nil, err
	}
	files = append(files, namedNca{id: metaResult.ID, ext: ".cnmt.nca", data: metaResult.Bytes})

	nspFiles := make([]pfs0.InputFile, len(files))
	ncaIDs := make([]string, len(files))
	for i, f := range files {
		nspFiles[i] = pfs0.InputFile{Name: f.id + f.ext, Data: f.data}
		ncaIDs[i] = f.id
	}

	return &Result{
		NSP:      pfs0.Build(nspFiles),
		TitleID:  titleID,
		NcaIDs:   ncaIDs,
		Filename: fmt.Sprintf("%016x.nsp", titleID),
	}, nil
}

type namedNca struct {
	id   string
	ext  string
	data []byte
}

func resolveKeySet(opts Options) (*keys.KeySet, error) {
	if opts.KeysText != "" {
		return keys.Derive(opts.KeysText)
	}
	return opts.KeySet, nil
}

func validate(opts Options) error {
	var verr *multierror.Error
	if _, ok := opts.ExeFS["main.npdm"]; !ok {
		verr = multierror.Append(verr, ncaerr.New(ncaerr.MissingInput, "exefs main.npdm"))
	}
	if opts.Control == nil {
		verr = multierror.Append(verr, ncaerr.New(ncaerr.MissingInput, "control map"))
	} else {
		if _, ok := opts.Control["control.nacp"]; !ok {
			verr = multierror.Append(verr, ncaerr.New(ncaerr.MissingInput, "control control.nacp"))
		}
		icons := 0
		for name := range opts.Control {
			if name != "control.nacp" {
				icons++
			}
		}
		if icons == 0 {
			verr = multierror.Append(verr, ncaerr.New(ncaerr.MissingInput, "control icon"))
		}
	}
	if opts.KeysText == "" && opts.KeySet == nil && !opts.Plaintext {
		verr = multierror.Append(verr, ncaerr.New(ncaerr.MissingInput, "keys"))
	}
	return verr.ErrorOrNil()
}

func cloneMap(in map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(in))
	for k, v := range in {
		cp := make([]byte, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

func mapToInputFiles(m map[string][]byte) []pfs0.InputFile {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	files := make([]pfs0.InputFile, len(names))
	for i, name := range names {
		files[i] = pfs0.InputFile{Name: name, Data: m[name]}
	}
	return files
}

// mapToFlatTree turns a flat name→bytes map into a single-level RomFS tree,
// used for the control partition and the logo partition (spec.md §4.11
// steps 4, 6).
func mapToFlatTree(m map[string][]byte) *romfs.Entry {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	children := make([]*romfs.Entry, len(names))
	for i, name := range names {
		children[i] = &romfs.Entry{Name: name, Data: m[name]}
	}
	return &romfs.Entry{Children: children}
}
