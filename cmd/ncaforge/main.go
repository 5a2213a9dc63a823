// Command ncaforge is a small CLI demo over the nca-forge library: build an
// NSP from a directory layout, decompress an NCZ-compressed NCA back to a
// regular encrypted NCA, or dump an NCA header's fields.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/falk/nca-forge/pkg/bytesource"
	"github.com/falk/nca-forge/pkg/keys"
	"github.com/falk/nca-forge/pkg/nca"
	"github.com/falk/nca-forge/pkg/ncz"
	"github.com/falk/nca-forge/pkg/nsp"
	"github.com/falk/nca-forge/pkg/romfs"
)

func main() {
	keysPath := flag.String("k", "", "path to prod.keys")
	mode := flag.String("mode", "build", "build | unncz | inspect")
	out := flag.String("out", "", "output path")
	titleName := flag.String("title", "", "override title name (build mode)")
	publisher := flag.String("publisher", "", "override publisher (build mode)")
	plaintext := flag.Bool("plaintext", false, "skip NCA crypto (build mode)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Println("Usage: ncaforge [options] <input>")
		flag.PrintDefaults()
		return
	}
	input := args[0]

	var keyText string
	if *keysPath != "" {
		buf, err := os.ReadFile(*keysPath)
		if err != nil {
			fmt.Printf("warning: could not read keyfile: %v\n", err)
		} else {
			keyText = string(buf)
		}
	}

	switch *mode {
	case "build":
		runBuild(input, *out, keyText, *titleName, *publisher, *plaintext)
	case "unncz":
		runUnncz(input, *out)
	case "inspect":
		runInspect(input, keyText)
	default:
		fmt.Printf("unknown mode %q\n", *mode)
	}
}

func runBuild(dir, out, keyText, titleName, publisher string, plaintext bool) {
	exefs, err := loadFileMap(filepath.Join(dir, "exefs"))
	if err != nil {
		fmt.Printf("error loading exefs: %v\n", err)
		return
	}
	control, err := loadFileMap(filepath.Join(dir, "control"))
	if err != nil {
		fmt.Printf("error loading control: %v\n", err)
		return
	}
	logo, _ := loadFileMap(filepath.Join(dir, "logo"))

	opts := nsp.Options{
		KeysText:       keyText,
		ExeFS:          exefs,
		Control:        control,
		Logo:           logo,
		Plaintext:      plaintext,
		NoSignNcaSig2:  false,
		TitleName:      titleName,
		TitlePublisher: publisher,
	}

	if tree, err := dirToRomfsTree(filepath.Join(dir, "romfs")); err == nil {
		opts.RomFS = tree
	}
	if tree, err := dirToRomfsTree(filepath.Join(dir, "htmldoc")); err == nil {
		opts.HtmlDoc = tree
	}
	if tree, err := dirToRomfsTree(filepath.Join(dir, "legalinfo")); err == nil {
		opts.LegalInfo = tree
	}

	result, err := nsp.Build(opts)
	if err != nil {
		fmt.Printf("build failed: %v\n", err)
		return
	}

	outPath := out
	if outPath == "" {
		outPath = result.Filename
	}
	if err := os.WriteFile(outPath, result.NSP, 0o644); err != nil {
		fmt.Printf("error writing nsp: %v\n", err)
		return
	}
	fmt.Printf("wrote %s (titleId %016x, %d content files)\n", outPath, result.TitleID, len(result.NcaIDs))
}

func runUnncz(input, out string) {
	f, err := os.Open(input)
	if err != nil {
		fmt.Printf("error opening %s: %v\n", input, err)
		return
	}
	defer f.Close()

	source, err := bytesource.FromFile(f)
	if err != nil {
		fmt.Printf("error mapping %s: %v\n", input, err)
		return
	}
	defer bytesource.Close(source)

	outPath := out
	if outPath == "" {
		outPath = input + ".nca"
	}
	dst, err := os.Create(outPath)
	if err != nil {
		fmt.Printf("error creating %s: %v\n", outPath, err)
		return
	}
	defer dst.Close()

	sink := &fileSink{f: dst}
	result, err := ncz.Decode(source, sink)
	if err != nil {
		fmt.Printf("decode failed: %v\n", err)
		return
	}
	fmt.Printf("wrote %s (%d bytes, %d sections)\n", outPath, result.NcaSize, len(result.Sections))
}

func runInspect(input, keyText string) {
	f, err := os.Open(input)
	if err != nil {
		fmt.Printf("error opening %s: %v\n", input, err)
		return
	}
	defer f.Close()

	var headerKey []byte
	if keyText != "" {
		ks, err := keys.Derive(keyText)
		if err != nil {
			fmt.Printf("warning: key derivation failed: %v\n", err)
		} else {
			headerKey = ks.HeaderKey[:]
		}
	}

	info, err := nca.Inspect(f, headerKey)
	if err != nil {
		fmt.Printf("inspect failed: %v\n", err)
		return
	}

	fmt.Printf("contentType=%d keyGeneration=%d titleId=%016x contentSize=%d sdkVersion=%#x\n",
		info.ContentType, info.KeyGeneration, info.TitleID, info.ContentSize, info.SdkVersion)
	for i, fh := range info.FsHeaders {
		if !fh.Present {
			continue
		}
		fmt.Printf("  section %d: fsType=%d hashType=%d cryptType=%d sectionCtr=%d\n",
			i, fh.FsType, fh.HashType, fh.CryptType, fh.SectionCtr)
	}
}

// fileSink writes decoded NCZ bytes to an *os.File at the given offsets.
type fileSink struct{ f *os.File }

func (s *fileSink) Write(offset uint64, data []byte) error {
	_, err := s.f.WriteAt(data, int64(offset))
	return err
}

func loadFileMap(dir string) (map[string][]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out[e.Name()] = data
	}
	return out, nil
}

// dirToRomfsTree recursively loads dir into a romfs.Entry tree.
func dirToRomfsTree(dir string) (*romfs.Entry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	root := &romfs.Entry{}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			child, err := dirToRomfsTree(path)
			if err != nil {
				return nil, err
			}
			child.Name = e.Name()
			root.Children = append(root.Children, child)
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		root.Children = append(root.Children, &romfs.Entry{Name: e.Name(), Data: data})
	}
	return root, nil
}
