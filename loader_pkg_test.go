// loader_pkg_test.go - Container parsing, extraction and fallback ladder tests

package main

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testPkgTableOffset = 0x100

// buildPKG assembles a big-endian container with the given entries and
// payloads. payloads[i] is written at entries[i].DataOffset.
func buildPKG(t *testing.T, entries []PkgEntry, payloads map[int][]byte, totalSize int) []byte {
	t.Helper()
	hdr := PkgHeader{
		Magic:       PKG_MAGIC,
		EntryCount:  uint32(len(entries)),
		TableOffset: testPkgTableOffset,
		ContentType: 0x1A,
	}
	copy(hdr.ContentID[:], "UP0000-TEST00000_00-WEAREMU000000000")

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, &hdr); err != nil {
		t.Fatal(err)
	}
	out := make([]byte, totalSize)
	copy(out, buf.Bytes())

	var tbl bytes.Buffer
	for _, e := range entries {
		if err := binary.Write(&tbl, binary.BigEndian, &e); err != nil {
			t.Fatal(err)
		}
	}
	copy(out[testPkgTableOffset:], tbl.Bytes())

	for i, p := range payloads {
		copy(out[entries[i].DataOffset:], p)
	}
	return out
}

func writePkgFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "game.pkg")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPkgLoader_MagicValidation(t *testing.T) {
	log := NewLogger(io.Discard)

	if IsPkgFile([]byte{0x7F, 'C', 'N', 'T'}) != true {
		t.Error("IsPkgFile on real magic: got false")
	}
	if IsPkgFile([]byte{0x7F, 'E', 'L', 'F'}) {
		t.Error("IsPkgFile on ELF magic: got true")
	}

	bad := make([]byte, 0x200)
	copy(bad, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	p := NewPkgLoader(log)
	if _, err := p.LoadPackage(writePkgFile(t, bad)); err == nil || !strings.Contains(err.Error(), "magic") {
		t.Errorf("bad magic: got %v, want magic error", err)
	}
}

func TestPkgLoader_EbootExtraction(t *testing.T) {
	log := NewLogger(io.Discard)
	eboot := []byte("\x7FELF fake executable payload")

	data := buildPKG(t, []PkgEntry{
		{ID: 0x0100, DataOffset: 0x400, DataSize: 8},
		{ID: PKG_ENTRY_ID_EBOOT, DataOffset: 0x500, DataSize: uint32(len(eboot))},
	}, map[int][]byte{
		0: []byte("METADATA"),
		1: eboot,
	}, 0x1000)

	p := NewPkgLoader(log)
	info, err := p.LoadPackage(writePkgFile(t, data))
	if err != nil {
		t.Fatalf("LoadPackage: %v", err)
	}
	if info.EntryCount != 2 {
		t.Errorf("EntryCount: got %d, want 2", info.EntryCount)
	}
	if !strings.HasPrefix(info.ContentID, "UP0000-TEST00000") {
		t.Errorf("ContentID: got %q", info.ContentID)
	}

	got, err := p.ExtractEboot()
	if err != nil {
		t.Fatalf("ExtractEboot: %v", err)
	}
	if !bytes.Equal(got, eboot) {
		t.Errorf("eboot bytes: got %q, want %q", got, eboot)
	}
	if idx := p.ChooseEbootEntry(); idx != 1 {
		t.Errorf("ChooseEbootEntry: got %d, want 1", idx)
	}
}

func TestPkgLoader_FallbackToLargest(t *testing.T) {
	log := NewLogger(io.Discard)

	// No 0x1000 entry; one entry points past EOF, one is small, one is
	// the real payload.
	data := buildPKG(t, []PkgEntry{
		{ID: 0x0200, DataOffset: 0x90000, DataSize: 100}, // offset beyond file
		{ID: 0x0300, DataOffset: 0x400, DataSize: 4},
		{ID: 0x0400, DataOffset: 0x500, DataSize: 64},
	}, map[int][]byte{
		1: []byte("tiny"),
		2: bytes.Repeat([]byte{0xAB}, 64),
	}, 0x1000)

	p := NewPkgLoader(log)
	if _, err := p.LoadPackage(writePkgFile(t, data)); err != nil {
		t.Fatalf("LoadPackage: %v", err)
	}
	got, err := p.ExtractEboot()
	if err != nil {
		t.Fatalf("ExtractEboot fallback: %v", err)
	}
	if len(got) != 64 || got[0] != 0xAB {
		t.Errorf("fallback payload: got %d bytes", len(got))
	}
	if idx := p.ChooseEbootEntry(); idx != 2 {
		t.Errorf("ChooseEbootEntry: got %d, want 2", idx)
	}
}

func TestPkgLoader_InvalidEbootFallsBack(t *testing.T) {
	log := NewLogger(io.Discard)

	// 0x1000 exists but claims bytes past EOF; the sanitized fallback
	// still prefers it once clamped, because it is the largest entry.
	data := buildPKG(t, []PkgEntry{
		{ID: PKG_ENTRY_ID_EBOOT, DataOffset: 0xF00, DataSize: 0x9000},
		{ID: 0x0300, DataOffset: 0x400, DataSize: 8},
	}, map[int][]byte{
		1: []byte("12345678"),
	}, 0x1000)

	p := NewPkgLoader(log)
	if _, err := p.LoadPackage(writePkgFile(t, data)); err != nil {
		t.Fatalf("LoadPackage: %v", err)
	}
	got, err := p.ExtractEboot()
	if err != nil {
		t.Fatalf("ExtractEboot: %v", err)
	}
	if len(got) != 0x1000-0xF00 {
		t.Errorf("sanitized size: got %d, want %d", len(got), 0x1000-0xF00)
	}
}

func TestPkgLoader_CorruptionLadder(t *testing.T) {
	log := NewLogger(io.Discard)

	// Entry table extends past the file.
	hdrOnly := buildPKG(t, nil, nil, 0x200)
	binary.BigEndian.PutUint32(hdrOnly[12:], 1000) // EntryCount
	p := NewPkgLoader(log)
	if _, err := p.LoadPackage(writePkgFile(t, hdrOnly)); err == nil {
		t.Error("oversized entry table: got nil error")
	}

	// Every entry unusable.
	data := buildPKG(t, []PkgEntry{
		{ID: 0x0200, DataOffset: 0x90000, DataSize: 100},
		{ID: 0x0300, DataOffset: 0x800, DataSize: 0},
	}, nil, 0x1000)
	p = NewPkgLoader(log)
	if _, err := p.LoadPackage(writePkgFile(t, data)); err != nil {
		t.Fatalf("LoadPackage: %v", err)
	}
	if _, err := p.ExtractEboot(); err == nil {
		t.Error("no extractable entry: got nil error")
	}

	// ExtractEntry on a missing id.
	if _, err := p.ExtractEntry(0x9999); err == nil {
		t.Error("missing entry id: got nil error")
	}
}
