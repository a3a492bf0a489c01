package exe

import (
	"bytes"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	img := Image{
		StaticData: []byte("hello\x00"),
		Program:    []byte{1, 2, 3, 4, 5},
	}

	var buf bytes.Buffer
	if err := Write(&buf, img); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got.StaticData, img.StaticData) {
		t.Errorf("StaticData = %v, want %v", got.StaticData, img.StaticData)
	}
	if !bytes.Equal(got.Program, img.Program) {
		t.Errorf("Program = %v, want %v", got.Program, img.Program)
	}
}

func TestWriteFileReadFileRoundTrip(t *testing.T) {
	img := Image{
		StaticData: []byte{9, 9, 9},
		Program:    []byte{0xaa, 0xbb},
	}

	path := t.TempDir() + "/test.teax"
	if err := WriteFile(path, img); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got.StaticData, img.StaticData) || !bytes.Equal(got.Program, img.Program) {
		t.Errorf("got %+v, want %+v", got, img)
	}
}

func TestParseHeaderOnly(t *testing.T) {
	// A bare all-zero header is a valid image with empty regions.
	img, err := Parse(make([]byte, 16))
	if err != nil {
		t.Fatalf("Parse(header only): %v", err)
	}
	if len(img.StaticData) != 0 || len(img.Program) != 0 {
		t.Errorf("expected empty image, got %+v", img)
	}
}

func TestParseMissingHeaderIsError(t *testing.T) {
	if _, err := Parse(nil); err == nil {
		t.Fatal("expected error for a zero-byte file")
	}
}

func TestParseTruncatedHeader(t *testing.T) {
	_, err := Parse([]byte{1, 2, 3})
	if err == nil {
		t.Fatal("expected error for truncated header")
	}
	if _, ok := err.(*LoadError); !ok {
		t.Errorf("expected *LoadError, got %T", err)
	}
}

func TestParseInconsistentSizes(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, Image{StaticData: []byte{1, 2}, Program: []byte{3, 4, 5}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// Corrupt the declared program size so it no longer matches the body.
	data := buf.Bytes()
	data[8] = 0xff

	_, err := Parse(data)
	if err == nil {
		t.Fatal("expected error for inconsistent header sizes")
	}
}

func TestReadFileMissing(t *testing.T) {
	if _, err := ReadFile("/nonexistent/path/to/nowhere.teax"); err == nil {
		t.Fatal("expected error reading a missing file")
	}
}
