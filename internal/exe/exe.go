// Package exe implements the on-disk executable format: two little-endian
// u64 headers (static_data_size, program_size) followed by the two byte
// regions.
package exe

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// LoadError is returned for every failure reading back an executable
// image: a truncated file or headers that don't match the actual region
// lengths.
type LoadError struct {
	msg string
}

func (e *LoadError) Error() string { return e.msg }

func loadErrf(format string, args ...any) *LoadError {
	return &LoadError{msg: fmt.Sprintf(format, args...)}
}

const headerSize = 16 // two little-endian u64 sizes

// Image is a loaded (or about-to-be-written) executable: the static-data
// region and the program region, in on-disk order.
type Image struct {
	StaticData []byte
	Program    []byte
}

// Write serializes img to w as {static_data_size, program_size, static
// data, program}, all little-endian. The whole image is assembled in
// memory first and handed to w in a single Write call.
func Write(w io.Writer, img Image) error {
	buf := make([]byte, headerSize, headerSize+len(img.StaticData)+len(img.Program))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(len(img.StaticData)))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(len(img.Program)))
	buf = append(buf, img.StaticData...)
	buf = append(buf, img.Program...)

	_, err := w.Write(buf)
	return err
}

// WriteFile assembles img's byte stream in memory and atomically-enough
// writes it to path: nothing is created until the full image is built, so
// a failing compile never leaves a partial .teax behind.
func WriteFile(path string, img Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := Write(f, img); err != nil {
		return err
	}
	return f.Close()
}

// Read parses an executable image from r, validating that the header
// sizes match the actual bytes available.
func Read(r io.Reader) (Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Image{}, err
	}
	return Parse(data)
}

// Parse parses an executable image already fully read into memory.
func Parse(data []byte) (Image, error) {
	if len(data) < headerSize {
		return Image{}, loadErrf("truncated file: header requires %d bytes, got %d", headerSize, len(data))
	}
	staticSize := binary.LittleEndian.Uint64(data[0:8])
	programSize := binary.LittleEndian.Uint64(data[8:16])

	want := headerSize + staticSize + programSize
	if uint64(len(data)) != want {
		return Image{}, loadErrf("inconsistent header sizes: header declares %d static + %d program bytes (%d total with header), file has %d",
			staticSize, programSize, want, len(data))
	}

	body := data[headerSize:]
	return Image{
		StaticData: body[:staticSize],
		Program:    body[staticSize : staticSize+programSize],
	}, nil
}

// ReadFile reads and parses an executable image from path.
func ReadFile(path string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, err
	}
	return Parse(data)
}
