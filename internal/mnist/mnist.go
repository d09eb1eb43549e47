// Package mnist loads MNIST-format (IDX) image datasets such as MNIST and
// Fashion-MNIST, and samples one-shot learning splits from them.
package mnist

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// IDX magic numbers: 0x00000801 (unsigned byte, 1 dim) and 0x00000803
// (unsigned byte, 3 dims).
const (
	labelsMagic = 2049
	imagesMagic = 2051
)

// NumClasses is the number of classes in MNIST and Fashion-MNIST.
const NumClasses = 10

var (
	// ErrBadMagic is returned when a file does not start with the expected
	// IDX magic number.
	ErrBadMagic = errors.New("mnist: bad IDX magic number")

	// ErrCountMismatch is returned when the images and labels files disagree
	// on the number of examples.
	ErrCountMismatch = errors.New("mnist: image and label counts differ")

	// ErrBadHeader is returned for image headers with unusable dimensions.
	ErrBadHeader = errors.New("mnist: bad IDX header")
)

// maxPixels bounds rows*cols of a single image.
const maxPixels = 1 << 20

// readChunk is how many examples are buffered at a time; counts in a
// header are not trusted for allocation.
const readChunk = 4096

// Dataset is a set of grayscale images with integer class labels. Each image
// is a row-major Rows*Cols slice.
//
// Datasets derived with Subset or Concat share image slices with their
// source; images are treated as read-only.
type Dataset struct {
	Images [][]float64
	Labels []int
	Rows   int
	Cols   int
}

// Len returns the number of examples.
func (d Dataset) Len() int { return len(d.Labels) }

// Subset returns the examples at idx, in that order.
func (d Dataset) Subset(idx []int) Dataset {
	out := Dataset{
		Images: make([][]float64, len(idx)),
		Labels: make([]int, len(idx)),
		Rows:   d.Rows,
		Cols:   d.Cols,
	}

	for i, j := range idx {
		out.Images[i] = d.Images[j]
		out.Labels[i] = d.Labels[j]
	}

	return out
}

// Concat returns d followed by o.
func (d Dataset) Concat(o Dataset) Dataset {
	rows, cols := d.Rows, d.Cols
	if d.Len() == 0 {
		rows, cols = o.Rows, o.Cols
	}

	return Dataset{
		Images: append(append([][]float64(nil), d.Images...), o.Images...),
		Labels: append(append([]int(nil), d.Labels...), o.Labels...),
		Rows:   rows,
		Cols:   cols,
	}
}

// Options controls how Load prepares the data.
type Options struct {
	// Normalize scales pixel values from [0, 255] to [0, 1].
	Normalize bool
}

// Load reads <dir>/<kind>-labels-idx1-ubyte.gz and
// <dir>/<kind>-images-idx3-ubyte.gz, where kind is "train" or "t10k" for
// the standard distribution files.
func Load(dir, kind string, opts Options) (Dataset, error) {
	labelsPath := filepath.Join(dir, kind+"-labels-idx1-ubyte.gz")
	imagesPath := filepath.Join(dir, kind+"-images-idx3-ubyte.gz")

	var labels []int
	if err := readGzip(labelsPath, func(r io.Reader) (err error) {
		labels, err = ReadLabels(r)
		return err
	}); err != nil {
		return Dataset{}, err
	}

	var ds Dataset
	if err := readGzip(imagesPath, func(r io.Reader) (err error) {
		ds, err = ReadImages(r, opts.Normalize)
		return err
	}); err != nil {
		return Dataset{}, err
	}

	if len(labels) != len(ds.Images) {
		return Dataset{}, fmt.Errorf("%w: %d labels, %d images in %s", ErrCountMismatch, len(labels), len(ds.Images), dir)
	}

	ds.Labels = labels

	return ds, nil
}

func readGzip(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("gunzip %s: %w", path, err)
	}
	defer zr.Close()

	if err := fn(bufio.NewReader(zr)); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	return nil
}

// ReadLabels decodes an uncompressed IDX1 label file.
func ReadLabels(r io.Reader) ([]int, error) {
	var header struct {
		Magic uint32
		Count uint32
	}

	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("label header: %w", err)
	}

	if header.Magic != labelsMagic {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBadMagic, header.Magic, labelsMagic)
	}

	count := int(header.Count)
	labels := make([]int, 0, min(count, readChunk))
	raw := make([]byte, readChunk)

	for len(labels) < count {
		chunk := raw[:min(count-len(labels), readChunk)]
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, fmt.Errorf("label data at %d: %w", len(labels), err)
		}

		for _, b := range chunk {
			labels = append(labels, int(b))
		}
	}

	return labels, nil
}

// ReadImages decodes an uncompressed IDX3 image file. Labels are left empty.
func ReadImages(r io.Reader, normalize bool) (Dataset, error) {
	var header struct {
		Magic uint32
		Count uint32
		Rows  uint32
		Cols  uint32
	}

	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return Dataset{}, fmt.Errorf("image header: %w", err)
	}

	if header.Magic != imagesMagic {
		return Dataset{}, fmt.Errorf("%w: got %d, want %d", ErrBadMagic, header.Magic, imagesMagic)
	}

	rows, cols := int(header.Rows), int(header.Cols)
	if rows < 1 || cols < 1 || rows > maxPixels || cols > maxPixels || rows*cols > maxPixels {
		return Dataset{}, fmt.Errorf("%w: %dx%d images", ErrBadHeader, rows, cols)
	}

	size := rows * cols
	count := int(header.Count)
	scale := 1.0
	if normalize {
		scale = 1.0 / 255
	}

	ds := Dataset{
		Images: make([][]float64, 0, min(count, readChunk)),
		Rows:   rows,
		Cols:   cols,
	}

	raw := make([]byte, size)
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(r, raw); err != nil {
			return Dataset{}, fmt.Errorf("image %d: %w", i, err)
		}

		img := make([]float64, size)
		for p, b := range raw {
			img[p] = float64(b) * scale
		}

		ds.Images = append(ds.Images, img)
	}

	return ds, nil
}

// OneHot encodes labels as rows of a len(labels) x classes indicator matrix.
func OneHot(labels []int, classes int) [][]float64 {
	out := make([][]float64, len(labels))
	for i, l := range labels {
		out[i] = make([]float64, classes)
		if l >= 0 && l < classes {
			out[i][l] = 1
		}
	}

	return out
}
