package mnist

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func idxLabels(t *testing.T, magic uint32, labels []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, []uint32{magic, uint32(len(labels))}))
	buf.Write(labels)

	return buf.Bytes()
}

func idxImages(t *testing.T, magic uint32, rows, cols int, pixels [][]byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, []uint32{magic, uint32(len(pixels)), uint32(rows), uint32(cols)}))
	for _, p := range pixels {
		buf.Write(p)
	}

	return buf.Bytes()
}

func writeGzip(t *testing.T, path string, data []byte) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := gzip.NewWriter(f)
	_, err = zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	writeGzip(t, filepath.Join(dir, "train-labels-idx1-ubyte.gz"), idxLabels(t, labelsMagic, []byte{3, 7}))
	writeGzip(t, filepath.Join(dir, "train-images-idx3-ubyte.gz"), idxImages(t, imagesMagic, 2, 2, [][]byte{
		{0, 255, 51, 102},
		{255, 255, 0, 0},
	}))

	ds, err := Load(dir, "train", Options{Normalize: true})
	require.NoError(t, err)

	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, []int{3, 7}, ds.Labels)
	assert.Equal(t, 2, ds.Rows)
	assert.Equal(t, 2, ds.Cols)
	assert.InDeltaSlice(t, []float64{0, 1, 0.2, 0.4}, ds.Images[0], 1e-12)

	raw, err := Load(dir, "train", Options{})
	require.NoError(t, err)
	assert.Equal(t, []float64{255, 255, 0, 0}, raw.Images[1])
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(dir, "train", Options{})
	assert.ErrorIs(t, err, os.ErrNotExist)

	writeGzip(t, filepath.Join(dir, "bad-labels-idx1-ubyte.gz"), idxLabels(t, 1234, []byte{1}))
	writeGzip(t, filepath.Join(dir, "bad-images-idx3-ubyte.gz"), idxImages(t, imagesMagic, 1, 1, [][]byte{{1}}))

	_, err = Load(dir, "bad", Options{})
	assert.ErrorIs(t, err, ErrBadMagic)

	writeGzip(t, filepath.Join(dir, "odd-labels-idx1-ubyte.gz"), idxLabels(t, labelsMagic, []byte{1, 2, 3}))
	writeGzip(t, filepath.Join(dir, "odd-images-idx3-ubyte.gz"), idxImages(t, imagesMagic, 1, 1, [][]byte{{1}}))

	_, err = Load(dir, "odd", Options{})
	assert.ErrorIs(t, err, ErrCountMismatch)
}

func TestReadImagesTruncated(t *testing.T) {
	data := idxImages(t, imagesMagic, 2, 2, [][]byte{{1, 2, 3, 4}})

	_, err := ReadImages(bytes.NewReader(data[:len(data)-1]), false)
	assert.Error(t, err)
}

func TestReadImagesRejectsBadDimensions(t *testing.T) {
	for name, dims := range map[string][2]int{
		"overflowing": {65536, 65536},
		"zero rows":   {0, 28},
		"too large":   {2048, 1024},
	} {
		t.Run(name, func(t *testing.T) {
			data := idxImages(t, imagesMagic, dims[0], dims[1], [][]byte{nil, nil})

			_, err := ReadImages(bytes.NewReader(data), false)
			assert.ErrorIs(t, err, ErrBadHeader)
		})
	}
}

func TestReadHugeCountWithoutData(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, []uint32{imagesMagic, 1 << 31, 28, 28}))

	_, err := ReadImages(bytes.NewReader(buf.Bytes()), false)
	assert.ErrorIs(t, err, io.EOF)

	buf.Reset()
	require.NoError(t, binary.Write(&buf, binary.BigEndian, []uint32{labelsMagic, 1 << 31}))
	buf.Write([]byte{1, 2, 3})

	_, err = ReadLabels(bytes.NewReader(buf.Bytes()))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadLabelsSpansChunks(t *testing.T) {
	labels := make([]byte, readChunk*2+5)
	for i := range labels {
		labels[i] = byte(i % NumClasses)
	}

	got, err := ReadLabels(bytes.NewReader(idxLabels(t, labelsMagic, labels)))
	require.NoError(t, err)
	require.Len(t, got, len(labels))
	assert.Equal(t, (readChunk*2+4)%NumClasses, got[readChunk*2+4])
}

func TestOneHot(t *testing.T) {
	assert.Equal(t, [][]float64{
		{0, 1, 0},
		{1, 0, 0},
		{0, 0, 0},
	}, OneHot([]int{1, 0, 5}, 3))
}

// synthetic builds a dataset with perClass examples of each class; pixel 0
// stores the example's index so provenance can be checked.
func synthetic(classes, perClass int) Dataset {
	ds := Dataset{Rows: 1, Cols: 2}

	for c := 0; c < classes; c++ {
		for i := 0; i < perClass; i++ {
			ds.Images = append(ds.Images, []float64{float64(len(ds.Labels)), float64(c)})
			ds.Labels = append(ds.Labels, c)
		}
	}

	return ds
}

func TestSplitOneShot(t *testing.T) {
	train := synthetic(10, 6)
	test := synthetic(10, 3)

	split, err := SplitOneShot(train, test, 5, 2, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	require.Len(t, split.TargetClasses, 5)

	targets := map[int]bool{}
	for _, c := range split.TargetClasses {
		targets[c] = true
	}

	assert.Len(t, targets, 5, "target classes must be distinct")

	assert.Equal(t, 10, split.Labeled.Len())
	assert.Equal(t, 15, split.Test.Len())
	assert.Equal(t, 20, split.Unlabeled.Len())
	assert.Equal(t, 30, split.Auxiliary.Len())

	// Labeled examples come in class blocks following TargetClasses.
	for i, l := range split.Labeled.Labels {
		assert.Equal(t, split.TargetClasses[i/2], l)
	}

	for _, l := range split.Test.Labels {
		assert.True(t, targets[l])
	}

	for _, l := range split.Auxiliary.Labels {
		assert.False(t, targets[l])
	}

	// Labeled and unlabeled partition the target-class examples.
	seen := map[float64]bool{}
	for _, img := range append(split.Labeled.Images, split.Unlabeled.Images...) {
		assert.False(t, seen[img[0]], "example %v used twice", img[0])
		seen[img[0]] = true
	}

	assert.Len(t, seen, 30)
}

func TestSplitOneShotErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	_, err := SplitOneShot(synthetic(3, 5), synthetic(3, 1), 4, 1, rng)
	assert.ErrorIs(t, err, ErrNotEnoughClasses)

	_, err = SplitOneShot(synthetic(3, 1), synthetic(3, 1), 2, 2, rng)
	assert.ErrorIs(t, err, ErrNotEnoughExamples)

	_, err = SplitOneShot(synthetic(3, 1), synthetic(3, 1), 0, 1, rng)
	assert.Error(t, err)
}

func TestSampleAndConcat(t *testing.T) {
	ds := synthetic(2, 5)
	rng := rand.New(rand.NewSource(2))

	assert.Equal(t, 4, Sample(ds, 4, rng).Len())
	assert.Equal(t, 10, Sample(ds, 50, rng).Len())

	joined := Dataset{}.Concat(ds)
	assert.Equal(t, 10, joined.Len())
	assert.Equal(t, 1, joined.Rows)
	assert.Equal(t, 2, joined.Cols)
}
