package dataset_test

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/born-ml/resnet/internal/dataset"
	"github.com/born-ml/resnet/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func cifarRecords(labels ...byte) []byte {
	var buf bytes.Buffer
	for i, l := range labels {
		buf.WriteByte(l)
		buf.Write(bytes.Repeat([]byte{byte(i)}, dataset.CIFARImage))
	}
	return buf.Bytes()
}

func TestSplitIndices(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	train, valid, err := dataset.SplitIndices(100, 0.2, rng)
	require.NoError(t, err)

	assert.Len(t, train, 80)
	assert.Len(t, valid, 20)

	all := append(append([]int(nil), train...), valid...)
	sort.Ints(all)
	assert.Equal(t, dataset.Range(100), all, "train and valid partition [0, n)")
}

func TestSplitIndices_Floor(t *testing.T) {
	train, valid, err := dataset.SplitIndices(7, 0.2, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	assert.Len(t, valid, 1)
	assert.Len(t, train, 6)

	_, _, err = dataset.SplitIndices(10, 1, rand.New(rand.NewSource(3)))
	assert.Error(t, err)
	_, _, err = dataset.SplitIndices(10, -0.1, rand.New(rand.NewSource(3)))
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	assert.InDelta(t, -1, dataset.NormalizeByte(0), 1e-6)
	assert.InDelta(t, 1, dataset.NormalizeByte(255), 1e-6)
	assert.InDelta(t, 0.00392, dataset.NormalizeByte(128), 1e-4)

	dst := make([]float32, 2)
	dataset.Normalize(dst, []byte{0, 255})
	assert.Equal(t, []float32{-1, 1}, dst)
}

func TestParseCIFAR(t *testing.T) {
	m, err := dataset.ParseCIFAR(bytes.NewReader(cifarRecords(3, 9)))
	require.NoError(t, err)

	assert.Equal(t, 2, m.Len())
	assert.Equal(t, tensor.Shape{3, 32, 32}, m.Shape())
	assert.Equal(t, []int32{3, 9}, m.Labels())

	s, err := m.Sample(1)
	require.NoError(t, err)
	assert.Equal(t, 9, s.Label)
	assert.Len(t, s.Image, dataset.CIFARImage)
	assert.InDelta(t, dataset.NormalizeByte(1), s.Image[0], 1e-7)

	_, err = m.Sample(2)
	assert.ErrorIs(t, err, dataset.ErrIndexOutOfRange)
}

func TestParseCIFAR_Corrupt(t *testing.T) {
	data := cifarRecords(1)
	_, err := dataset.ParseCIFAR(bytes.NewReader(data[:len(data)-5]))
	assert.ErrorIs(t, err, dataset.ErrCorruptRecord)

	_, err = dataset.ParseCIFAR(bytes.NewReader(cifarRecords(10)))
	assert.ErrorIs(t, err, dataset.ErrCorruptRecord)
}

func TestSynthetic(t *testing.T) {
	a, err := dataset.Synthetic(25, 10, 8, 42)
	require.NoError(t, err)
	b, err := dataset.Synthetic(25, 10, 8, 42)
	require.NoError(t, err)

	assert.Equal(t, 25, a.Len())
	assert.Equal(t, tensor.Shape{3, 8, 8}, a.Shape())
	assert.Equal(t, a.Labels(), b.Labels())

	sa, err := a.Sample(7)
	require.NoError(t, err)
	sb, err := b.Sample(7)
	require.NoError(t, err)
	assert.Equal(t, sa, sb)
	assert.Equal(t, 7, sa.Label)
	for _, v := range sa.Image {
		assert.True(t, v >= -1 && v <= 1)
	}

	_, err = dataset.Synthetic(10, 0, 8, 1)
	assert.Error(t, err)
}

func TestLoader_PartialLastBatch(t *testing.T) {
	ds, err := dataset.Synthetic(10, 10, 4, 1)
	require.NoError(t, err)
	loader, err := dataset.NewLoader(ds, nil, dataset.LoaderConfig{BatchSize: 4})
	require.NoError(t, err)

	assert.Equal(t, 10, loader.Len())
	assert.Equal(t, 3, loader.NumBatches())

	batches, errs := loader.Batches(context.Background())
	var sizes []int
	var labels []int32
	for b := range batches {
		sizes = append(sizes, b.Size)
		assert.Equal(t, tensor.Shape{b.Size, 3, 4, 4}, b.Images.Shape())
		labels = append(labels, b.Labels.AsInt32()...)
	}
	require.NoError(t, <-errs)

	assert.Equal(t, []int{4, 4, 2}, sizes)
	assert.Equal(t, []int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, labels)
}

func TestLoader_ShuffleSubset(t *testing.T) {
	ds, err := dataset.Synthetic(20, 20, 2, 1)
	require.NoError(t, err)
	subset := []int{2, 4, 6, 8, 10, 12}
	loader, err := dataset.NewLoader(ds, subset, dataset.LoaderConfig{BatchSize: 4, Shuffle: true, Prefetch: 2, Seed: 9})
	require.NoError(t, err)

	epoch := func() []int {
		batches, errs := loader.Batches(context.Background())
		var seen []int
		for b := range batches {
			for _, l := range b.Labels.AsInt32() {
				seen = append(seen, int(l))
			}
		}
		require.NoError(t, <-errs)
		return seen
	}

	first := epoch()
	second := epoch()
	assert.ElementsMatch(t, subset, first)
	assert.ElementsMatch(t, subset, second)
}

func TestLoader_Cancel(t *testing.T) {
	ds, err := dataset.Synthetic(64, 10, 2, 1)
	require.NoError(t, err)
	loader, err := dataset.NewLoader(ds, nil, dataset.LoaderConfig{BatchSize: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	batches, errs := loader.Batches(ctx)
	<-batches
	cancel()
	for range batches {
	}
	assert.ErrorIs(t, <-errs, context.Canceled)
}

func TestNewLoader_Invalid(t *testing.T) {
	ds, err := dataset.Synthetic(4, 2, 2, 1)
	require.NoError(t, err)

	_, err = dataset.NewLoader(ds, nil, dataset.LoaderConfig{BatchSize: 0})
	assert.Error(t, err)
	_, err = dataset.NewLoader(ds, []int{4}, dataset.LoaderConfig{BatchSize: 1})
	assert.ErrorIs(t, err, dataset.ErrIndexOutOfRange)
}

func archive(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: dataset.CIFARDir + "/", Typeflag: tar.TypeDir, Mode: 0o755}))
	for name, data := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     dataset.CIFARDir + "/" + name,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(data)),
		}))
		_, err := tw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestDownload(t *testing.T) {
	files := map[string][]byte{
		dataset.TestFile:   cifarRecords(0, 1),
		"batches.meta.txt": []byte("airplane\n"),
	}
	for i, name := range dataset.TrainFiles {
		files[name] = cifarRecords(byte(i))
	}
	body := archive(t, files)

	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	root := t.TempDir()
	require.NoError(t, dataset.Download(context.Background(), root, srv.URL))
	assert.True(t, dataset.HasCIFAR10(root))
	_, err := os.Stat(filepath.Join(root, dataset.CIFARDir, "batches.meta.txt"))
	assert.True(t, os.IsNotExist(err))

	train, err := dataset.LoadCIFAR10(root, true)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 2, 3, 4}, train.Labels())

	test, err := dataset.LoadCIFAR10(root, false)
	require.NoError(t, err)
	assert.Equal(t, 2, test.Len())

	// Cached files are not fetched again.
	require.NoError(t, dataset.Download(context.Background(), root, srv.URL))
	assert.Equal(t, 1, requests)
}

func TestDownload_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	err := dataset.Download(context.Background(), t.TempDir(), srv.URL)
	assert.Error(t, err)
}
