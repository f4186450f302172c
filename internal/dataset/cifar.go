package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/born-ml/resnet/internal/tensor"
)

// CIFAR-10 binary layout: each record is one label byte followed by a 32x32
// image stored as 1024 red, 1024 green, then 1024 blue bytes.
const (
	CIFARChannels = 3
	CIFARSide     = 32
	CIFARImage    = CIFARChannels * CIFARSide * CIFARSide
	cifarRecord   = 1 + CIFARImage

	// CIFARDir is the directory created by extracting the binary archive.
	CIFARDir = "cifar-10-batches-bin"
	// CIFARURL is the canonical location of the binary archive.
	CIFARURL = "https://www.cs.toronto.edu/~kriz/cifar-10-binary.tar.gz"
)

// Classes are the CIFAR-10 class names, indexed by label.
var Classes = []string{
	"airplane", "automobile", "bird", "cat", "deer",
	"dog", "frog", "horse", "ship", "truck",
}

// TrainFiles are the five training batches.
var TrainFiles = []string{
	"data_batch_1.bin", "data_batch_2.bin", "data_batch_3.bin", "data_batch_4.bin", "data_batch_5.bin",
}

// TestFile is the held-out test batch.
const TestFile = "test_batch.bin"

// ErrCorruptRecord is returned for truncated records or labels outside the class list.
var ErrCorruptRecord = errors.New("corrupt CIFAR-10 record")

// CIFARShape is the per-sample image shape.
func CIFARShape() tensor.Shape {
	return tensor.Shape{CIFARChannels, CIFARSide, CIFARSide}
}

// ParseCIFAR reads binary records from r until EOF.
func ParseCIFAR(r io.Reader) (*Memory, error) {
	br := bufio.NewReaderSize(r, 64*cifarRecord)
	record := make([]byte, cifarRecord)
	images := make([]byte, 0, 10000*CIFARImage)
	labels := make([]int32, 0, 10000)

	for n := 0; ; n++ {
		_, err := io.ReadFull(br, record)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: record %d is truncated", ErrCorruptRecord, n)
		}
		if err != nil {
			return nil, fmt.Errorf("read record %d: %w", n, err)
		}
		if int(record[0]) >= len(Classes) {
			return nil, fmt.Errorf("%w: record %d has label %d", ErrCorruptRecord, n, record[0])
		}
		labels = append(labels, int32(record[0]))
		images = append(images, record[1:]...)
	}
	return NewMemory(CIFARShape(), images, labels)
}

// LoadCIFARFile parses one batch file.
func LoadCIFARFile(path string) (*Memory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := ParseCIFAR(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// LoadCIFAR10 loads the training set (all five batches) or the test batch from
// root/cifar-10-batches-bin.
func LoadCIFAR10(root string, train bool) (*Memory, error) {
	files := []string{TestFile}
	if train {
		files = TrainFiles
	}
	parts := make([]*Memory, 0, len(files))
	for _, name := range files {
		m, err := LoadCIFARFile(filepath.Join(root, CIFARDir, name))
		if err != nil {
			return nil, err
		}
		parts = append(parts, m)
	}
	return Concat(parts...)
}
