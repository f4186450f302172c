package dataset

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// HasCIFAR10 reports whether every batch file exists under root.
func HasCIFAR10(root string) bool {
	for _, name := range append([]string{TestFile}, TrainFiles...) {
		if _, err := os.Stat(filepath.Join(root, CIFARDir, name)); err != nil {
			return false
		}
	}
	return true
}

// Download fetches the CIFAR-10 binary archive from url and extracts the batch
// files into root/cifar-10-batches-bin. It does nothing if the files are already there.
func Download(ctx context.Context, root, url string) error {
	if HasCIFAR10(root) {
		return nil
	}
	if url == "" {
		url = CIFARURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: %s", url, resp.Status)
	}

	return extractBatches(resp.Body, filepath.Join(root, CIFARDir))
}

// extractBatches unpacks the known batch files of a .tar.gz stream into dir.
// Other archive entries are skipped.
func extractBatches(r io.Reader, dir string) error {
	wanted := map[string]bool{TestFile: true}
	for _, name := range TrainFiles {
		wanted[name] = true
	}

	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tr := tar.NewReader(gz)
	found := 0
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}
		name := filepath.Base(hdr.Name)
		if hdr.Typeflag != tar.TypeReg || !wanted[name] {
			continue
		}
		if err := writeAtomic(filepath.Join(dir, name), tr); err != nil {
			return err
		}
		found++
	}
	if found != len(wanted) {
		return fmt.Errorf("archive held %d of %d batch files", found, len(wanted))
	}
	return nil
}

func writeAtomic(path string, r io.Reader) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("extract %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
