package history

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Export writes every snapshot plus the event log to w as a zstd-compressed
// tar stream. Entries are named history/<snapshot> and events.ndjson.
func (s *Store) Export(w io.Writer) (int, error) {
	snaps, err := s.ListSnapshots()
	if err != nil {
		return 0, err
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("creating zstd encoder: %w", err)
	}
	tw := tar.NewWriter(enc)

	n := 0
	for _, sn := range snaps {
		if err := addFile(tw, filepath.Join(s.Dir, sn.Name), "history/"+sn.Name); err != nil {
			enc.Close()
			return n, err
		}
		n++
	}
	if _, err := os.Stat(s.EventsPath); err == nil {
		if err := addFile(tw, s.EventsPath, filepath.Base(s.EventsPath)); err != nil {
			enc.Close()
			return n, err
		}
		n++
	}

	if err := tw.Close(); err != nil {
		enc.Close()
		return n, fmt.Errorf("closing tar stream: %w", err)
	}
	if err := enc.Close(); err != nil {
		return n, fmt.Errorf("closing zstd stream: %w", err)
	}
	return n, nil
}

func addFile(tw *tar.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	hdr := &tar.Header{
		Name:    name,
		Mode:    0644,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Format:  tar.FormatPAX,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing header for %s: %w", name, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}
