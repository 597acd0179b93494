// Package backup creates and restores archives of the Treeline database
// and configuration.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Backup writes a gzipped tar archive containing a consistent snapshot of
// the database and, when configPath is non-empty, the config file.
// The snapshot is taken with VACUUM INTO so a live database (WAL mode
// included) can be backed up safely.
func Backup(ctx context.Context, dbPath, configPath, archivePath string) error {
	if _, err := os.Stat(dbPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("database file not found: %s", dbPath)
		}
		return fmt.Errorf("checking database file: %w", err)
	}

	stagingDir, err := os.MkdirTemp("", "treeline-backup-")
	if err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	snapshot := filepath.Join(stagingDir, filepath.Base(dbPath))
	if err := snapshotDB(ctx, dbPath, snapshot); err != nil {
		return fmt.Errorf("snapshotting database: %w", err)
	}

	if err := writeArchive(archivePath, snapshot, configPath); err != nil {
		os.Remove(archivePath)
		return err
	}

	return nil
}

// snapshotDB copies the database at src to dst via VACUUM INTO, producing
// a compact single-file snapshot independent of any WAL sidecar files.
func snapshotDB(ctx context.Context, src, dst string) error {
	db, err := sql.Open("sqlite", src)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", dst); err != nil {
		return fmt.Errorf("vacuum into: %w", err)
	}
	return nil
}

// writeArchive creates a tar.gz at archivePath containing the snapshot
// and, when set, the config file. Entries use base names only so the
// archive restores into a flat directory.
func writeArchive(archivePath, snapshot, configPath string) error {
	f, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}

	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)

	if err := addFile(tw, snapshot, filepath.Base(snapshot)); err != nil {
		f.Close()
		return fmt.Errorf("archiving database: %w", err)
	}

	if configPath != "" {
		if err := addFile(tw, configPath, filepath.Base(configPath)); err != nil {
			f.Close()
			return fmt.Errorf("archiving config: %w", err)
		}
	}

	if err := tw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalizing archive: %w", err)
	}
	if err := gw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("compressing archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing archive: %w", err)
	}

	return nil
}

// addFile appends a single file to the tar stream under entryName.
func addFile(tw *tar.Writer, path, entryName string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = entryName

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = io.Copy(tw, src)
	return err
}
