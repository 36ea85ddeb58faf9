package storage

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const archiveMetadataName = "metadata.json"

// ArchiveMetadata describes the database stored inside a backup archive.
type ArchiveMetadata struct {
	DatabaseName string    `json:"database_name"`
	SizeBytes    int64     `json:"size_bytes"`
	Checksum     string    `json:"checksum"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateArchive packs the database file into a zip archive alongside a
// metadata record carrying its SHA-256 checksum. The archive holds exactly
// one .db member, which is what extraction relies on.
func CreateArchive(dbPath, archivePath string) (ArchiveMetadata, error) {
	// #nosec G304 -- dbPath is the configured database path
	src, err := os.Open(dbPath)
	if err != nil {
		return ArchiveMetadata{}, fmt.Errorf("opening database file: %w", err)
	}
	defer src.Close()

	// #nosec G304 -- archivePath is derived from the backup directory
	out, err := os.Create(archivePath)
	if err != nil {
		return ArchiveMetadata{}, fmt.Errorf("creating archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	member, err := zw.Create(filepath.Base(dbPath))
	if err != nil {
		return ArchiveMetadata{}, fmt.Errorf("creating archive member: %w", err)
	}
	hash := sha256.New()
	size, err := io.Copy(member, io.TeeReader(src, hash))
	if err != nil {
		return ArchiveMetadata{}, fmt.Errorf("writing archive member: %w", err)
	}

	meta := ArchiveMetadata{
		DatabaseName: filepath.Base(dbPath),
		SizeBytes:    size,
		Checksum:     hex.EncodeToString(hash.Sum(nil)),
		CreatedAt:    time.Now().UTC(),
	}
	encoded, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return ArchiveMetadata{}, fmt.Errorf("encoding metadata: %w", err)
	}
	metaMember, err := zw.Create(archiveMetadataName)
	if err != nil {
		return ArchiveMetadata{}, fmt.Errorf("creating metadata member: %w", err)
	}
	if _, err := metaMember.Write(encoded); err != nil {
		return ArchiveMetadata{}, fmt.Errorf("writing metadata: %w", err)
	}
	if err := zw.Close(); err != nil {
		return ArchiveMetadata{}, fmt.Errorf("finalizing archive: %w", err)
	}
	return meta, nil
}

// ReadArchiveMetadata returns the metadata record from an archive. ok is
// false for archives written without one.
func ReadArchiveMetadata(archivePath string) (ArchiveMetadata, bool, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return ArchiveMetadata{}, false, fmt.Errorf("opening archive: %w", err)
	}
	defer zr.Close()
	return readMetadata(&zr.Reader)
}

func readMetadata(zr *zip.Reader) (ArchiveMetadata, bool, error) {
	for _, f := range zr.File {
		if filepath.Base(f.Name) != archiveMetadataName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return ArchiveMetadata{}, false, fmt.Errorf("opening metadata member: %w", err)
		}
		defer rc.Close()

		var meta ArchiveMetadata
		if err := json.NewDecoder(rc).Decode(&meta); err != nil {
			return ArchiveMetadata{}, false, fmt.Errorf("decoding metadata: %w", err)
		}
		return meta, true, nil
	}
	return ArchiveMetadata{}, false, nil
}

// ExtractArchive writes the archived database to destPath, staging through
// a sibling temp file so a half-written extraction never lands on the
// destination. The archive must contain exactly one .db member; when a
// metadata record is present its checksum must match the extracted bytes.
// Member names are never used to build paths.
func ExtractArchive(archivePath, destPath string) (ArchiveMetadata, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return ArchiveMetadata{}, fmt.Errorf("opening archive: %w", err)
	}
	defer zr.Close()

	var dbMember *zip.File
	for _, f := range zr.File {
		if filepath.Ext(f.Name) != ".db" {
			continue
		}
		if dbMember != nil {
			return ArchiveMetadata{}, fmt.Errorf("archive holds more than one database file")
		}
		dbMember = f
	}
	if dbMember == nil {
		return ArchiveMetadata{}, fmt.Errorf("archive holds no database file")
	}

	meta, hasMeta, err := readMetadata(&zr.Reader)
	if err != nil {
		return ArchiveMetadata{}, err
	}

	rc, err := dbMember.Open()
	if err != nil {
		return ArchiveMetadata{}, fmt.Errorf("opening database member: %w", err)
	}
	defer rc.Close()

	staged := destPath + ".extract"
	defer os.Remove(staged)

	// #nosec G304 -- destPath is chosen by the caller, never by the archive
	out, err := os.Create(staged)
	if err != nil {
		return ArchiveMetadata{}, fmt.Errorf("staging extraction: %w", err)
	}

	hash := sha256.New()
	// #nosec G110 -- the member is one of our own database backups
	size, err := io.Copy(out, io.TeeReader(rc, hash))
	if err != nil {
		_ = out.Close()
		return ArchiveMetadata{}, fmt.Errorf("extracting database: %w", err)
	}
	if err := out.Close(); err != nil {
		return ArchiveMetadata{}, fmt.Errorf("closing staged extraction: %w", err)
	}

	if hasMeta {
		sum := hex.EncodeToString(hash.Sum(nil))
		if meta.Checksum != "" && sum != meta.Checksum {
			return ArchiveMetadata{}, fmt.Errorf("archive checksum mismatch: recorded %s, extracted %s", meta.Checksum, sum)
		}
		if meta.SizeBytes != 0 && size != meta.SizeBytes {
			return ArchiveMetadata{}, fmt.Errorf("archive size mismatch: recorded %d bytes, extracted %d", meta.SizeBytes, size)
		}
	}
	if err := ReplaceFile(staged, destPath); err != nil {
		return ArchiveMetadata{}, err
	}
	return meta, nil
}
