package backup

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Format version constants.
const (
	FormatV1 = 1
	FormatV2 = 2
)

// MaxDecompressedSize is the maximum allowed size of decompressed backup data (200MB).
const MaxDecompressedSize = 200 * 1024 * 1024

// ErrChecksumMismatch is returned when a V2 payload does not match its header.
var ErrChecksumMismatch = errors.New("backup: checksum mismatch")

// BackupHeader is the plain-text first line of a V2 backup file.
type BackupHeader struct {
	Version       int               `json:"version"`
	CreatedAt     time.Time         `json:"created_at"`
	Checksum      string            `json:"checksum"`
	RunCount      int               `json:"run_count"`
	SnapshotCount int               `json:"snapshot_count"`
	Compressed    bool              `json:"compressed"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// DetectFormat reads the first bytes of a file to determine V1 vs V2.
// V2 files have a header line with "version":2. V1 files are plain JSON starting with '{'.
func DetectFormat(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	firstLine, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("reading first line: %w", err)
	}
	firstLine = bytes.TrimSpace(firstLine)
	if len(firstLine) == 0 {
		return 0, fmt.Errorf("file is empty")
	}

	// Try to parse as a header
	var header BackupHeader
	if err := json.Unmarshal(firstLine, &header); err == nil {
		if header.Version == FormatV2 {
			return FormatV2, nil
		}
	}

	// If first line starts with '{', it's a V1 plain JSON file
	if firstLine[0] == '{' {
		return FormatV1, nil
	}

	return 0, fmt.Errorf("unrecognized backup format")
}

// WriteV1 writes a BackupFormat as indented plain JSON.
func WriteV1(path string, b *BackupFormat) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(b); err != nil {
		return fmt.Errorf("encoding backup: %w", err)
	}
	return nil
}

// WriteV2 writes a BackupFormat as a V2 file: header line + gzip-compressed payload.
func WriteV2(path string, b *BackupFormat) error {
	// Marshal the payload
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	// Compress the payload
	var compressed bytes.Buffer
	gzw, err := gzip.NewWriterLevel(&compressed, gzip.DefaultCompression)
	if err != nil {
		return fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gzw.Write(payload); err != nil {
		return fmt.Errorf("compressing payload: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("closing gzip writer: %w", err)
	}

	header := BackupHeader{
		Version:       FormatV2,
		CreatedAt:     b.CreatedAt,
		Checksum:      checksum(compressed.Bytes()),
		RunCount:      len(b.Runs),
		SnapshotCount: b.SnapshotCount(),
		Compressed:    true,
	}

	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshaling header: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	// Write file: header line + newline + compressed payload
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(headerBytes, '\n')); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := f.Write(compressed.Bytes()); err != nil {
		return fmt.Errorf("writing compressed payload: %w", err)
	}

	return nil
}

// ReadV1 reads a plain JSON backup.
func ReadV1(path string) (*BackupFormat, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	if info.Size() > MaxDecompressedSize {
		return nil, fmt.Errorf("backup file exceeds maximum size of %d bytes", MaxDecompressedSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	var backup BackupFormat
	if err := json.Unmarshal(data, &backup); err != nil {
		return nil, fmt.Errorf("parsing backup data: %w", err)
	}
	if backup.Version != FormatV1 {
		return nil, fmt.Errorf("unsupported backup version: %d", backup.Version)
	}
	return &backup, nil
}

// ReadV2 reads a V2 backup file, verifies the checksum, and decompresses the payload.
func ReadV2(path string) (*BackupFormat, error) {
	_, compressedData, err := readV2Parts(path)
	if err != nil {
		return nil, err
	}

	gzr, err := gzip.NewReader(bytes.NewReader(compressedData))
	if err != nil {
		return nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	// Limit decompressed size
	limitedReader := io.LimitReader(gzr, MaxDecompressedSize+1)
	decompressed, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("decompressing payload: %w", err)
	}
	if int64(len(decompressed)) > MaxDecompressedSize {
		return nil, fmt.Errorf("decompressed payload exceeds maximum size of %d bytes", MaxDecompressedSize)
	}

	var backup BackupFormat
	if err := json.Unmarshal(decompressed, &backup); err != nil {
		return nil, fmt.Errorf("parsing backup data: %w", err)
	}

	return &backup, nil
}

// ReadV2Header reads only the header line from a V2 backup file without decompressing.
func ReadV2Header(path string) (*BackupHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	return readHeader(bufio.NewReader(f))
}

// VerifyChecksum checks the integrity of a V2 backup file without full decompression.
func VerifyChecksum(path string) error {
	_, _, err := readV2Parts(path)
	return err
}

// Read auto-detects the format of path and reads it.
func Read(path string) (*BackupFormat, error) {
	version, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	if version == FormatV2 {
		return ReadV2(path)
	}
	return ReadV1(path)
}

// readV2Parts returns the header and the checksum-verified compressed payload.
func readV2Parts(path string) (*BackupHeader, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	header, err := readHeader(reader)
	if err != nil {
		return nil, nil, err
	}

	compressedData, err := io.ReadAll(io.LimitReader(reader, MaxDecompressedSize+1))
	if err != nil {
		return nil, nil, fmt.Errorf("reading compressed payload: %w", err)
	}

	if actual := checksum(compressedData); actual != header.Checksum {
		return nil, nil, fmt.Errorf("expected %s, got %s: %w", header.Checksum, actual, ErrChecksumMismatch)
	}
	return header, compressedData, nil
}

func readHeader(reader *bufio.Reader) (*BackupHeader, error) {
	headerLine, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("reading header line: %w", err)
	}

	var header BackupHeader
	if err := json.Unmarshal(bytes.TrimSpace(headerLine), &header); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}

	if header.Version != FormatV2 {
		return nil, fmt.Errorf("expected V2 format, got version %d", header.Version)
	}
	return &header, nil
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// isBackupFile reports whether name looks like a file written by Backup.
func isBackupFile(name string) bool {
	return strings.HasPrefix(name, "dtsm-backup-") &&
		(strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".json.gz"))
}
