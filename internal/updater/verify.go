package updater

import (
	"fmt"
	"os"
	"strings"

	"cco/internal/download"
	"cco/internal/releases"

	"github.com/jedisct1/go-minisign"
)

// verifyPayload checks the downloaded file against the release entry. The
// file is hashed again so a payload altered after download is caught too.
func (u *Updater) verifyPayload(entry *releases.PlatformEntry, dl *download.Result) error {
	want := strings.ToLower(strings.TrimSpace(entry.Checksum))

	if !strings.EqualFold(dl.Digest, want) {
		return mismatch("sha256 %s does not match published %s", dl.Digest, want)
	}
	if dl.BytesWritten != entry.Size {
		return mismatch("downloaded %d bytes, release lists %d", dl.BytesWritten, entry.Size)
	}

	digest, size, err := download.HashFile(dl.Path)
	if err != nil {
		return fmt.Errorf("failed to re-hash download: %w", err)
	}
	if digest != want || size != entry.Size {
		return mismatch("download changed on disk after it was verified")
	}

	return u.verifySignature(entry, dl.Path)
}

func (u *Updater) verifySignature(entry *releases.PlatformEntry, path string) error {
	if u.cfg.PublicKey == "" {
		return nil
	}
	if entry.Signature == "" {
		u.logger.Warn("Release entry carries no signature; relying on the checksum alone", "path", entry.Path)
		return nil
	}

	pk, err := minisign.NewPublicKey(u.cfg.PublicKey)
	if err != nil {
		return fmt.Errorf("invalid release public key: %w", err)
	}
	sig, err := minisign.DecodeSignature(entry.Signature)
	if err != nil {
		return mismatch("malformed signature: %v", err)
	}

	// #nosec G304 -- path is the verified download
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read download: %w", err)
	}
	ok, err := pk.Verify(data, sig)
	if err != nil {
		return mismatch("signature verification failed: %v", err)
	}
	if !ok {
		return mismatch("signature does not match the release public key")
	}
	return nil
}

func mismatch(format string, args ...interface{}) error {
	return &download.DownloadError{Kind: download.ChecksumMismatch, Detail: fmt.Sprintf(format, args...)}
}
