package hash

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
)

// FileMD5 computes the MD5 digest of a file, streaming in 4KB chunks.
// The digest must stay MD5: it is the content address already recorded
// for previously uploaded objects.
func FileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	buf := make([]byte, 4096)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
