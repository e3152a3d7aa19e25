package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/adverant/nexus/ocr-engine/internal/ocr"
)

const keyVersion = "ocr-v1"

// GenerateKey fingerprints the image bytes plus the options that change output:
// provider hint, table detection, language, consensus width and aggressive mode.
// Timeout, retries and priority do not affect the result and are excluded.
func GenerateKey(image []byte, opts ocr.Options) string {
	h := sha256.New()

	imageSum := sha256.Sum256(image)
	_, _ = h.Write([]byte(keyVersion))
	_, _ = h.Write([]byte("|i:"))
	_, _ = h.Write(imageSum[:])

	consensus := opts.Consensus
	if consensus < 1 {
		consensus = 1
	}

	fields := []string{
		"p:" + strings.ToLower(strings.TrimSpace(string(opts.Provider))),
		"t:" + strconv.FormatBool(opts.DetectTables),
		"l:" + strings.ToLower(strings.TrimSpace(opts.Language)),
		"c:" + strconv.Itoa(consensus),
		"a:" + strconv.FormatBool(opts.Aggressive),
	}
	for _, f := range fields {
		_, _ = h.Write([]byte("|"))
		_, _ = h.Write([]byte(f))
	}

	return hex.EncodeToString(h.Sum(nil))
}
