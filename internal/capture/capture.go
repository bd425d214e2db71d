// Package capture records prompt/response pairs to disk for building parser
// fixtures. It is off unless CHANGESMITH_CAPTURE_DIR is set or Enable is
// called, and failures never interrupt the request path.
package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	sessionID  = time.Now().Format("20060102-150405")
	captureSeq uint64
)

var captureEnabled atomic.Bool

// envCaptureDir is the environment variable that controls capture output.
const envCaptureDir = "CHANGESMITH_CAPTURE_DIR"

func init() {
	captureEnabled.Store(os.Getenv(envCaptureDir) != "")
}

// Enabled reports whether capture is currently active.
func Enabled() bool {
	return captureEnabled.Load()
}

// Enable globally turns on capture for the running process.
func Enable() {
	captureEnabled.Store(true)
}

// Disable globally turns off capture for the running process.
func Disable() {
	captureEnabled.Store(false)
}

func captureDir() string {
	if dir := os.Getenv(envCaptureDir); dir != "" {
		return dir
	}
	return "captures"
}

func writeFile(category, ext string, data []byte) {
	seq := atomic.AddUint64(&captureSeq, 1)
	sessionDir := filepath.Join(captureDir(), sessionID)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", sessionDir).Msg("capture: failed to create directory")
		return
	}

	filename := fmt.Sprintf("%s-%04d.%s", category, seq, ext)
	path := filepath.Join(sessionDir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("capture: failed to write file")
		return
	}

	log.Debug().Str("path", path).Msg("capture: wrote")
}

// WriteJSON marshals the payload to indented JSON and stores it in the
// capture directory. Failures are logged but otherwise ignored.
func WriteJSON(category string, payload interface{}) {
	if !Enabled() {
		return
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		log.Warn().Err(err).Str("category", category).Msg("capture: failed to marshal payload")
		return
	}

	writeFile(category, "json", data)
}

// WriteBlob stores arbitrary bytes using the provided extension.
func WriteBlob(category, ext string, data []byte) {
	if !Enabled() {
		return
	}
	writeFile(category, ext, data)
}
