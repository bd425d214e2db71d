package secretscan

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/zricethezav/gitleaks/v8/detect"
)

// Scanner checks file contents for leaked credentials before they are
// embedded into a completion prompt. A file with findings is dropped from
// the grounding context; the completion service never sees it.
type Scanner struct {
	detector *detect.Detector
}

// New creates a Scanner with the default gitleaks ruleset.
func New() (*Scanner, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create secret detector: %w", err)
	}
	return &Scanner{detector: detector}, nil
}

// Clean reports whether content is free of secret findings. Path is only
// used for logging.
func (s *Scanner) Clean(path, content string) bool {
	findings := s.detector.DetectString(content)
	if len(findings) == 0 {
		return true
	}

	for _, f := range findings {
		log.Warn().
			Str("path", path).
			Str("rule", f.RuleID).
			Int("line", f.StartLine).
			Msg("secret detected, file excluded from grounding context")
	}
	return false
}
