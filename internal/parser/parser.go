package parser

import (
	"path"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/changesmith/pkg/models"
)

// minFallbackLength is the shortest raw response the last-resort tier will
// wrap into a synthetic file. Anything shorter parses to an empty list.
const minFallbackLength = 50

// Diagnostic records a non-fatal parsing event: a dropped entry, a skipped
// block, or a fallback. Diagnostics are logged by the caller and never
// abort a parse.
type Diagnostic struct {
	Tier   int    `json:"tier"`
	Path   string `json:"path,omitempty"`
	Reason string `json:"reason"`
}

// Parser extracts structured file operations from raw completion text.
// Parsing is deterministic and idempotent: the same input always yields the
// same output, and no input makes it fail.
type Parser struct {
	denylist map[string]struct{}
}

// Option configures a Parser.
type Option func(*Parser)

// WithDenylist replaces the default placeholder-filename denylist.
func WithDenylist(names []string) Option {
	return func(p *Parser) {
		p.denylist = make(map[string]struct{}, len(names))
		for _, n := range names {
			p.denylist[strings.ToLower(n)] = struct{}{}
		}
	}
}

// defaultDenylist contains placeholder basenames that models echo back from
// prompt templates. They are never real deliverables.
var defaultDenylist = []string{
	"file.ext",
	"filename.ext",
	"file.txt",
	"file.py",
	"example.py",
	"example.js",
	"example.txt",
	"test.py",
	"sample.py",
	"your_file.py",
	"path/to/file.ext",
}

// New creates a Parser with the default denylist.
func New(opts ...Option) *Parser {
	p := &Parser{}
	WithDenylist(defaultDenylist)(p)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// tierFunc is one extraction strategy. Tiers run in fixed precedence; a
// tier is only attempted when every tier before it matched nothing, so the
// same content cannot be captured twice under different heuristics.
type tierFunc func(raw string, blocks []*fencedBlock) ([]models.ChangesetFile, []Diagnostic)

// Parse extracts an ordered list of file operations from raw completion
// text. It never returns an error: malformed input degrades to the
// last-resort fallback or an empty list, both valid outputs.
func (p *Parser) Parse(raw string) ([]models.ChangesetFile, []Diagnostic) {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")

	var diags []Diagnostic
	if strings.TrimSpace(raw) == "" {
		return nil, diags
	}

	blocks := scanFencedBlocks(raw)

	tiers := []tierFunc{
		extractTaggedMarkers,
		extractPrefixedPaths,
		extractBareFilenames,
		extractCommentNames,
		extractProseMentions,
		extractStructuredPayload,
	}

	var files []models.ChangesetFile
	for _, tier := range tiers {
		matched, tierDiags := tier(raw, blocks)
		diags = append(diags, tierDiags...)
		if len(matched) > 0 {
			files = matched
			break
		}
	}

	if len(files) == 0 && len(strings.TrimSpace(raw)) >= minFallbackLength {
		files = []models.ChangesetFile{{
			Path:       "generated_file_1.txt",
			Action:     models.ActionNew,
			Content:    raw,
			OriginTier: tierLastResort,
		}}
		diags = append(diags, Diagnostic{
			Tier:   tierLastResort,
			Path:   "generated_file_1.txt",
			Reason: "no tier matched, wrapped whole response",
		})
	}

	files, postDiags := p.postProcess(files)
	diags = append(diags, postDiags...)

	for _, d := range diags {
		log.Debug().Int("tier", d.Tier).Str("path", d.Path).Msg(d.Reason)
	}

	return files, diags
}

// postProcess applies the dedup and denylist rules that run regardless of
// which tier produced the entries. Order within the slice is preserved;
// for duplicates the first entry wins.
func (p *Parser) postProcess(files []models.ChangesetFile) ([]models.ChangesetFile, []Diagnostic) {
	var diags []Diagnostic
	seenContent := make(map[string]struct{}, len(files))
	seenPath := make(map[string]struct{}, len(files))
	out := files[:0:0]

	for _, f := range files {
		if f.Content != "" {
			if _, dup := seenContent[f.Content]; dup {
				diags = append(diags, Diagnostic{Tier: f.OriginTier, Path: f.Path, Reason: "duplicate content skipped"})
				continue
			}
		}
		if _, dup := seenPath[f.Path]; dup {
			diags = append(diags, Diagnostic{Tier: f.OriginTier, Path: f.Path, Reason: "duplicate path skipped"})
			continue
		}
		if p.denylisted(f.Path) {
			diags = append(diags, Diagnostic{Tier: f.OriginTier, Path: f.Path, Reason: "denylisted placeholder filename"})
			continue
		}

		if f.Content != "" {
			seenContent[f.Content] = struct{}{}
		}
		seenPath[f.Path] = struct{}{}
		out = append(out, f)
	}

	return out, diags
}

func (p *Parser) denylisted(filePath string) bool {
	base := strings.ToLower(path.Base(filePath))
	if _, ok := p.denylist[base]; ok {
		return true
	}
	_, ok := p.denylist[strings.ToLower(filePath)]
	return ok
}

// cleanPath strips the decorations models wrap around paths: backticks,
// quotes, bold markers, a leading ./ and trailing punctuation.
func cleanPath(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "`\"'*")
	s = strings.TrimSuffix(s, ":")
	s = strings.TrimPrefix(s, "./")
	return strings.TrimSpace(s)
}

// looksLikePath reports whether s is plausibly a repository-relative file
// path: no spaces, a basename with an extension, no traversal.
func looksLikePath(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return false
	}
	if strings.HasPrefix(s, "/") || strings.Contains(s, "..") {
		return false
	}
	base := path.Base(s)
	dot := strings.LastIndexByte(base, '.')
	if dot <= 0 || dot == len(base)-1 {
		return false
	}
	ext := base[dot+1:]
	if len(ext) > 8 {
		return false
	}
	for _, r := range ext {
		if !isAlnum(r) {
			return false
		}
	}
	return true
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
