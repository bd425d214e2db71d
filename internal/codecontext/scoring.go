package codecontext

import (
	"regexp"
	"strings"

	"github.com/changesmith/pkg/models"
)

// Base scores by extension tier. Files scoring zero never enter the ranking
// unless a bonus lifts them.
var (
	primaryExtensions = map[string]int{
		".go": 10, ".py": 10, ".js": 10, ".ts": 10, ".tsx": 10,
		".jsx": 10, ".java": 10, ".rb": 10, ".rs": 10,
	}
	secondaryExtensions = map[string]int{
		".c": 8, ".cpp": 8, ".h": 8, ".cs": 8, ".php": 8,
		".swift": 8, ".kt": 8, ".scala": 8,
	}
	configExtensions = map[string]int{
		".json": 3, ".yaml": 3, ".yml": 3, ".toml": 3, ".md": 3,
		".txt": 3, ".cfg": 3, ".ini": 3, ".env": 3, ".sql": 3, ".sh": 3,
	}
)

// excludedDirs are path segments that mark build artifacts, dependency
// caches, version-control internals and editor state.
var excludedDirs = map[string]struct{}{
	"node_modules": {}, "vendor": {}, "dist": {}, "build": {},
	"target": {}, ".git": {}, "__pycache__": {}, "venv": {}, ".venv": {},
	".idea": {}, ".vscode": {},
}

// alwaysInclude are canonical top-level files that ground almost any task.
var alwaysInclude = map[string]struct{}{
	"readme.md": {}, "go.mod": {}, "package.json": {}, "requirements.txt": {},
	"pyproject.toml": {}, "cargo.toml": {}, "makefile": {}, "dockerfile": {},
}

// taskTypes map a task classification to path indicator words. A task
// matches at most one type, checked in this order.
var taskTypes = []struct {
	name       string
	keywords   []string
	indicators []string
}{
	{"testing", []string{"test", "tests", "testing", "spec", "coverage"},
		[]string{"test", "tests", "spec", "mock", "fixture"}},
	{"frontend", []string{"frontend", "ui", "page", "button", "css", "component", "layout", "style"},
		[]string{"component", "components", "page", "pages", "view", "views", "ui", "static", "css", "html"}},
	{"api", []string{"api", "endpoint", "route", "rest", "handler", "http"},
		[]string{"api", "handler", "handlers", "route", "routes", "controller", "controllers", "server"}},
	{"database", []string{"database", "db", "migration", "schema", "query", "table"},
		[]string{"db", "database", "model", "models", "migration", "migrations", "schema", "store"}},
	{"auth", []string{"auth", "login", "logout", "password", "session", "oauth", "token"},
		[]string{"auth", "login", "session", "user", "users", "account", "token"}},
}

const (
	taskTypeBonus      = 15
	keywordBonus       = 5
	alwaysIncludeBonus = 8
	sizePenaltyStep    = 10 * 1024
)

// taskProfile is the precomputed, task-dependent half of the scoring
// function. Building it once keeps Score pure and cheap per candidate.
type taskProfile struct {
	typeIndicators map[string]struct{}
	keywords       map[string]struct{}
}

var filenameLikeRe = regexp.MustCompile(`[A-Za-z0-9_\-./]+\.[A-Za-z0-9]{1,8}`)

// buildTaskProfile classifies the task into at most one type and collects
// its keyword tokens: words longer than three characters plus any explicit
// filename-like substrings.
func buildTaskProfile(task string) taskProfile {
	lower := strings.ToLower(task)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') &&
			r != '_' && r != '-' && r != '.' && r != '/'
	})

	profile := taskProfile{keywords: make(map[string]struct{})}
	for _, w := range words {
		w = strings.Trim(w, "._-/")
		if len(w) > 3 {
			profile.keywords[w] = struct{}{}
		}
	}
	for _, name := range filenameLikeRe.FindAllString(lower, -1) {
		profile.keywords[name] = struct{}{}
		for _, tok := range splitPathTokens(name) {
			if len(tok) > 3 {
				profile.keywords[tok] = struct{}{}
			}
		}
	}

	wordSet := make(map[string]struct{}, len(words))
	for _, w := range words {
		wordSet[w] = struct{}{}
	}
	for _, tt := range taskTypes {
		for _, kw := range tt.keywords {
			if _, ok := wordSet[kw]; ok {
				profile.typeIndicators = make(map[string]struct{}, len(tt.indicators))
				for _, ind := range tt.indicators {
					profile.typeIndicators[ind] = struct{}{}
				}
				return profile
			}
		}
	}
	return profile
}

// splitPathTokens tokenizes a path on separators: slash, underscore,
// hyphen, dot.
func splitPathTokens(path string) []string {
	return strings.FieldsFunc(strings.ToLower(path), func(r rune) bool {
		return r == '/' || r == '_' || r == '-' || r == '.'
	})
}

// excluded reports whether a candidate is dropped before scoring: any
// excluded or hidden path segment, or a size over the per-file ceiling.
func excluded(entry models.RepoEntry, maxFileBytes int64) bool {
	if maxFileBytes > 0 && entry.SizeBytes > maxFileBytes {
		return true
	}
	for _, seg := range strings.Split(entry.Path, "/") {
		if _, ok := excludedDirs[seg]; ok {
			return true
		}
		if strings.HasPrefix(seg, ".") && seg != "." {
			// Hidden directories and dotfiles other than the handful of
			// canonical names below.
			if _, keep := alwaysInclude[strings.ToLower(seg)]; !keep {
				return true
			}
		}
	}
	return false
}

// score computes the relevance of one candidate for a task profile. Pure:
// no randomness, no clock.
func score(entry models.RepoEntry, profile taskProfile) int {
	ext := entry.Extension()

	s := 0
	if v, ok := primaryExtensions[ext]; ok {
		s = v
	} else if v, ok := secondaryExtensions[ext]; ok {
		s = v
	} else if v, ok := configExtensions[ext]; ok {
		s = v
	}

	tokens := splitPathTokens(entry.Path)
	if profile.typeIndicators != nil {
		for _, tok := range tokens {
			if _, ok := profile.typeIndicators[tok]; ok {
				s += taskTypeBonus
				break
			}
		}
	}

	seen := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		if _, ok := profile.keywords[tok]; ok {
			s += keywordBonus
		}
	}

	if !strings.Contains(entry.Path, "/") {
		if _, ok := alwaysInclude[strings.ToLower(entry.Path)]; ok {
			s += alwaysIncludeBonus
		}
	}

	if entry.SizeBytes > 0 {
		s -= int((entry.SizeBytes + sizePenaltyStep - 1) / sizePenaltyStep)
	}

	return s
}
