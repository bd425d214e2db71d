// Package intent classifies user messages into bot commands. A
// deterministic pattern-matcher is the reliable baseline; an optional
// LLM-backed classifier improves accuracy and degrades to the baseline on
// any error — never the reverse.
package intent

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind is the command category of a message.
type Kind string

const (
	KindCreatePR   Kind = "CREATE_PR"
	KindRefine     Kind = "REFINE"
	KindMergePR    Kind = "MERGE_PR"
	KindRevertPR   Kind = "REVERT_PR"
	KindCreateRepo Kind = "CREATE_REPO"
	KindViewUsage  Kind = "VIEW_USAGE"
	KindGeneral    Kind = "GENERAL"
)

// Command is a classified message with its extracted parameters.
type Command struct {
	Kind            Kind
	Task            string // CREATE_PR/REFINE
	Number          int    // MERGE_PR/REVERT_PR
	MergeMethod     string // merge | squash | rebase
	RepoName        string // CREATE_REPO
	RepoDescription string
	Private         bool
}

var (
	mergeRe  = regexp.MustCompile(`(?i)\bmerge\s+(?:pr|pull\s+request|#)?\s*(\d+)`)
	revertRe = regexp.MustCompile(`(?i)\b(?:unmerge|revert)\s+(?:pr|pull\s+request|#)?\s*(\d+)`)

	createPRRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bcreate\s+(?:a\s+)?(?:pull\s+request|pr)\b`),
		regexp.MustCompile(`(?i)\bmake\s+(?:a\s+)?(?:pull\s+request|pr)\b`),
		regexp.MustCompile(`(?i)\bopen\s+(?:a\s+)?(?:pull\s+request|pr)\b`),
		regexp.MustCompile(`(?i)\bsubmit\s+(?:a\s+)?(?:pull\s+request|pr)\b`),
	}
	taskTailRe = regexp.MustCompile(`(?i)^(?:for|to)\s+(.+)$`)

	createRepoRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:create|make|new|spin\s+up|initialize|init)\s+(?:a\s+)?(?:new\s+)?(?:empty\s+)?(?:private\s+|public\s+)?repo(?:sitory)?\s+(?:called\s+|named\s+)?([a-zA-Z0-9_-]+)`),
		regexp.MustCompile(`(?i)\b(?:new|create)\s+(?:a\s+)?repo(?:sitory)?\s+([a-zA-Z0-9_-]+)`),
	}
	privateRe = regexp.MustCompile(`(?i)\bprivate\b`)

	usageRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\busage\b`),
		regexp.MustCompile(`(?i)\bstats\b`),
		regexp.MustCompile(`(?i)\bstatistics\b`),
		regexp.MustCompile(`(?i)\bdashboard\b`),
		regexp.MustCompile(`(?i)\bactivity\b`),
	}

	submitRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bmake\s+(?:the\s+)?pr\b`),
		regexp.MustCompile(`(?i)\bcreate\s+(?:the\s+)?pr\b`),
		regexp.MustCompile(`(?i)\bopen\s+(?:the\s+)?pr\b`),
		regexp.MustCompile(`(?i)\bsubmit\s+(?:the\s+)?pr\b`),
		regexp.MustCompile(`(?i)\bsubmit\s+it\b`),
		regexp.MustCompile(`(?i)^go\s+ahead\b`),
		regexp.MustCompile(`(?i)^(?:ship|send)\s+it\b`),
	}
)

// generalPhrases are messages that are clearly conversation, not tasks.
var generalPhrases = []string{
	"help", "hello", "hi", "hey", "thanks", "thank you",
	"what can you do", "what can you do?", "how are you", "how are you?",
}

// ClassifyPattern is the deterministic baseline classifier.
func ClassifyPattern(text string) Command {
	clean := strings.TrimSpace(text)

	if m := mergeRe.FindStringSubmatch(clean); m != nil {
		n, _ := strconv.Atoi(m[1])
		method := "merge"
		if regexp.MustCompile(`(?i)\bsquash\b`).MatchString(clean) {
			method = "squash"
		} else if regexp.MustCompile(`(?i)\brebase\b`).MatchString(clean) {
			method = "rebase"
		}
		return Command{Kind: KindMergePR, Number: n, MergeMethod: method}
	}

	if m := revertRe.FindStringSubmatch(clean); m != nil {
		n, _ := strconv.Atoi(m[1])
		return Command{Kind: KindRevertPR, Number: n}
	}

	for _, re := range createPRRes {
		if loc := re.FindStringIndex(clean); loc != nil {
			task := strings.TrimSpace(clean[loc[1]:])
			if m := taskTailRe.FindStringSubmatch(task); m != nil {
				task = strings.TrimSpace(m[1])
			}
			if task == "" {
				task = clean
			}
			return Command{Kind: KindCreatePR, Task: task}
		}
	}

	for _, re := range createRepoRes {
		if m := re.FindStringSubmatch(clean); m != nil {
			return Command{
				Kind:     KindCreateRepo,
				RepoName: m[1],
				Private:  privateRe.MatchString(clean),
			}
		}
	}

	for _, re := range usageRes {
		if re.MatchString(clean) {
			return Command{Kind: KindViewUsage}
		}
	}

	lower := strings.ToLower(clean)
	for _, phrase := range generalPhrases {
		if lower == phrase {
			return Command{Kind: KindGeneral}
		}
	}

	// Anything else is treated as a coding task.
	return Command{Kind: KindRefine, Task: clean}
}

// SubmitPattern is the deterministic submit-vs-refine baseline.
func SubmitPattern(text string) bool {
	clean := strings.TrimSpace(text)
	for _, re := range submitRes {
		if re.MatchString(clean) {
			return true
		}
	}
	return false
}

var (
	deletionLeadRe = regexp.MustCompile(`(?i)^(?:please\s+)?(?:delete|remove)\s+(?:the\s+)?(?:files?\s+)?(.+)$`)
	deletionSepRe  = regexp.MustCompile(`(?i)\s*(?:,|\band\b|\s)\s*`)
	deletionPathRe = regexp.MustCompile(`^[A-Za-z0-9_\-./]+\.[A-Za-z0-9]{1,8}$`)
)

// DeletionPaths recognizes an unambiguous file-deletion request naming
// concrete paths. Such requests bypass the completion service entirely: the
// returned paths go straight to a deletion-only submission. Any token that
// is not clearly a path makes the whole match fail, so ambiguous requests
// still get a proposal cycle.
func DeletionPaths(text string) []string {
	m := deletionLeadRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return nil
	}

	var paths []string
	for _, tok := range deletionSepRe.Split(m[1], -1) {
		tok = strings.Trim(tok, "`\"' ")
		if tok == "" {
			continue
		}
		if !deletionPathRe.MatchString(tok) {
			return nil
		}
		paths = append(paths, tok)
	}
	return paths
}
