package intent

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"

	"github.com/changesmith/internal/llm"
)

// Classifier is the two-stage command classifier. With a client configured
// it asks a small model first; without one, or on any model failure, it
// falls back to the pattern baseline.
type Classifier struct {
	client llm.Client // nil disables the LLM stage
	model  string
}

func NewClassifier(client llm.Client, model string) *Classifier {
	return &Classifier{client: client, model: model}
}

const commandSystemPrompt = `You are a command classifier for a coding assistant bot.

Classify the user message into exactly one command and extract parameters.

Commands:
- CREATE_PR: explicit request to create a pull request with a task ("create a PR to add login"). Extract task_description.
- REFINE: any other coding task ("add a login page", "add error handling"). The whole message is the task.
- MERGE_PR: merge an existing PR ("merge PR 123", "merge #45 using squash"). Extract pr_number and merge_method (merge|squash|rebase, default merge).
- REVERT_PR: revert a merged PR ("revert PR 12", "unmerge #45"). Extract pr_number.
- CREATE_REPO: create a new repository ("create a new repo called my-app"). Extract repo_name, optional description, private (true when asked).
- VIEW_USAGE: usage, stats, dashboard, activity requests.
- GENERAL: conversation that is not a coding task ("what can you do?", "hello").

Respond with ONLY a JSON object:
{"command": "...", "task_description": "...", "pr_number": "123", "merge_method": "merge", "repo_name": "...", "description": "...", "private": false}
Include only the fields relevant to the command.`

const submitSystemPrompt = `You decide whether the user wants to SUBMIT the currently proposed code changes as a pull request NOW, or REFINE them further.

Respond with EXACTLY one word: SUBMIT or REFINE.

"make pr" -> SUBMIT
"looks good, submit it" -> SUBMIT
"go ahead" -> SUBMIT
"add error handling" -> REFINE
"looks good but add tests" -> REFINE`

// modelDecision mirrors the JSON contract of commandSystemPrompt.
type modelDecision struct {
	Command         string `json:"command"`
	TaskDescription string `json:"task_description"`
	PRNumber        string `json:"pr_number"`
	MergeMethod     string `json:"merge_method"`
	RepoName        string `json:"repo_name"`
	Description     string `json:"description"`
	Private         bool   `json:"private"`
}

// ClassifyCommand classifies a full message. Model errors and unusable
// decisions degrade to the pattern baseline.
func (c *Classifier) ClassifyCommand(ctx context.Context, text string) Command {
	if c.client == nil {
		return ClassifyPattern(text)
	}

	resp, err := c.client.Complete(ctx, llm.Request{
		System:    commandSystemPrompt,
		Prompt:    "User message: " + strconv.Quote(text) + "\n\nClassify and extract:",
		Model:     c.model,
		MaxTokens: 150,
	})
	if err != nil {
		log.Warn().Err(err).Msg("command classification model failed, using pattern baseline")
		return ClassifyPattern(text)
	}

	decision, err := decodeDecision(resp.Text)
	if err != nil {
		log.Warn().Err(err).Msg("command classification unreadable, using pattern baseline")
		return ClassifyPattern(text)
	}

	cmd, ok := decision.toCommand(text)
	if !ok {
		return ClassifyPattern(text)
	}
	log.Debug().Str("kind", string(cmd.Kind)).Msg("command classified by model")
	return cmd
}

// IsSubmit decides submit-vs-refine for a message in an active
// conversation, with the same degradation rule.
func (c *Classifier) IsSubmit(ctx context.Context, text string) bool {
	if c.client == nil {
		return SubmitPattern(text)
	}

	resp, err := c.client.Complete(ctx, llm.Request{
		System:    submitSystemPrompt,
		Prompt:    "User message: " + strconv.Quote(text) + "\n\nIntent:",
		Model:     c.model,
		MaxTokens: 5,
	})
	if err != nil {
		log.Warn().Err(err).Msg("submit classification model failed, using pattern baseline")
		return SubmitPattern(text)
	}

	switch strings.ToUpper(strings.TrimSpace(resp.Text)) {
	case "SUBMIT":
		return true
	case "REFINE":
		return false
	default:
		return SubmitPattern(text)
	}
}

// decodeDecision strips markdown fences and repairs almost-JSON before
// decoding. Small models fence their JSON often enough that both steps pay
// for themselves.
func decodeDecision(raw string) (*modelDecision, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	repaired, err := jsonrepair.JSONRepair(cleaned)
	if err != nil {
		return nil, err
	}

	var decision modelDecision
	if err := json.Unmarshal([]byte(repaired), &decision); err != nil {
		return nil, err
	}
	return &decision, nil
}

func (d *modelDecision) toCommand(original string) (Command, bool) {
	switch Kind(strings.ToUpper(d.Command)) {
	case KindCreatePR:
		task := d.TaskDescription
		if task == "" {
			task = original
		}
		return Command{Kind: KindCreatePR, Task: task}, true
	case KindRefine:
		return Command{Kind: KindRefine, Task: original}, true
	case KindMergePR:
		n, err := strconv.Atoi(strings.TrimSpace(d.PRNumber))
		if err != nil || n <= 0 {
			return Command{}, false
		}
		method := strings.ToLower(d.MergeMethod)
		if method != "squash" && method != "rebase" {
			method = "merge"
		}
		return Command{Kind: KindMergePR, Number: n, MergeMethod: method}, true
	case KindRevertPR:
		n, err := strconv.Atoi(strings.TrimSpace(d.PRNumber))
		if err != nil || n <= 0 {
			return Command{}, false
		}
		return Command{Kind: KindRevertPR, Number: n}, true
	case KindCreateRepo:
		if d.RepoName == "" {
			return Command{}, false
		}
		return Command{
			Kind:            KindCreateRepo,
			RepoName:        d.RepoName,
			RepoDescription: d.Description,
			Private:         d.Private,
		}, true
	case KindViewUsage:
		return Command{Kind: KindViewUsage}, true
	case KindGeneral:
		return Command{Kind: KindGeneral}, true
	default:
		return Command{}, false
	}
}
