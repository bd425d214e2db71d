package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"
)

// chatRequest models the POST payload to /api/v1/chat
type chatRequest struct {
	Message  string     `json:"message"`
	ThreadID string     `json:"thread_id,omitempty"`
	Image    *chatImage `json:"image,omitempty"`
}

type chatImage struct {
	Data   []byte `json:"data"`
	Format string `json:"format"`
}

// chatReply models the response from POST /api/v1/chat
type chatReply struct {
	ThreadID      string `json:"thread_id"`
	Text          string `json:"text"`
	Truncated     bool   `json:"truncated"`
	Submitted     bool   `json:"submitted"`
	ChangeRequest *struct {
		Number int    `json:"number"`
		URL    string `json:"url"`
		Branch string `json:"branch"`
	} `json:"change_request,omitempty"`
}

type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func (c *client) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func main() {
	app := &cli.App{
		Name:  "csc",
		Usage: "Changesmith client - chat with the assistant from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api-url",
				Value:   "http://localhost:8811",
				Usage:   "Changesmith API base URL",
				EnvVars: []string{"CSC_API_URL"},
			},
			&cli.StringFlag{
				Name:     "api-key",
				Usage:    "API key for authentication",
				EnvVars:  []string{"CSC_API_KEY"},
				Required: true,
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Value:   5 * time.Minute,
				Usage:   "request timeout (proposals can take a while)",
				EnvVars: []string{"CSC_TIMEOUT"},
			},
		},
		Commands: []*cli.Command{
			chatCommand(),
			threadsCommand(),
			statsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newClient(c *cli.Context) *client {
	return &client{
		baseURL: c.String("api-url"),
		apiKey:  c.String("api-key"),
		http:    &http.Client{Timeout: c.Duration("timeout")},
	}
}

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:      "chat",
		Usage:     "Send a message; pass --thread to continue a conversation",
		ArgsUsage: "MESSAGE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "thread",
				Usage:   "thread ID to continue",
				EnvVars: []string{"CSC_THREAD"},
			},
			&cli.StringFlag{
				Name:  "image",
				Usage: "path to an image attachment (png or jpeg)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("usage: csc chat \"your message\"")
			}

			req := chatRequest{
				Message:  c.Args().Get(0),
				ThreadID: c.String("thread"),
			}
			if imagePath := c.String("image"); imagePath != "" {
				data, err := os.ReadFile(imagePath)
				if err != nil {
					return fmt.Errorf("failed to read image: %w", err)
				}
				format := "png"
				if ext := filepath.Ext(imagePath); ext == ".jpg" || ext == ".jpeg" {
					format = "jpeg"
				}
				req.Image = &chatImage{Data: data, Format: format}
			}

			var reply chatReply
			if err := newClient(c).do(http.MethodPost, "/api/v1/chat", req, &reply); err != nil {
				return err
			}

			fmt.Println(reply.Text)
			fmt.Printf("\n[thread %s]\n", reply.ThreadID)
			if reply.ChangeRequest != nil {
				fmt.Printf("[change request #%d %s]\n", reply.ChangeRequest.Number, reply.ChangeRequest.URL)
			}
			return nil
		},
	}
}

func threadsCommand() *cli.Command {
	return &cli.Command{
		Name:  "threads",
		Usage: "List conversation threads",
		Action: func(c *cli.Context) error {
			var out struct {
				Threads []struct {
					ID        string `json:"id"`
					Task      string `json:"task"`
					Status    string `json:"status"`
					Messages  int    `json:"messages"`
					UpdatedAt string `json:"updated_at"`
				} `json:"threads"`
			}
			if err := newClient(c).do(http.MethodGet, "/api/v1/threads", nil, &out); err != nil {
				return err
			}
			for _, t := range out.Threads {
				task := t.Task
				if len(task) > 50 {
					task = task[:50] + "..."
				}
				fmt.Printf("%s  %-13s %2d msg  %s  %s\n", t.ID, t.Status, t.Messages, t.UpdatedAt, task)
			}
			return nil
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show change-request activity",
		Action: func(c *cli.Context) error {
			var out struct {
				Created  int `json:"created"`
				Merged   int `json:"merged"`
				Reverted int `json:"reverted"`
			}
			if err := newClient(c).do(http.MethodGet, "/api/v1/stats", nil, &out); err != nil {
				return err
			}
			fmt.Printf("created: %d\nmerged: %d\nreverted: %d\n", out.Created, out.Merged, out.Reverted)
			return nil
		},
	}
}
