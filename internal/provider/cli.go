package provider

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CLIProvider shells out to a local LLM command line tool such as `llm`
// or `ollama run`, passing the flattened conversation as the last argument.
type CLIProvider struct {
	binaryPath string
	args       []string
	timeout    time.Duration
}

func NewCLIProvider(binaryPath string, args []string) (*CLIProvider, error) {
	if binaryPath == "" {
		return nil, fmt.Errorf("binary path is required for CLI provider")
	}
	return &CLIProvider{
		binaryPath: binaryPath,
		args:       args,
		timeout:    2 * time.Minute,
	}, nil
}

func (p *CLIProvider) Name() string {
	return "cli-" + p.binaryPath
}

func (p *CLIProvider) Chat(ctx context.Context, messages []Message, opts ...ChatOption) (*Response, error) {
	var prompt strings.Builder
	for i, m := range messages {
		if i > 0 {
			prompt.WriteString("\n\n")
		}
		if m.Role == RoleSystem {
			prompt.WriteString(m.Content)
			continue
		}
		prompt.WriteString(m.Role + ": " + m.Content)
	}
	if applyOptions(opts).JSON {
		prompt.WriteString("\n\nRespond with a single JSON object and nothing else.")
	}

	fullArgs := append(append([]string(nil), p.args...), prompt.String())

	execCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, p.binaryPath, fullArgs...)

	output, err := cmd.CombinedOutput()
	result := strings.TrimSpace(string(output))

	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: cli provider timed out: %v", ErrLLMFailure, err)
		}
		return nil, fmt.Errorf("%w: cli provider failed: %v\nOutput: %s", ErrLLMFailure, err, result)
	}

	return &Response{
		Content: result,
		Usage: Usage{
			TotalTokens: len(strings.Fields(result)),
		},
	}, nil
}

func (p *CLIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embeddings not supported by CLI provider")
}
