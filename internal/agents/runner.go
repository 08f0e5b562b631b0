// Package agents runs coding tasks through an LLM-driven tool loop with
// guardrail and validation stages.
package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/opero/internal/interfaces"
	"github.com/ternarybob/opero/internal/llm"
	"github.com/ternarybob/opero/internal/models"
)

// RunOptions control a single task run. Job-level config overrides
// individual fields via the keys "model" (or "coder_model"),
// "check_command", "max_loops" and "apply_changes".
type RunOptions struct {
	// Model is the provider-prefixed model string; empty selects the
	// configured default provider and its default model
	Model string

	// CheckCommand validates the workspace after each agent step;
	// empty disables validation and the first agent step completes
	CheckCommand string

	// MaxLoops bounds the number of agent steps per task
	MaxLoops int

	// ApplyChanges false puts the run in read-only mode: write_file
	// and run_command are rejected by the guardrail
	ApplyChanges bool

	// LLMTimeout applies per model call
	LLMTimeout time.Duration

	// ValidatorTimeout applies per check command run
	ValidatorTimeout time.Duration
}

// DefaultRunOptions returns the standard task run settings
func DefaultRunOptions() RunOptions {
	return RunOptions{
		CheckCommand:     "pytest -q",
		MaxLoops:         16,
		ApplyChanges:     true,
		LLMTimeout:       5 * time.Minute,
		ValidatorTimeout: 60 * time.Second,
	}
}

// withOverrides applies job-level config values over the defaults
func (o RunOptions) withOverrides(config map[string]interface{}) RunOptions {
	if len(config) == 0 {
		return o
	}

	if v, ok := config["model"].(string); ok && v != "" {
		o.Model = v
	} else if v, ok := config["coder_model"].(string); ok && v != "" {
		o.Model = v
	}
	if v, ok := config["check_command"].(string); ok {
		o.CheckCommand = v
	}
	if v, ok := config["apply_changes"].(bool); ok {
		o.ApplyChanges = v
	}

	// JSON numbers decode as float64
	switch v := config["max_loops"].(type) {
	case float64:
		if v > 0 {
			o.MaxLoops = int(v)
		}
	case int:
		if v > 0 {
			o.MaxLoops = v
		}
	}

	return o
}

// contentGenerator is the slice of llm.ProviderFactory the runner needs
type contentGenerator interface {
	GenerateContent(ctx context.Context, request *llm.ContentRequest) (*llm.ContentResponse, error)
}

// Runner drives a task through generate/guard/execute/validate cycles
// until the check command passes or the loop budget is spent.
type Runner struct {
	provider contentGenerator
	registry interfaces.ToolRegistry
	commands interfaces.CommandRunner
	defaults RunOptions
	logger   arbor.ILogger
}

var _ interfaces.AgentRunner = (*Runner)(nil)

// NewRunner creates an LLM-backed agent runner
func NewRunner(
	provider contentGenerator,
	registry interfaces.ToolRegistry,
	commands interfaces.CommandRunner,
	defaults RunOptions,
	logger arbor.ILogger,
) *Runner {
	return &Runner{
		provider: provider,
		registry: registry,
		commands: commands,
		defaults: defaults,
		logger:   logger,
	}
}

// RunTask executes one coding task. The returned result carries the
// conversation transcript, whether the check command ever passed, and
// whether the most recent tool batch was rejected by the guardrail. An
// error is returned only when the task could not run at all (provider
// failure, cancellation).
func (r *Runner) RunTask(ctx context.Context, task models.AgentTask, config map[string]interface{}) (*models.AgentResult, error) {
	opts := r.defaults.withOverrides(config)
	systemPrompt := r.systemPrompt(opts)

	r.logger.Debug().
		Str("task_id", task.ID).
		Int("max_loops", opts.MaxLoops).
		Bool("apply_changes", opts.ApplyChanges).
		Msg("Starting agent task")

	result := &models.AgentResult{}
	transcript := []string{task.Description}
	conversation := []llm.Message{{Role: "user", Content: task.Description}}

	for loop := 1; loop <= opts.MaxLoops; loop++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, err := r.generate(ctx, opts, systemPrompt, conversation)
		if err != nil {
			return nil, fmt.Errorf("agent model call failed: %w", err)
		}
		conversation = append(conversation, llm.Message{Role: "assistant", Content: text})

		calls := extractToolCalls(text)
		if len(calls) == 0 {
			// Plain text answer: record it and let the validator decide
			transcript = append(transcript, text)

			ok, report, err := r.validate(ctx, opts)
			if err != nil {
				return nil, err
			}
			if report != "" {
				transcript = append(transcript, report)
				conversation = append(conversation, llm.Message{Role: "user", Content: report})
			}
			if ok {
				result.ValidatorOK = true
				break
			}
			continue
		}

		// Any rejection in a batch stops the whole batch
		var rejections []string
		for _, call := range calls {
			if msg, denied := guardToolCall(call, opts.ApplyChanges); denied {
				rejections = append(rejections, msg)
			}
		}
		if len(rejections) > 0 {
			result.Blocked = true
			r.logger.Warn().
				Str("task_id", task.ID).
				Int("loop", loop).
				Int("rejections", len(rejections)).
				Msg("Guardrail rejected tool calls")
			transcript = append(transcript, rejections...)
			conversation = append(conversation, llm.Message{Role: "user", Content: strings.Join(rejections, "\n")})
			continue
		}
		result.Blocked = false

		outputs := make([]string, 0, len(calls))
		for _, call := range calls {
			outputs = append(outputs, r.invokeTool(ctx, call))
		}
		transcript = append(transcript, outputs...)
		conversation = append(conversation, llm.Message{Role: "user", Content: strings.Join(outputs, "\n")})

		// A failed tool goes back to the model before validating
		last := strings.ToLower(outputs[len(outputs)-1])
		if strings.Contains(last, "error:") || strings.Contains(last, "stderr") {
			continue
		}

		ok, report, err := r.validate(ctx, opts)
		if err != nil {
			return nil, err
		}
		if report != "" {
			transcript = append(transcript, report)
			conversation = append(conversation, llm.Message{Role: "user", Content: report})
		}
		if ok {
			result.ValidatorOK = true
			break
		}
	}

	result.Messages = transcript

	r.logger.Debug().
		Str("task_id", task.ID).
		Bool("validator_ok", result.ValidatorOK).
		Bool("blocked", result.Blocked).
		Int("messages", len(result.Messages)).
		Msg("Agent task finished")

	return result, nil
}

// generate performs one model call with the per-call timeout applied
func (r *Runner) generate(ctx context.Context, opts RunOptions, systemPrompt string, conversation []llm.Message) (string, error) {
	callCtx := ctx
	if opts.LLMTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, opts.LLMTimeout)
		defer cancel()
	}

	response, err := r.provider.GenerateContent(callCtx, &llm.ContentRequest{
		Messages:          conversation,
		Model:             opts.Model,
		SystemInstruction: systemPrompt,
	})
	if err != nil {
		return "", err
	}
	return response.Text, nil
}

// invokeTool executes one call and renders its outcome as feedback for
// the model. Tool failures become ERROR lines rather than aborting the
// task.
func (r *Runner) invokeTool(ctx context.Context, call toolCall) string {
	tool, err := r.registry.Get(call.Name)
	if err != nil {
		return fmt.Sprintf("ERROR: tool '%s' is not available", call.Name)
	}

	output, err := tool.Invoke(ctx, call.Args)
	if err != nil {
		return fmt.Sprintf("ERROR: %v", err)
	}
	return output
}

// validate runs the check command and reports the outcome. Exit code 0
// passes; exit code 5 passes when the output shows no tests were
// collected (pytest convention). The report is fed back to the model on
// failure.
func (r *Runner) validate(ctx context.Context, opts RunOptions) (bool, string, error) {
	if opts.CheckCommand == "" {
		return true, "", nil
	}

	vctx := ctx
	if opts.ValidatorTimeout > 0 {
		var cancel context.CancelFunc
		vctx, cancel = context.WithTimeout(ctx, opts.ValidatorTimeout)
		defer cancel()
	}

	result, err := r.commands.Run(vctx, opts.CheckCommand)
	if err != nil {
		if ctx.Err() != nil {
			return false, "", ctx.Err()
		}
		if errors.Is(vctx.Err(), context.DeadlineExceeded) {
			return false, "VALIDATOR TIMEOUT", nil
		}
		return false, fmt.Sprintf("VALIDATOR ERROR: %v", err), nil
	}

	content := fmt.Sprintf("VALIDATOR STDOUT\n%s\nVALIDATOR STDERR\n%s\nEXIT %d", result.Stdout, result.Stderr, result.ExitCode)
	stdout := strings.ToLower(result.Stdout)
	ok := result.ExitCode == 0 ||
		(result.ExitCode == 5 && (strings.Contains(stdout, "no tests ran") || strings.Contains(stdout, "no tests collected")))

	return ok, content, nil
}

// systemPrompt lists the registered tools and the expected call format
func (r *Runner) systemPrompt(opts RunOptions) string {
	var b strings.Builder
	b.WriteString("You are a coding agent. Complete the user's task by calling tools.\n\nAvailable tools:\n")
	for _, tool := range r.registry.List() {
		fmt.Fprintf(&b, "- %s: %s\n", tool.Name(), tool.Description())
	}
	b.WriteString("\nRespond with a single JSON object {\"name\": \"<tool>\", \"arguments\": {...}} ")
	b.WriteString("or a JSON array of such objects. Do NOT wrap the JSON in markdown. ")
	b.WriteString("When the task is complete, respond with a short plain-text summary instead of a tool call.")
	fmt.Fprintf(&b, " apply_changes=%t.", opts.ApplyChanges)
	return b.String()
}
