package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/model"
)

// Prompter renders pipeline questions on a terminal and collects answers.
// It implements the interactive side of a suspended import run.
type Prompter struct {
	writer io.Writer
	reader *bufio.Reader
}

// NewPrompter creates a prompter with the given reader and writer. Nil
// arguments default to stdin and stdout.
func NewPrompter(reader io.Reader, writer io.Writer) *Prompter {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}
	return &Prompter{
		reader: bufio.NewReader(reader),
		writer: writer,
	}
}

// Ask renders the directions of a waiting process and returns the
// user's answer, ready to merge into the process state.
func (p *Prompter) Ask(ctx context.Context, directions model.Directions) (model.Value, error) {
	switch directions.Element.Type {
	case model.ElementYesNo:
		return p.askYesNo(ctx, directions.Element)
	case model.ElementAccountPicker:
		return p.askAccount(ctx, directions.Element)
	case model.ElementRuleEditor:
		return p.askRule(ctx, directions.Element)
	default:
		return model.Value{}, fmt.Errorf("unknown question type %q", directions.Element.Type)
	}
}

func (p *Prompter) askYesNo(ctx context.Context, element model.UIElement) (model.Value, error) {
	p.println(FormatTitle(element.Question))
	choice, err := p.promptChoice(ctx, "Answer [y/n]", []string{"y", "yes", "n", "no"})
	if err != nil {
		return model.Value{}, err
	}
	return model.Boolean(choice == "y" || choice == "yes"), nil
}

func (p *Prompter) askAccount(ctx context.Context, element model.UIElement) (model.Value, error) {
	p.println(FormatTitle(element.Question))
	for i, option := range element.Options {
		p.println(fmt.Sprintf("  %d. %s %s", i+1, option.Number, SubtleStyle.Render(option.Name)))
	}

	for {
		input, err := p.promptLine(ctx, "Account number or list index")
		if err != nil {
			return model.Value{}, err
		}
		if input == "" {
			p.println(FormatError("An account is required. Please try again."))
			continue
		}

		var index int
		if _, err := fmt.Sscanf(input, "%d", &index); err == nil && index >= 1 && index <= len(element.Options) {
			return model.String(element.Options[index-1].Number), nil
		}
		return model.String(input), nil
	}
}

// askRule shows the unmatched lines and reads a one-line JSON rule. The
// rule applies to this segment only; permanent rules belong in the rule
// set file.
func (p *Prompter) askRule(ctx context.Context, element model.UIElement) (model.Value, error) {
	p.println(FormatTitle(element.Question))
	for _, line := range element.Lines {
		p.println(LineStyle.Render(formatLine(line)))
	}
	if len(element.NumericFields) > 0 {
		p.println(FormatInfo("Numeric fields: " + strings.Join(element.NumericFields, ", ")))
	}
	if len(element.TextFields) > 0 {
		p.println(FormatInfo("Text fields: " + strings.Join(element.TextFields, ", ")))
	}

	for {
		input, err := p.promptLine(ctx, "One-off rule (JSON)")
		if err != nil {
			return model.Value{}, err
		}

		var rule model.Rule
		if err := json.Unmarshal([]byte(input), &rule); err != nil {
			p.println(FormatError("Not a valid rule: " + err.Error()))
			continue
		}
		if len(rule.Filter) == 0 || len(rule.Result) == 0 {
			p.println(FormatError("A rule needs both a filter and a result. Please try again."))
			continue
		}
		return model.String(input), nil
	}
}

func (p *Prompter) promptChoice(ctx context.Context, prompt string, validChoices []string) (string, error) {
	for {
		choice, err := p.promptLine(ctx, prompt)
		if err != nil {
			return "", err
		}
		choice = strings.ToLower(choice)
		for _, valid := range validChoices {
			if choice == valid {
				return choice, nil
			}
		}
		p.println(FormatError("Invalid choice. Please try again."))
	}
}

func (p *Prompter) promptLine(ctx context.Context, prompt string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	if _, err := fmt.Fprint(p.writer, FormatPrompt(prompt)); err != nil {
		return "", fmt.Errorf("failed to write prompt: %w", err)
	}

	input, err := p.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF && input != "" {
			return strings.TrimSpace(input), nil
		}
		if err == io.EOF {
			return "", fmt.Errorf("input terminated")
		}
		return "", err
	}
	return strings.TrimSpace(input), nil
}

func (p *Prompter) println(line string) {
	if _, err := fmt.Fprintln(p.writer, line); err != nil {
		slog.Warn("Failed to write output", "error", err)
	}
}

// formatLine renders one decoded line compactly: significant columns in
// stable order, date first when present.
func formatLine(line model.DecodedLine) string {
	var parts []string
	if line.Time != nil {
		parts = append(parts, line.Time.Format("2006-01-02"))
	}
	if line.RawText != "" {
		parts = append(parts, line.RawText)
		return strings.Join(parts, "  ")
	}
	for _, name := range []string{"type", "description", "name", "amount", "balance"} {
		if v := line.Column(name); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "  ")
}
