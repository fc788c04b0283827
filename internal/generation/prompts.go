package generation

import (
	"fmt"
	"sort"
	"strings"

	"notebook/internal/domain"
)

var outputInstructions = map[domain.OutputType]string{
	domain.OutputText:       "Write a clear, well organised answer based on the sources.",
	domain.OutputSummary:    "Write a concise summary of the sources. Start with a one paragraph overview, then list the key points as bullets.",
	domain.OutputFAQ:        "Write a list of frequently asked questions with answers, covering the most important facts in the sources. Use 'Q:' and 'A:' prefixes.",
	domain.OutputStudyGuide: "Write a study guide: key concepts with short definitions, a glossary, and five review questions with answers.",
	domain.OutputTimeline:   "Build a chronological timeline of the events in the sources. One line per event, starting with the date or period.",
	domain.OutputOutline:    "Write a hierarchical outline of the sources using numbered headings and nested bullets.",
	domain.OutputBriefing:   "Write a briefing document for a busy reader: context, main findings, open questions and recommended next steps.",
}

// BuildPrompt renders a request as a single prompt for a text model.
func BuildPrompt(req domain.GenerationRequest) string {
	sb := &strings.Builder{}
	instruction, ok := outputInstructions[req.OutputType]
	if !ok {
		instruction = outputInstructions[domain.OutputText]
	}
	fmt.Fprintf(sb, "Task: %s\n%s\n", req.OutputType.Label(), instruction)

	if lang := customizationString(req.Customization, "language"); lang != "" {
		fmt.Fprintf(sb, "Respond in language '%s'.\n", lang)
	}
	if extra := remainingCustomization(req.Customization); extra != "" {
		fmt.Fprintf(sb, "Preferences: %s\n", extra)
	}
	if req.IncludeCitations {
		sb.WriteString("Cite the source number in square brackets after each claim, for example [1].\n")
	}
	if text := strings.TrimSpace(req.Text); text != "" {
		fmt.Fprintf(sb, "\nInstructions from the user:\n%s\n", text)
	}
	if len(req.Resources) > 0 {
		sb.WriteString("\nSources:\n")
		for i, res := range req.Resources {
			fmt.Fprintf(sb, "[%d] (%s) %s\n", i+1, res.Type, strings.TrimSpace(res.Content))
		}
	}
	return sb.String()
}

func customizationString(c map[string]any, key string) string {
	if c == nil {
		return ""
	}
	if v, ok := c[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func remainingCustomization(c map[string]any) string {
	keys := make([]string, 0, len(c))
	for k := range c {
		if k == "language" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, c[k]))
	}
	return strings.Join(parts, ", ")
}
