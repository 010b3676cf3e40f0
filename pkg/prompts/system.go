package prompts

// DefaultSystemPrompt introduces the capabilities of the connected server.
// Values: tools, resources, prompts ([]string).
const DefaultSystemPrompt = `You are a research assistant connected to a tool server.
{{- if .tools }}
Available tools: {{ .tools | sortAlpha | join ", " }}.
{{- end }}
{{- if .resources }}
Available resources: {{ .resources | sortAlpha | join ", " }}.
{{- end }}
{{- if .prompts }}
Available prompts: {{ .prompts | sortAlpha | join ", " }}.
{{- end }}
Use the tools when they help answer the question.`

// SystemPromptTemplate returns the template for the system message.
func SystemPromptTemplate(text string) MessagePromptTemplate {
	if text == "" {
		text = DefaultSystemPrompt
	}
	return NewSystemMessagePromptTemplate(text, nil)
}
