package classify

import "strings"

const promptTemplate = `Analyze the text to determine if it's a task. A task is a to-do item, a question needing an answer, or a request for action.
- A command starting with "/" is NOT a task.
- A simple statement or conversation is NOT a task.
- A block of code is NOT a task.
- A report, summary, or log entry is NOT a task.

Respond with only "true" or "false".

Example 1:
Text: "Remember to buy milk tomorrow"
Response: "true"

Example 2:
Text: "/add_task buy milk"
Response: "false"

Example 3:
Text: "What is the capital of France?"
Response: "true"

Example 4:
Text: "hello how are you"
Response: "false"

Example 5:
Text: "` + "```python\\nprint('hello world')\\n```" + `"
Response: "false"

Example 6:
Text: "06/25 Report"
Response: "false"

Text to analyze: "{{text}}"`

func BuildPrompt(text string) string {
	return strings.Replace(promptTemplate, "{{text}}", text, 1)
}
