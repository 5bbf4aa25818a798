package prompts

import "fmt"

// SuccessGuidance is appended to a synthesized tool-result turn after
// every tool call succeeded. It keeps the model moving file by file
// instead of summarizing what it just did.
func SuccessGuidance(filesImplemented int) string {
	return fmt.Sprintf(`File implementation completed successfully.

Progress: %d files implemented.

Next action: implement the next file according to the plan priorities.
1. Identify the next highest-priority file from the plan
2. Implement it completely with production-quality code
3. Use the write_file tool to create the file

Implement exactly one complete file per response. Do not skip files or
create multiple files at once.`, filesImplemented)
}

// ErrorGuidance is appended when at least one tool call in the batch
// returned the structured error envelope. Tool failures never stop the
// loop; they change what the model is told to do next.
func ErrorGuidance() string {
	return `An error occurred during file implementation.

1. Review the error details above
2. Fix the identified issue
3. Continue with the next file implementation`
}

// NoToolsGuidance is injected when the model responded without calling
// any tool early in a run. directive escalates the wording on the
// second consecutive idle response.
func NoToolsGuidance(filesImplemented int, directive bool) string {
	if !directive {
		return fmt.Sprintf(`No tool calls detected in your response.

Current progress: %d files implemented.

Identify the next file from the implementation plan and implement it
using the write_file tool.`, filesImplemented)
	}
	return fmt.Sprintf(`No tool calls detected again.

Current progress: %d files implemented.

You must use tools to implement files. Do not provide explanations —
take action now:
1. Pick the next unimplemented file from the plan
2. Write its complete contents with the write_file tool`, filesImplemented)
}

// ToolResultsHeader precedes the concatenated tool outputs inside the
// synthesized user turn.
const ToolResultsHeader = "Tool execution results:"

// ToolResultBlock formats one tool outcome for the synthesized turn.
func ToolResultBlock(toolName, result string) string {
	return fmt.Sprintf("```\nTool: %s\nResult: %s\n```", toolName, result)
}
