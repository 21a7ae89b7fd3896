/*
Package wire implements the text protocol spoken between the loop and the
model: reasoning markers, tool-call directives and tool-result feedback.

The upstream model is conditioned on these exact marker literals, so the
grammar is fixed:

	[Thinking: <free text>]

	TOOL_CALL: <name>
	ARGUMENTS: <json object>

	TOOL_RESULT: <name>
	STATUS: <success|error>
	CONTENT: <text>
	---

Parsing is tolerant by design: a directive whose ARGUMENTS line is not valid
JSON is dropped (and logged), never fatal to the whole response.
*/
package wire
