// Package gemini implements the LLM-backed capabilities (analyze, generate,
// fix) on top of Google's Gemini API.
package gemini
