package nl2sql

import (
	"fmt"
	"strings"
)

const firstAttemptTemplate = "You are a SQL expert. Given this database schema and a user question, " +
	"generate a valid DuckDB SQL query.\n\n" +
	"%s\n\n" +
	"%s\n\n" +
	"User question: %s\n\n" +
	"Generate ONLY the SQL query, no explanation. Use read-only SELECT statements only.\n" +
	"Prefer using the views when appropriate for the question."

const repairTemplate = "Your previous SQL query failed with this error:\n\n" +
	"Error: %s\n\n" +
	"Previous query:\n" +
	"%s\n\n" +
	"Here is the schema again:\n" +
	"%s\n\n" +
	"User question: %s\n\n" +
	"Please fix the query. Pay careful attention to:\n" +
	"1. Use the EXACT column names from the schema\n" +
	"2. Check which table/view has the columns you need\n" +
	"3. Generate ONLY the corrected SQL query, no explanation."

// FirstAttemptPrompt builds the prompt for the initial generation.
func FirstAttemptPrompt(schemaText, businessContext, question string) string {
	return fmt.Sprintf(firstAttemptTemplate, schemaText, businessContext, strings.TrimSpace(question))
}

// RepairPrompt builds the prompt sent after a failed attempt.
func RepairPrompt(lastError, lastSQL, schemaText, question string) string {
	return fmt.Sprintf(repairTemplate, lastError, lastSQL, schemaText, strings.TrimSpace(question))
}

// PromptTemplates exposes the templates with named placeholders for display.
func PromptTemplates() map[string]string {
	return map[string]string{
		"sql_first_attempt": fmt.Sprintf(firstAttemptTemplate, "{schema}", "{business context}", "{user_question}"),
		"sql_repair":        fmt.Sprintf(repairTemplate, "{last_error}", "{last_sql}", "{schema}", "{user_question}"),
	}
}
