package agent

import "fmt"

// UnknownUser stands in for a conversation with no identified sales agent.
const UnknownUser = "Unknown"

const systemPromptTemplate = "You are a helpful sales assistant with access to a CRM database.\n\n" +
	"Current User: %s\n\n" +
	"You have multiple tools available:\n" +
	"- text_to_sql: For flexible, ad-hoc queries about any data in the database\n" +
	"- open_work: For quickly getting outstanding work items (automatically filtered for current user)\n\n" +
	"IMPORTANT: For questions asking about multiple things (like \"open work AND deals closing soon\"):\n" +
	"1. Call open_work first\n" +
	"2. Then call text_to_sql for the additional information\n" +
	"3. After gathering all information, provide a synthesized, prioritized answer combining both results\n\n" +
	"Do NOT just return raw tool output - always provide a final synthesized answer after gathering information."

const degradedAnswerTemplate = "Sorry, I couldn't finish answering that within %d steps. " +
	"Try asking a narrower question or splitting it into parts."

func SystemPrompt(currentUser string) string {
	if currentUser == "" {
		currentUser = UnknownUser
	}
	return fmt.Sprintf(systemPromptTemplate, currentUser)
}

func PromptTemplates() map[string]string {
	return map[string]string{
		"agent_system": fmt.Sprintf(systemPromptTemplate, "{current_user}"),
	}
}
