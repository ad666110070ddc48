// internal/workers/ai-conversation/llm-synthesis/models.go
package llmsynthesis

// Fixed sentences returned without a model call.
const (
	NoFieldValueAnswer = "No value found for that field."
	NoRecordAnswer     = "No matching record found."
	NoRecordsAnswer    = "No records found."
	UntitledLabel      = "(untitled)"
)

// commonLabelColumns is tried, in order, after the table's display column.
var commonLabelColumns = []string{"title", "name", "lead_name", "full_name", "subject", "customer_name"}

const aggregateInstruction = `You write answers for a CRM assistant.
You are given a question and a value that has already been computed from the database.
Reply with exactly one sentence that answers the question and contains the value exactly as given, character for character.
Do not round, reformat, or restate the value in words. Do not add commentary, advice, or a second sentence.`

const recordInstruction = `You write answers for a CRM assistant.
You are given a question and the label of the single record that matches it.
Reply with one short sentence that refers to the record by that label only.
Do not list fields, ids, dates, or any other details, and do not invent any.`

const generalInstruction = `You are a friendly assistant inside a CRM used by a sales team.
You can answer questions about leads, tasks, activities, and bookings, such as counts, lists, and single records.
Reply conversationally in one to three sentences.
Never state numbers, names, or other data about the CRM: you have not been given any.
If the message asks for data you cannot provide, suggest how to rephrase it, for example "How many won leads this month?".`
