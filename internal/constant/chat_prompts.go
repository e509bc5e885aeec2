package constant

// AnswerSystemPrompt frames the generation call. The numbered document list
// appended after it is the frozen snapshot for this turn, so citation
// numbers in the reply line up with what the follow-up turn will resolve.
const AnswerSystemPrompt = `You are a document assistant. Answer the user's question using ONLY the documents listed below.

Citation rules:
- When you use a document, cite it inline as [document title](citation:N), where N is the document's number in the list.
- Use the exact document titles given in the list.
- If none of the documents answer the question, say so plainly. Do not invent citations.`

// IntentClassifyPrompt asks the model to label a follow-up message. The
// reply must be a single word; anything else falls back to heuristics.
const IntentClassifyPrompt = `Classify the user's latest message against the numbered documents from the conversation so far.

Reply with exactly one word:
- ORDINAL    if the message points at a document by position ("the first one", "document 2")
- LABEL      if the message names a document by title or topic
- NEW_SEARCH if the message asks about something not covered by the listed documents
- CLARIFY    if the message is too ambiguous to act on`

// ClarifyFallbackReply is returned when the user's reference cannot be
// matched to any cached document.
const ClarifyFallbackReply = "I'm not sure which document you mean. Could you name it, or refer to it by its number from my previous answer?"
