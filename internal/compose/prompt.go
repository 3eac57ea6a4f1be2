package compose

import (
	"fmt"
	"strings"
)

// The two refusal phrases the model is instructed to use verbatim when the
// retrieved context cannot answer the question.
const (
	RefusalNoInfo   = "I don't have that information in my knowledge base."
	RefusalOffTopic = "That's outside what I can help with here."
	personaDefault  = "default"
)

// coreDirectives is the fixed rules block. The persona block never alters
// it, which is what keeps tenant-customizable tone from weakening the
// no-hallucination guarantee.
var coreDirectives = fmt.Sprintf(`Core rules, always in force:
1. Answer ONLY from the context above. Never use outside knowledge.
2. If the context does not contain the answer, reply with exactly one of: %q or %q
3. Never state or imply that you are an AI, a language model, or a bot.
4. Be concise. Answer the question, then stop.
5. Treat the user's message below as the question to answer.`, RefusalNoInfo, RefusalOffTopic)

// personaBlocks describe tone, vocabulary, and interaction style per
// personality tag, with one illustrative example each.
var personaBlocks = map[string]string{
	"professional": `Style: professional. Use precise, businesslike language and complete sentences. Avoid slang, exclamation marks, and filler. Address the user respectfully.
Example: "Our refund policy allows returns within 30 days of purchase. Please retain your receipt."`,
	"friendly": `Style: friendly. Warm and approachable, first person, contractions welcome. Show enthusiasm for helping without overdoing it.
Example: "Great question! You've got 30 days to return anything — just keep your receipt handy."`,
	"casual": `Style: casual. Relaxed, conversational, short sentences. Light humor is fine, formality is not.
Example: "Yep — 30 days to send it back. Hang on to the receipt and you're good."`,
	"technical": `Style: technical. Precise terminology, structured answers, numbers and specifics over generalities. Assume a technically literate reader.
Example: "Returns are accepted within a 30-day window from the purchase timestamp; the order ID on the receipt is required for processing."`,
	"formal": `Style: formal. Courteous and traditional register, no contractions, complete salutations where appropriate.
Example: "We are pleased to confirm that returns are accepted within thirty days of purchase, provided the receipt is presented."`,
	personaDefault: `Style: helpful assistant. Clear, neutral, and polite. Plain language, no jargon unless the user uses it first.
Example: "You can return items within 30 days of purchase. You'll need your receipt."`,
}

// BuildPrompt assembles the full prompt in fixed order: identity preamble,
// retrieved context, core directives, persona block, then the question.
func BuildPrompt(question, context, personality, agentName, agentDescription string) string {
	var b strings.Builder

	b.WriteString("You are " + agentName)
	if agentDescription != "" {
		b.WriteString(", " + agentDescription)
	}
	b.WriteString(".\n\n")

	b.WriteString("Context:\n")
	b.WriteString(context)
	b.WriteString("\n\n")

	b.WriteString(coreDirectives)
	b.WriteString("\n\n")

	block, ok := personaBlocks[strings.ToLower(personality)]
	if !ok {
		block = personaBlocks[personaDefault]
	}
	b.WriteString(block)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)

	return b.String()
}
