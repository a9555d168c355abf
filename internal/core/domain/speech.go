package domain

// Speakable fallbacks returned to the voice agent instead of raw errors.
const (
	FallbackVerifyAnswer  = "I'll verify that and follow up."
	NoKnowledgeAnswer     = "I couldn't find any specific information on that."
	UnknownFunctionAnswer = "I'm not able to help with that request, but I'll note it for the agent."
	MissingSubjectAnswer  = "Which property are you asking about? Could you share the property ID or name?"
	MissingQuestionAnswer = "Could you repeat the question?"
	NoListingsAnswer      = "I couldn't find any listings matching that. Could you describe the property another way?"
)
