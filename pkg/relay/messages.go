package relay

// User-facing replies. Failures never reach the user as raw errors.
const (
	MsgHelp = `I relay your messages to a language model.

Send any text to chat.
/code <request> answers with source code.
/img <description> draws a picture.
/reset forgets this conversation.
You can also send a plain-text document to get a summary.

Long answers are split into pages; use ◀ and ▶ below the message to flip through them.`

	MsgTimeout        = "⏳ The model took too long to answer. Please try again."
	MsgUnavailable    = "⚠️ The model is unavailable right now. Please try again later."
	MsgNotConfigured  = "⚙️ Configuration missing: this feature is not set up on the server."
	MsgDeliveryFailed = "⚠️ The answer could not be displayed."
	MsgInternal       = "⚠️ Something went wrong. Please try again."
	MsgImageFailed    = "⚠️ The image could not be generated."
	MsgReset          = "🧹 Conversation history cleared."
	MsgCodeUsage      = "Usage: /code <what you need>"
	MsgImageUsage     = "Usage: /img <description>"
	MsgUnknownCommand = "Unknown command. Send /help for the list."
	MsgUnsupported    = "Only plain-text documents are supported."
	MsgFileTooLarge   = "The document is too large."
	MsgEmptyFile      = "The document is empty."
)
