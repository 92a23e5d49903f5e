// Package dialogue owns the conversation state machine that mediates
// between the user and the research pipeline: intent classification,
// clarification round-trips, plan review and editing, and the execution
// bridge.
package dialogue

import (
	"context"
	"strings"

	"deepscholar/internal/logging"
	"deepscholar/internal/types"
)

// Keyword sets per intent, across the supported languages. Matching is
// word-boundary aware for short words to avoid substring hits.
var intentKeywords = map[types.Intent][]string{
	types.IntentConfirm: {
		"yes", "ok", "okay", "confirm", "approve", "go ahead", "proceed", "sounds good", "do it", "start", "run it",
		"đồng ý", "được", "ừ", "vâng", "bắt đầu",
		"sí", "si", "vale", "de acuerdo", "adelante",
		"oui", "d'accord", "allez-y",
		"ja", "einverstanden", "los geht's",
	},
	types.IntentCancel: {
		"no", "cancel", "stop", "abort", "never mind", "nevermind", "forget it", "quit",
		"hủy", "không", "thôi", "dừng lại",
		"cancelar", "parar", "olvídalo",
		"annuler", "arrête", "laisse tomber",
		"abbrechen", "stopp", "vergiss es",
	},
	types.IntentEdit: {
		"add", "remove", "change", "edit", "modify", "instead", "drop", "delete",
		"thêm", "xóa", "sửa", "thay đổi", "bỏ",
		"añadir", "agregar", "quitar", "cambiar",
		"ajouter", "supprimer", "modifier", "changer",
		"hinzufügen", "entfernen", "ändern",
	},
	types.IntentNewTopic: {
		"research", "find papers", "look up", "search for", "survey", "literature", "papers about", "papers on", "tell me about",
		"nghiên cứu", "tìm bài báo", "tìm hiểu",
		"investigar", "buscar artículos",
		"rechercher", "recherche sur",
		"recherchieren", "papiere über",
	},
	types.IntentChat: {
		"hello", "hi ", "hey", "thanks", "thank you", "how are you", "good morning", "bye", "goodbye",
		"xin chào", "chào", "cảm ơn", "tạm biệt",
		"hola", "gracias", "adiós",
		"bonjour", "merci", "salut", "au revoir",
		"hallo", "danke", "tschüss",
	},
}

// classifyOrder resolves conflicts: an explicit confirm/cancel beats an
// edit word, and edit beats starting over.
var classifyOrder = []types.Intent{
	types.IntentConfirm,
	types.IntentCancel,
	types.IntentEdit,
	types.IntentNewTopic,
	types.IntentChat,
}

// Classifier maps a user turn to an intent. Keywords first, LLM fallback
// with a state hint when nothing matches.
type Classifier struct {
	llm types.LLMClient
}

// NewClassifier builds a classifier. A nil client disables the fallback.
func NewClassifier(llmClient types.LLMClient) *Classifier {
	return &Classifier{llm: llmClient}
}

// Classify returns the intent for a message given the current state.
func (c *Classifier) Classify(ctx context.Context, message string, state types.ConvState) types.Intent {
	if intent, ok := classifyByKeywords(message); ok {
		return intent
	}
	if intent, ok := c.classifyByLLM(ctx, message, state); ok {
		return intent
	}
	return types.IntentOther
}

func classifyByKeywords(message string) (types.Intent, bool) {
	lower := strings.ToLower(strings.TrimSpace(message))
	if lower == "" {
		return types.IntentOther, false
	}
	padded := " " + lower + " "

	for _, intent := range classifyOrder {
		for _, kw := range intentKeywords[intent] {
			if len(kw) <= 3 {
				// Word-boundary match so "no" does not fire inside "nothing".
				if strings.Contains(padded, " "+strings.TrimSpace(kw)+" ") {
					return intent, true
				}
				continue
			}
			if strings.Contains(lower, kw) {
				return intent, true
			}
		}
	}
	return types.IntentOther, false
}

func (c *Classifier) classifyByLLM(ctx context.Context, message string, state types.ConvState) (types.Intent, bool) {
	if c.llm == nil {
		return types.IntentOther, false
	}

	system := "Classify the user message into exactly one intent: confirm, cancel, edit, new_topic, chat, other.\n" +
		"Conversation state: " + string(state) + ". " + stateHint(state) + "\n" +
		"Reply with the single intent word only."

	reply, err := c.llm.CompleteWithSystem(ctx, system, message)
	if err != nil {
		logging.DialogueDebug("intent llm fallback failed: %v", err)
		return types.IntentOther, false
	}

	switch types.Intent(strings.ToLower(strings.TrimSpace(reply))) {
	case types.IntentConfirm:
		return types.IntentConfirm, true
	case types.IntentCancel:
		return types.IntentCancel, true
	case types.IntentEdit:
		return types.IntentEdit, true
	case types.IntentNewTopic:
		return types.IntentNewTopic, true
	case types.IntentChat:
		return types.IntentChat, true
	}
	return types.IntentOther, false
}

func stateHint(state types.ConvState) string {
	switch state {
	case types.StateReviewing:
		return "The user has a research plan awaiting approval; short agreement means confirm, change requests mean edit."
	case types.StateClarifying:
		return "The user was asked a clarifying question; an answer about the topic means other, agreement means confirm."
	case types.StateExecuting:
		return "Research is running; requests to halt mean cancel."
	default:
		return "A question or topic to research means new_topic."
	}
}
