package dialogue

import (
	"fmt"
	"strings"

	"deepscholar/internal/types"
)

// messages holds the per-language template set. English is the fallback for
// any missing key.
type messages struct {
	greeting      string
	clarifyIntro  string
	historyHint   string
	planIntro     string
	planOutro     string
	planDiscarded string
	cancelled     string
	starting      string
	stillWorking  string
	completed     string
	failed        string
	chatFallback  string
}

var templateSets = map[string]messages{
	"en": {
		greeting:      "Hi! Tell me a research topic and I'll collect and synthesize the literature for you.",
		clarifyIntro:  "Before I start, I want to make sure I understand. %s",
		historyHint:   "From your history: %s",
		planIntro:     "Here's my plan for researching %q:",
		planOutro:     "Reply with \"ok\" to start, tell me what to add or remove, or \"cancel\" to drop it.",
		planDiscarded: "Alright, I've dropped that plan.",
		cancelled:     "Cancelled. Let me know when you have another topic.",
		starting:      "Starting the research now. I'll report back as phases complete.",
		stillWorking:  "Still working on the previous request. I'll let you know as soon as it finishes.",
		completed:     "Done! %s",
		failed:        "Something went wrong: %s. Say a new topic to start over.",
		chatFallback:  "I'm a research assistant, so I'm best at finding and summarizing papers. What topic should I look into?",
	},
	"vi": {
		greeting:      "Xin chào! Hãy cho tôi biết chủ đề nghiên cứu và tôi sẽ thu thập, tổng hợp tài liệu cho bạn.",
		clarifyIntro:  "Trước khi bắt đầu, tôi muốn chắc là mình hiểu đúng. %s",
		historyHint:   "Từ lịch sử của bạn: %s",
		planIntro:     "Đây là kế hoạch của tôi cho chủ đề %q:",
		planOutro:     "Trả lời \"ok\" để bắt đầu, cho tôi biết cần thêm hay xóa gì, hoặc \"hủy\" để bỏ.",
		planDiscarded: "Được rồi, tôi đã bỏ kế hoạch đó.",
		cancelled:     "Đã hủy. Khi nào có chủ đề khác thì cho tôi biết nhé.",
		starting:      "Bắt đầu nghiên cứu ngay. Tôi sẽ báo lại khi các bước hoàn thành.",
		stillWorking:  "Vẫn đang xử lý yêu cầu trước. Tôi sẽ báo ngay khi xong.",
		completed:     "Xong rồi! %s",
		failed:        "Có lỗi xảy ra: %s. Hãy nêu chủ đề mới để bắt đầu lại.",
		chatFallback:  "Tôi là trợ lý nghiên cứu, giỏi nhất là tìm và tóm tắt bài báo. Bạn muốn tôi tìm hiểu chủ đề gì?",
	},
	"es": {
		greeting:      "¡Hola! Dime un tema de investigación y recopilaré y sintetizaré la literatura por ti.",
		clarifyIntro:  "Antes de empezar, quiero asegurarme de entender bien. %s",
		historyHint:   "De tu historial: %s",
		planIntro:     "Este es mi plan para investigar %q:",
		planOutro:     "Responde \"ok\" para empezar, dime qué añadir o quitar, o \"cancelar\" para descartarlo.",
		planDiscarded: "De acuerdo, he descartado ese plan.",
		cancelled:     "Cancelado. Avísame cuando tengas otro tema.",
		starting:      "Empezando la investigación. Te informaré según se completen las fases.",
		stillWorking:  "Sigo trabajando en la petición anterior. Te aviso en cuanto termine.",
		completed:     "¡Listo! %s",
		failed:        "Algo salió mal: %s. Di un tema nuevo para empezar de nuevo.",
		chatFallback:  "Soy un asistente de investigación; lo mío es encontrar y resumir artículos. ¿Qué tema investigo?",
	},
	"fr": {
		greeting:      "Bonjour ! Donnez-moi un sujet de recherche et je rassemblerai et synthétiserai la littérature pour vous.",
		clarifyIntro:  "Avant de commencer, je veux être sûr de bien comprendre. %s",
		historyHint:   "D'après votre historique : %s",
		planIntro:     "Voici mon plan pour la recherche sur %q :",
		planOutro:     "Répondez \"ok\" pour lancer, dites-moi quoi ajouter ou supprimer, ou \"annuler\" pour abandonner.",
		planDiscarded: "Très bien, j'ai abandonné ce plan.",
		cancelled:     "Annulé. Dites-moi quand vous aurez un autre sujet.",
		starting:      "Je lance la recherche. Je vous tiendrai au courant à chaque étape.",
		stillWorking:  "Je travaille encore sur la demande précédente. Je vous préviens dès que c'est terminé.",
		completed:     "Terminé ! %s",
		failed:        "Une erreur est survenue : %s. Donnez un nouveau sujet pour recommencer.",
		chatFallback:  "Je suis un assistant de recherche ; je trouve et résume des articles. Quel sujet dois-je explorer ?",
	},
	"de": {
		greeting:      "Hallo! Nennen Sie mir ein Forschungsthema und ich sammle und fasse die Literatur für Sie zusammen.",
		clarifyIntro:  "Bevor ich anfange, möchte ich sichergehen, dass ich es richtig verstehe. %s",
		historyHint:   "Aus Ihrem Verlauf: %s",
		planIntro:     "Hier ist mein Plan für die Recherche zu %q:",
		planOutro:     "Antworten Sie mit \"ok\" zum Starten, sagen Sie mir, was ich hinzufügen oder entfernen soll, oder \"abbrechen\".",
		planDiscarded: "In Ordnung, ich habe den Plan verworfen.",
		cancelled:     "Abgebrochen. Sagen Sie Bescheid, wenn Sie ein anderes Thema haben.",
		starting:      "Ich starte die Recherche jetzt. Ich melde mich, sobald Phasen abgeschlossen sind.",
		stillWorking:  "Ich arbeite noch an der vorherigen Anfrage. Ich melde mich, sobald sie fertig ist.",
		completed:     "Fertig! %s",
		failed:        "Etwas ist schiefgelaufen: %s. Nennen Sie ein neues Thema, um neu zu starten.",
		chatFallback:  "Ich bin ein Rechercheassistent; ich finde und fasse Artikel zusammen. Welches Thema soll ich untersuchen?",
	},
}

func templatesFor(lang string) messages {
	if t, ok := templateSets[lang]; ok {
		return t
	}
	return templateSets["en"]
}

// renderPlan formats a pending plan for review in the user's language.
func renderPlan(plan *types.ResearchPlan, lang string) string {
	t := templatesFor(lang)

	var b strings.Builder
	fmt.Fprintf(&b, t.planIntro, plan.Topic)
	b.WriteString("\n\n")
	if plan.Summary != "" {
		b.WriteString(plan.Summary)
		b.WriteString("\n\n")
	}
	for _, step := range plan.Steps {
		fmt.Fprintf(&b, "%d. %s", step.ID, step.Title)
		if len(step.Queries) > 0 {
			fmt.Fprintf(&b, " — %s", strings.Join(step.Queries, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(t.planOutro)
	return b.String()
}

// renderClarification turns a clarification payload into natural prose.
func renderClarification(clar *types.Clarification, hints []string) string {
	t := templatesFor(clar.Language)

	var body strings.Builder
	if clar.Understanding != "" {
		body.WriteString(clar.Understanding)
		body.WriteString(" ")
	}
	for i, q := range clar.Questions {
		if i > 0 {
			body.WriteString(" ")
		}
		body.WriteString(q)
	}

	msg := fmt.Sprintf(t.clarifyIntro, strings.TrimSpace(body.String()))
	for i, hint := range hints {
		if i >= 2 {
			break
		}
		msg += "\n" + fmt.Sprintf(t.historyHint, hint)
	}
	return msg
}
