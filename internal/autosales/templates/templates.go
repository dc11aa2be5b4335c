// Package templates renders the outreach messages sent by the automated
// sequence. Rendering is pure string assembly; delivery is someone else's
// job.
package templates

import (
	"fmt"
	"strings"

	"petshop_backend/internal/autosales/strategy"
	invrepo "petshop_backend/internal/inventory/repository"
	leadsrepo "petshop_backend/internal/leads/repository"
)

// Rendered is the full template output for one lead/puppy pair and tone.
type Rendered struct {
	Base         string
	Variants     []string
	CTALink      string
	StrategyName string
}

// Rebuttal sentences appended when the lead raised an objection. Keyed by
// the objection keys the strategy builder detects.
var rebuttals = map[string]string{
	strategy.ObjectionPrice:     "E sobre o valor: dá pra parcelar e o preço já inclui as primeiras vacinas e o kit filhote.",
	strategy.ObjectionTrust:     "Trabalhamos com contrato, nota fiscal e você pode visitar o canil antes de decidir, sem compromisso.",
	strategy.ObjectionTime:      "Leva menos de cinco minutos: me diga o melhor horário e eu cuido de todo o resto pra você.",
	strategy.ObjectionLogistics: "Fazemos entrega com transporte especializado para todo o Brasil, com acompanhamento em cada etapa.",
	strategy.ObjectionHealth:    "Todos os filhotes saem vacinados, vermifugados e com garantia de saúde assinada pelo nosso veterinário.",
}

// RebuttalFor returns the canned rebuttal for an objection key, empty when
// none is defined.
func RebuttalFor(objection string) string {
	return rebuttals[objection]
}

// stepVariantIndex fixes which variant each step type uses. The intro always
// uses the base message.
var stepVariantIndex = map[string]int{
	strategy.StepFollowupLight:  0,
	strategy.StepFollowupStrong: 1,
	strategy.StepFollowupFinal:  2,
}

// Render builds the base message, its follow-up variants and the CTA link
// for the lead. The puppy may be nil when inventory had no candidates.
func Render(lead leadsrepo.Lead, puppy *invrepo.Puppy, tone, storeBaseURL string) Rendered {
	firstName := firstName(lead.Name)

	var base string
	var variants []string
	var strategyName string

	if puppy != nil {
		base, variants, strategyName = puppyMessages(firstName, puppy, tone)
	} else {
		base, variants, strategyName = genericMessages(firstName, tone)
	}

	return Rendered{
		Base:         base,
		Variants:     variants,
		CTALink:      ctaLink(puppy, storeBaseURL),
		StrategyName: strategyName,
	}
}

// MessageForStep picks the message for a step: the base for the intro, a
// fixed variant for each follow-up, then appends the rebuttal for the first
// detected objection.
func MessageForStep(rendered Rendered, stepType string, objections []string) string {
	message := rendered.Base
	if idx, ok := stepVariantIndex[stepType]; ok && idx < len(rendered.Variants) {
		message = rendered.Variants[idx]
	}

	if len(objections) > 0 {
		if rebuttal := RebuttalFor(objections[0]); rebuttal != "" {
			message = message + " " + rebuttal
		}
	}

	return message
}

func puppyMessages(firstName string, puppy *invrepo.Puppy, tone string) (string, []string, string) {
	price := formatPrice(puppy.PriceCents)
	desc := fmt.Sprintf("%s, um %s %s %s", puppy.Name, puppy.Breed, puppy.Color, puppy.Sex)

	switch tone {
	case strategy.TonePremium:
		return fmt.Sprintf("Oi %s! Que alegria seu interesse! Separei o %s, ele é simplesmente perfeito pra você. Está por %s e pronto pra ir pra casa nova!", firstName, desc, price),
			[]string{
				fmt.Sprintf("Oi %s! O %s continua disponível e tem recebido muitas visitas. Quer que eu reserve pra você?", firstName, puppy.Name),
				fmt.Sprintf("%s, o %s está quase sendo reservado por outra família. Consigo segurar até hoje à noite se você confirmar.", firstName, puppy.Name),
				fmt.Sprintf("%s, última chamada: o %s sai por %s e posso garantir a reserva agora com um sinal simbólico.", firstName, puppy.Name, price),
			},
			"oferta_premium"

	case strategy.ToneConsultative:
		return fmt.Sprintf("Oi %s! Vi que você ainda está avaliando. O %s está disponível por %s e posso te contar tudo sobre temperamento e cuidados, sem pressa nenhuma.", firstName, desc, price),
			[]string{
				fmt.Sprintf("Oi %s, ficou alguma dúvida sobre o %s? Posso mandar um vídeo dele brincando pra te ajudar a decidir.", firstName, puppy.Name),
				fmt.Sprintf("%s, pra facilitar sua decisão: o %s sai por %s com tudo incluído. Quer que eu detalhe o que acompanha?", firstName, puppy.Name, price),
				fmt.Sprintf("%s, vou precisar liberar o %s para outras famílias em breve. Se quiser, garanto ele pra você ainda hoje.", firstName, puppy.Name),
			},
			"consultoria_gradual"

	case strategy.ToneObjective:
		return fmt.Sprintf("Oi %s. O %s está disponível por %s, com contrato, garantia de saúde e suporte pós-venda. Posso enviar os documentos e fotos atualizadas?", firstName, desc, price),
			[]string{
				fmt.Sprintf("%s, confirmando: o %s segue disponível por %s. Contrato e garantia enviados na hora da reserva.", firstName, puppy.Name, price),
				fmt.Sprintf("%s, o %s sai por %s. Reserva com sinal, restante na entrega. Fecho sua reserva?", firstName, puppy.Name, price),
				fmt.Sprintf("%s, este é meu último contato sobre o %s. Se ainda tiver interesse, responda e eu garanto as condições atuais.", firstName, puppy.Name),
			},
			"oferta_objetiva"

	default:
		return fmt.Sprintf("Oi %s, tudo bem? O %s está disponível por %s. Quer conhecer ele melhor? Posso mandar fotos e vídeos novinhos!", firstName, desc, price),
			[]string{
				fmt.Sprintf("Oi %s! Passando pra lembrar do %s, ele continua por aqui esperando uma família. Quer saber mais?", firstName, puppy.Name),
				fmt.Sprintf("%s, o %s está por %s e as condições estão ótimas essa semana. Posso te passar os detalhes?", firstName, puppy.Name, price),
				fmt.Sprintf("Oi %s, vou encerrar por aqui pra não incomodar. Se mudar de ideia sobre o %s, é só chamar!", firstName, puppy.Name),
			},
			"apresentacao_amigavel"
	}
}

func genericMessages(firstName, tone string) (string, []string, string) {
	base := fmt.Sprintf("Oi %s, tudo bem? Recebi seu interesse! No momento estou separando as melhores opções de filhotes pra te mostrar. Posso te enviar as novidades?", firstName)
	if tone == strategy.ToneObjective {
		base = fmt.Sprintf("Oi %s. Recebi seu contato e estou separando os filhotes que combinam com o que você procura. Envio as opções com preço e condições?", firstName)
	}

	return base,
		[]string{
			fmt.Sprintf("Oi %s! Chegaram filhotes novos que podem combinar com o que você procura. Quer dar uma olhada?", firstName),
			fmt.Sprintf("%s, ainda está procurando seu filhote? Tenho algumas opções com ótimas condições pra te mostrar.", firstName),
			fmt.Sprintf("Oi %s, este é meu último contato por enquanto. Quando quiser retomar a busca, estarei por aqui!", firstName),
		},
		"nutricao_generica"
}

func ctaLink(puppy *invrepo.Puppy, storeBaseURL string) string {
	base := strings.TrimRight(storeBaseURL, "/")
	if puppy == nil {
		return base + "/filhotes"
	}
	return fmt.Sprintf("%s/filhotes/%s", base, puppy.ID)
}

func formatPrice(cents int64) string {
	reais := cents / 100
	rest := cents % 100
	if rest == 0 {
		return fmt.Sprintf("R$ %d", reais)
	}
	return fmt.Sprintf("R$ %d,%02d", reais, rest)
}

func firstName(full string) string {
	fields := strings.Fields(strings.TrimSpace(full))
	if len(fields) == 0 {
		return "amigo(a)"
	}
	return fields[0]
}
