package intent

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Trigger names a keyword-driven intent.
type Trigger string

const (
	TriggerGreeting Trigger = "greeting"
	TriggerBalance  Trigger = "balance"
	TriggerBuy      Trigger = "buy"
	TriggerHelp     Trigger = "help"
	TriggerThanks   Trigger = "thanks"
	TriggerAbout    Trigger = "about"
)

// ResponseKey names a scripted reply.
type ResponseKey string

const (
	RespEmpty             ResponseKey = "empty"
	RespGreeting          ResponseKey = "greeting"
	RespHelp              ResponseKey = "help"
	RespDefault           ResponseKey = "default"
	RespBalance           ResponseKey = "balance"
	RespThanks            ResponseKey = "thanks"
	RespAbout             ResponseKey = "about"
	RespBuy               ResponseKey = "buy"
	RespSendReady         ResponseKey = "send_ready"
	RespSendNeedRecipient ResponseKey = "send_need_recipient"
	RespSendNeedAmount    ResponseKey = "send_need_amount"
	RespSendNeedToken     ResponseKey = "send_need_token"
	RespAddressEcho       ResponseKey = "address_echo"
	RespSwapReady         ResponseKey = "swap_ready"
	RespSwapNeedAmount    ResponseKey = "swap_need_amount"
	RespSwapHelp          ResponseKey = "swap_help"
	RespSwapSameToken     ResponseKey = "swap_same_token"
	RespUnsupportedToken  ResponseKey = "unsupported_token"
	RespBridgeReady       ResponseKey = "bridge_ready"
	RespBridgeHelp        ResponseKey = "bridge_help"
	RespBridgeSameChain   ResponseKey = "bridge_same_chain"
	RespUnsupportedChain  ResponseKey = "unsupported_chain"
)

// Language holds the keyword synonyms and scripted replies of one display
// language. Synonym lists are maintained per language, not translated from
// English.
type Language struct {
	Code      string
	Name      string
	Keywords  map[Trigger][]string
	Responses map[ResponseKey]string
}

const DefaultLanguage = "en"

const supportedTokensHint = "ETH, USDC, USDT, DAI, WETH"

var languages = map[string]Language{
	"en": {
		Code: "en",
		Name: "English",
		Keywords: map[Trigger][]string{
			TriggerGreeting: {"hi", "hello", "hey", "gm"},
			TriggerBalance:  {"balance", "how much", "what do i have", "my funds"},
			TriggerBuy:      {"buy", "purchase"},
			TriggerHelp:     {"help", "what can you do", "commands"},
			TriggerThanks:   {"thanks", "thank you", "thx", "cheers"},
			TriggerAbout:    {"who are you", "what are you", "about lingo", "what is lingo"},
		},
		Responses: map[ResponseKey]string{
			RespEmpty:             "Please type a command or question!",
			RespGreeting:          "Hey there! 👋 I'm Lingo, your crypto assistant.\n\nTry:\n• \"Swap 0.01 ETH to USDC\"\n• \"Send 10 USDC to +1234567890\"\n• \"What's my balance?\"",
			RespHelp:              "🤖 I'm Lingo! Here's what I can do:\n\n📤 Send crypto:\n\"Send 10 USDC to +1234567890\"\n\"Send 0.01 ETH to 0x...\"\n\n🔄 Swap tokens:\n\"Swap 0.1 ETH to USDC\"\n\"Exchange 50 USDC for ETH\"\n\n🌉 Bridge:\n\"Bridge 10 USDC to arbitrum\"\n\n💰 Check balance:\n\"What's my balance?\"\n\nSupported tokens: " + supportedTokensHint,
			RespDefault:           "I'm not sure what you mean. Try:\n\n🔄 \"Swap 0.1 ETH to USDC\"\n📤 \"Send 10 USDC to +1234567890\"\n💰 \"What's my balance?\"\n\nOr type \"help\" for more options!",
			RespBalance:           "💰 Here are your ETH and USDC balances on Base.",
			RespThanks:            "You're welcome! 🙌 Anything else I can do?",
			RespAbout:             "I'm Lingo, a multilingual crypto wallet assistant. I can send, swap and bridge tokens from plain-language commands.",
			RespBuy:               "💡 To buy %[1]s, use the swap feature!\n\nTry: \"Swap %[2]s to %[1]s\"",
			RespSendReady:         "📤 Sending %s %s to %s",
			RespSendNeedRecipient: "📤 To send crypto, include a wallet address (0x...) or phone number (+1...).\n\nExample: \"Send 10 USDC to +15551234567\"",
			RespSendNeedAmount:    "How much %s would you like to send?",
			RespSendNeedToken:     "Which token would you like to send? Supported tokens: " + supportedTokensHint,
			RespAddressEcho:       "Got it. How much ETH would you like to send to %s?",
			RespSwapReady:         "🔄 Swapping %s %s to %s",
			RespSwapNeedAmount:    "How much %s would you like to swap to %s?",
			RespSwapHelp:          "🔄 To swap tokens, tell me the amount and both tokens.\n\nExample: \"Swap 0.1 ETH to USDC\"",
			RespSwapSameToken:     "Please pick two different tokens to swap.",
			RespUnsupportedToken:  "I can't trade %s yet. Supported tokens: " + supportedTokensHint,
			RespBridgeReady:       "🌉 Bridging %s %s from %s to %s",
			RespBridgeHelp:        "🌉 To bridge, tell me the amount, token and destination chain.\n\nExample: \"Bridge 10 USDC to arbitrum\"",
			RespBridgeSameChain:   "The source and destination chains are the same. Pick a different destination.",
			RespUnsupportedChain:  "I don't support the %s chain. Supported chains: base, ethereum, arbitrum, optimism, polygon",
		},
	},
	"hi": {
		Code: "hi",
		Name: "हिन्दी",
		Keywords: map[Trigger][]string{
			TriggerGreeting: {"namaste", "नमस्ते", "नमस्कार"},
			TriggerBalance:  {"बैलेंस", "शेष राशि", "कितना है", "mera balance"},
			TriggerBuy:      {"खरीद", "खरीदना", "kharidna"},
			TriggerHelp:     {"मदद", "सहायता", "madad"},
			TriggerThanks:   {"धन्यवाद", "शुक्रिया", "dhanyavaad", "shukriya"},
			TriggerAbout:    {"तुम कौन हो", "आप कौन हैं"},
		},
		Responses: map[ResponseKey]string{
			RespGreeting: "नमस्ते! 👋 मैं Lingo हूँ, आपका क्रिप्टो सहायक।\n\nआज़माएँ:\n• \"Swap 0.01 ETH to USDC\"\n• \"Send 10 USDC to +1234567890\"",
			RespHelp:     "🤖 मैं भेज सकता हूँ, स्वैप कर सकता हूँ और ब्रिज कर सकता हूँ।\n\n\"Send 10 USDC to +1234567890\"\n\"Swap 0.1 ETH to USDC\"\n\nसमर्थित टोकन: " + supportedTokensHint,
			RespDefault:  "मैं समझ नहीं पाया। \"help\" लिखकर विकल्प देखें!",
			RespBalance:  "💰 यह रहा Base पर आपका ETH और USDC बैलेंस।",
			RespThanks:   "आपका स्वागत है! 🙌",
			RespAbout:    "मैं Lingo हूँ, एक बहुभाषी क्रिप्टो वॉलेट सहायक।",
		},
	},
	"es": {
		Code: "es",
		Name: "Español",
		Keywords: map[Trigger][]string{
			TriggerGreeting: {"hola", "buenas", "buenos días"},
			TriggerBalance:  {"saldo", "cuánto tengo", "cuanto tengo", "mi balance"},
			TriggerBuy:      {"comprar", "compra"},
			TriggerHelp:     {"ayuda", "qué puedes hacer", "que puedes hacer"},
			TriggerThanks:   {"gracias", "muchas gracias"},
			TriggerAbout:    {"quién eres", "quien eres", "qué eres"},
		},
		Responses: map[ResponseKey]string{
			RespGreeting: "¡Hola! 👋 Soy Lingo, tu asistente cripto.\n\nPrueba:\n• \"Swap 0.01 ETH to USDC\"\n• \"Send 10 USDC to +1234567890\"",
			RespHelp:     "🤖 Puedo enviar, intercambiar y puentear tokens.\n\n\"Send 10 USDC to +1234567890\"\n\"Swap 0.1 ETH to USDC\"\n\nTokens compatibles: " + supportedTokensHint,
			RespDefault:  "No estoy seguro de lo que quieres decir. ¡Escribe \"ayuda\" para ver opciones!",
			RespBalance:  "💰 Aquí están tus saldos de ETH y USDC en Base.",
			RespThanks:   "¡De nada! 🙌",
			RespAbout:    "Soy Lingo, un asistente de billetera cripto multilingüe.",
		},
	},
	"fr": {
		Code: "fr",
		Name: "Français",
		Keywords: map[Trigger][]string{
			TriggerGreeting: {"bonjour", "salut", "coucou"},
			TriggerBalance:  {"solde", "combien j'ai", "combien ai-je"},
			TriggerBuy:      {"acheter", "achat"},
			TriggerHelp:     {"aide", "que peux-tu faire", "aidez-moi"},
			TriggerThanks:   {"merci", "merci beaucoup"},
			TriggerAbout:    {"qui es-tu", "qui êtes-vous"},
		},
		Responses: map[ResponseKey]string{
			RespGreeting: "Bonjour ! 👋 Je suis Lingo, votre assistant crypto.\n\nEssayez :\n• \"Swap 0.01 ETH to USDC\"\n• \"Send 10 USDC to +1234567890\"",
			RespHelp:     "🤖 Je peux envoyer, échanger et transférer des tokens entre chaînes.\n\n\"Send 10 USDC to +1234567890\"\n\"Swap 0.1 ETH to USDC\"\n\nTokens pris en charge : " + supportedTokensHint,
			RespDefault:  "Je ne suis pas sûr de comprendre. Tapez \"aide\" pour voir les options !",
			RespBalance:  "💰 Voici vos soldes ETH et USDC sur Base.",
			RespThanks:   "Avec plaisir ! 🙌",
			RespAbout:    "Je suis Lingo, un assistant de portefeuille crypto multilingue.",
		},
	},
}

// Languages returns the supported display languages ordered by code.
func Languages() []Language {
	out := make([]Language, 0, len(languages))
	for _, l := range languages {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// LookupLanguage normalizes codes like "es-MX" to "es".
func LookupLanguage(code string) (Language, bool) {
	c := strings.ToLower(strings.TrimSpace(code))
	if base, _, ok := strings.Cut(c, "-"); ok {
		c = base
	}
	l, ok := languages[c]
	return l, ok
}

// Respond renders a scripted reply in lang, falling back to English. The
// returned language is the one the text is written in.
func Respond(lang string, key ResponseKey, args ...any) (string, string) {
	if l, ok := LookupLanguage(lang); ok {
		if tmpl, ok := l.Responses[key]; ok {
			return render(tmpl, args), l.Code
		}
	}
	return render(languages[DefaultLanguage].Responses[key], args), DefaultLanguage
}

func render(tmpl string, args []any) string {
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}

// keywordsFor returns the trigger synonyms of lang followed by English ones.
func keywordsFor(lang string, trigger Trigger) []string {
	english := languages[DefaultLanguage].Keywords[trigger]
	l, ok := LookupLanguage(lang)
	if !ok || l.Code == DefaultLanguage {
		return english
	}
	out := make([]string, 0, len(l.Keywords[trigger])+len(english))
	out = append(out, l.Keywords[trigger]...)
	return append(out, english...)
}

// greetingTokens is the union of greeting words across languages.
var greetingTokens = func() map[string]struct{} {
	out := map[string]struct{}{}
	for _, l := range languages {
		for _, g := range l.Keywords[TriggerGreeting] {
			out[g] = struct{}{}
		}
	}
	return out
}()

// containsKeyword matches kw in text on word boundaries.
func containsKeyword(text, kw string) bool {
	if kw == "" {
		return false
	}
	for start := 0; start < len(text); {
		idx := strings.Index(text[start:], kw)
		if idx < 0 {
			return false
		}
		i := start + idx
		j := i + len(kw)
		if boundaryBefore(text, i) && boundaryAfter(text, j) {
			return true
		}
		start = i + 1
	}
	return false
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r := lastRune(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, j int) bool {
	if j >= len(text) {
		return true
	}
	for _, r := range text[j:] {
		return !isWordRune(r)
	}
	return true
}

func lastRune(s string) rune {
	var last rune
	for _, r := range s {
		last = r
	}
	return last
}

// Devanagari combining marks count as word runes so matras never split a word.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r)
}
