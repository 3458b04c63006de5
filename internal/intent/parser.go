package intent

import (
	"regexp"
	"strings"

	"github.com/ggonzalez94/lingo-wallet/internal/phone"
	"github.com/ggonzalez94/lingo-wallet/internal/registry"
)

const (
	confidenceExact   = 0.95
	confidenceHigh    = 0.8
	confidencePartial = 0.6
	confidenceLow     = 0.4
	confidenceDefault = 0.3

	defaultSendToken = "ETH"
	defaultSwapFrom  = "USDC"
	defaultBuyToken  = "ETH"
	defaultBuyAmount = "0.01"
)

const (
	amountExpr = `(\d+\.?\d*|\.\d+)`
	politeLead = `(?:(?:please|pls|can you|could you|i want to|i'd like to|i would like to)\s+)?`
)

var (
	swapLeadPattern     = regexp.MustCompile(`^` + politeLead + `(?:swap|exchange|convert|trade)\b`)
	swapFullPattern     = regexp.MustCompile(`\b(?:swap|exchange|convert|trade)\s+` + amountExpr + `\s*([a-z]+)?\s+(?:to|for|into)\s+([a-z]+)\b`)
	swapNoAmountPattern = regexp.MustCompile(`\b(?:swap|exchange|convert|trade)\s+([a-z]+)\s+(?:to|for|into)\s+([a-z]+)\b`)
	swapToOnlyPattern   = regexp.MustCompile(`\b(?:swap|exchange|convert|trade)\s+(?:to|for|into)\s+([a-z]+)\b`)

	bridgeLeadPattern = regexp.MustCompile(`^` + politeLead + `bridge\b`)
	bridgeFullPattern = regexp.MustCompile(`\bbridge\s+` + amountExpr + `\s*([a-z]+)?\s+(?:from\s+([a-z0-9]+)\s+)?to\s+([a-z0-9]+)\b`)
	bridgeNoAmount    = regexp.MustCompile(`\bbridge\s+([a-z]+)\s+(?:from\s+([a-z0-9]+)\s+)?to\s+([a-z0-9]+)\b`)

	sendVerbPattern   = regexp.MustCompile(`\b(send|transfer|pay)\b`)
	sendAmountPattern = regexp.MustCompile(`\b(?:send|transfer|pay)\s+` + amountExpr + `\s*([a-z]+)?`)
	sendDirectPattern = regexp.MustCompile(`\b(?:send|transfer|pay)\s+` + amountExpr + `\s*[a-z]*\s+to\s+(?:0x[a-f0-9]{40}|\+\d)`)

	addressAnyPattern  = regexp.MustCompile(`(?:^|[^a-zA-Z0-9])(0x[a-fA-F0-9]{40})(?:[^a-zA-Z0-9]|$)`)
	addressOnlyPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	phoneAnyPattern    = regexp.MustCompile(`\+\d[\d\-\s().]*\d`)

	buyAmountPattern = regexp.MustCompile(amountExpr + `\s*([a-z]+)?`)
)

// fillerWords can sit in the symbol slot without naming a token.
var fillerWords = map[string]struct{}{"to": {}, "for": {}, "into": {}, "of": {}, "worth": {}}

type input struct {
	raw   string
	lower string
	lang  string
}

type matcher struct {
	name  string
	match func(in input) (Intent, bool)
}

// matchers run in priority order; the first hit wins.
var matchers = []matcher{
	{name: "greeting", match: matchGreeting},
	{name: "swap", match: matchSwap},
	{name: "bridge", match: matchBridge},
	{name: "send", match: matchSend},
	{name: "address_echo", match: matchAddressEcho},
	{name: "balance", match: keywordMatcher(TriggerBalance, KindBalance, RespBalance)},
	{name: "buy", match: matchBuy},
	{name: "help", match: keywordMatcher(TriggerHelp, KindChat, RespHelp)},
	{name: "thanks", match: keywordMatcher(TriggerThanks, KindChat, RespThanks)},
	{name: "about", match: keywordMatcher(TriggerAbout, KindChat, RespAbout)},
}

// Parse interprets text, already translated to the working language, with
// languageHint selecting extra keyword synonyms and the reply language. It
// never fails: unmatched input yields a chat intent with a help prompt.
func Parse(text, languageHint string) Intent {
	in := newInput(text, languageHint)
	if in.lower == "" {
		return scripted(in, KindChat, RespEmpty, 0)
	}
	for _, m := range matchers {
		if out, ok := m.match(in); ok {
			return out
		}
	}
	return scripted(in, KindChat, RespDefault, confidenceDefault)
}

// MatcherNames lists matcher names in evaluation order.
func MatcherNames() []string {
	out := make([]string, 0, len(matchers))
	for _, m := range matchers {
		out = append(out, m.name)
	}
	return out
}

func newInput(text, lang string) input {
	raw := strings.Join(strings.Fields(text), " ")
	if _, ok := LookupLanguage(lang); !ok {
		lang = DefaultLanguage
	}
	return input{raw: raw, lower: strings.ToLower(raw), lang: lang}
}

func scripted(in input, kind Kind, key ResponseKey, confidence float64, args ...any) Intent {
	text, lang := Respond(in.lang, key, args...)
	return Intent{Kind: kind, Confidence: confidence, ResponseText: text, Language: lang}
}

func matchGreeting(in input) (Intent, bool) {
	for g := range greetingTokens {
		if strings.HasPrefix(in.lower, g) && boundaryAfter(in.lower, len(g)) {
			return scripted(in, KindChat, RespGreeting, 0.9), true
		}
	}
	return Intent{}, false
}

func matchSwap(in input) (Intent, bool) {
	if m := swapFullPattern.FindStringSubmatch(in.lower); m != nil {
		from := m[2]
		if _, filler := fillerWords[from]; from == "" || filler {
			from = defaultSwapFrom
		}
		return swapIntent(in, strPtr(m[1]), from, m[3], confidenceExact)
	}
	if m := swapNoAmountPattern.FindStringSubmatch(in.lower); m != nil {
		return swapIntent(in, nil, m[1], m[2], confidencePartial)
	}
	if m := swapToOnlyPattern.FindStringSubmatch(in.lower); m != nil {
		return swapIntent(in, nil, defaultSwapFrom, m[1], confidencePartial)
	}
	if swapLeadPattern.MatchString(in.lower) {
		return scripted(in, KindSwap, RespSwapHelp, confidenceLow), true
	}
	return Intent{}, false
}

func swapIntent(in input, amount *string, from, to string, confidence float64) (Intent, bool) {
	from = strings.ToUpper(from)
	to = strings.ToUpper(to)
	for _, sym := range []string{from, to} {
		if !registry.IsSupportedSymbol(sym) {
			return scripted(in, KindChat, RespUnsupportedToken, confidenceLow, sym), true
		}
	}
	if from == to {
		return scripted(in, KindChat, RespSwapSameToken, confidenceLow), true
	}
	var out Intent
	if amount == nil {
		out = scripted(in, KindSwap, RespSwapNeedAmount, confidence, from, to)
	} else {
		out = scripted(in, KindSwap, RespSwapReady, confidence, *amount, from, to)
	}
	out.Amount = amount
	out.FromToken = from
	out.ToToken = to
	out.Token = from
	return out, true
}

func matchBridge(in input) (Intent, bool) {
	var (
		amount           *string
		symbol, from, to string
		confidence       = confidenceExact
	)
	if m := bridgeFullPattern.FindStringSubmatch(in.lower); m != nil {
		amount = strPtr(m[1])
		symbol, from, to = m[2], m[3], m[4]
	} else if m := bridgeNoAmount.FindStringSubmatch(in.lower); m != nil {
		symbol, from, to = m[1], m[2], m[3]
		confidence = confidencePartial
	} else if bridgeLeadPattern.MatchString(in.lower) {
		return scripted(in, KindBridge, RespBridgeHelp, confidenceLow), true
	} else {
		return Intent{}, false
	}
	if _, filler := fillerWords[symbol]; symbol == "" || filler {
		symbol = defaultSendToken
	}
	symbol = strings.ToUpper(symbol)
	if !registry.IsSupportedSymbol(symbol) {
		return scripted(in, KindChat, RespUnsupportedToken, confidenceLow, symbol), true
	}
	if from == "" {
		from = registry.DefaultChainSlug
	}
	fromChain, ok := registry.ChainBySlug(from)
	if !ok {
		return scripted(in, KindChat, RespUnsupportedChain, confidenceLow, from), true
	}
	toChain, ok := registry.ChainBySlug(to)
	if !ok {
		return scripted(in, KindChat, RespUnsupportedChain, confidenceLow, to), true
	}
	if fromChain.ChainID == toChain.ChainID {
		return scripted(in, KindChat, RespBridgeSameChain, confidenceLow), true
	}
	var out Intent
	if amount == nil {
		out = scripted(in, KindBridge, RespBridgeHelp, confidence)
	} else {
		out = scripted(in, KindBridge, RespBridgeReady, confidence, *amount, symbol, fromChain.Name, toChain.Name)
	}
	out.Amount = amount
	out.Token = symbol
	out.FromToken = symbol
	out.ToToken = symbol
	out.FromChain = fromChain.Slug
	out.ToChain = toChain.Slug
	return out, true
}

func matchSend(in input) (Intent, bool) {
	if !sendVerbPattern.MatchString(in.lower) {
		return Intent{}, false
	}
	out := Intent{Kind: KindSend, Confidence: confidencePartial}
	token := defaultSendToken
	explicitUnknown := ""
	if m := sendAmountPattern.FindStringSubmatch(in.lower); m != nil {
		out.Amount = strPtr(m[1])
		if sym := m[2]; sym != "" {
			if _, filler := fillerWords[sym]; !filler {
				if registry.IsSupportedSymbol(sym) {
					token = strings.ToUpper(sym)
				} else {
					explicitUnknown = strings.ToUpper(sym)
				}
			}
		}
	}
	if explicitUnknown == "" {
		out.Token = token
	}

	recipient, kind := extractRecipient(in.raw)
	if kind != RecipientNone {
		out.RecipientRaw = strPtr(recipient)
		out.RecipientKind = kind
	}

	switch {
	case explicitUnknown != "":
		out.ResponseText, out.Language = Respond(in.lang, RespSendNeedToken)
		out.Confidence = confidenceLow
	case out.RecipientRaw == nil:
		out.ResponseText, out.Language = Respond(in.lang, RespSendNeedRecipient)
	case out.Amount == nil:
		out.ResponseText, out.Language = Respond(in.lang, RespSendNeedAmount, out.Token)
	default:
		out.ResponseText, out.Language = Respond(in.lang, RespSendReady, *out.Amount, out.Token, recipient)
		out.Confidence = confidenceHigh
		if sendDirectPattern.MatchString(in.lower) {
			out.Confidence = confidenceExact
		}
	}
	return out, true
}

// extractRecipient prefers an address literal anywhere in the text over a
// phone literal.
func extractRecipient(raw string) (string, RecipientKind) {
	if m := addressAnyPattern.FindStringSubmatch(raw); m != nil {
		return m[1], RecipientAddress
	}
	for _, candidate := range phoneAnyPattern.FindAllString(raw, -1) {
		if phone.IsLiteral(candidate) {
			return phone.Compact(candidate), RecipientPhone
		}
	}
	return "", RecipientNone
}

func matchAddressEcho(in input) (Intent, bool) {
	if !addressOnlyPattern.MatchString(in.raw) {
		return Intent{}, false
	}
	out := scripted(in, KindSend, RespAddressEcho, confidencePartial, in.raw)
	out.Token = defaultSendToken
	out.RecipientRaw = strPtr(in.raw)
	out.RecipientKind = RecipientAddress
	return out, true
}

func matchBuy(in input) (Intent, bool) {
	if !hasTrigger(in, TriggerBuy) {
		return Intent{}, false
	}
	amount := defaultBuyAmount
	token := defaultBuyToken
	if m := buyAmountPattern.FindStringSubmatch(in.lower); m != nil {
		amount = m[1]
		if registry.IsSupportedSymbol(m[2]) {
			token = strings.ToUpper(m[2])
		}
	} else {
		for _, word := range strings.Fields(in.lower) {
			if registry.IsSupportedSymbol(word) {
				token = strings.ToUpper(word)
				break
			}
		}
	}
	source := defaultSwapFrom
	if token == defaultSwapFrom {
		source = defaultSendToken
	}
	out := scripted(in, KindBuy, RespBuy, confidenceHigh, token, source)
	out.Amount = strPtr(amount)
	out.Token = token
	return out, true
}

func keywordMatcher(trigger Trigger, kind Kind, key ResponseKey) func(in input) (Intent, bool) {
	return func(in input) (Intent, bool) {
		if !hasTrigger(in, trigger) {
			return Intent{}, false
		}
		return scripted(in, kind, key, confidenceHigh), true
	}
}

func hasTrigger(in input, trigger Trigger) bool {
	for _, kw := range keywordsFor(in.lang, trigger) {
		if containsKeyword(in.lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
