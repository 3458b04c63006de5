package pipeline

import (
	"context"
	"strings"

	"github.com/ggonzalez94/lingo-wallet/internal/execution"
	"github.com/ggonzalez94/lingo-wallet/internal/intent"
	"github.com/ggonzalez94/lingo-wallet/internal/metrics"
	"github.com/ggonzalez94/lingo-wallet/internal/translate"
)

type ParseResult struct {
	Intent intent.Intent `json:"intent"`
	Text   string        `json:"text"`
	// English is the text the parser matched against.
	English     string            `json:"english"`
	Translation *translate.Result `json:"translation,omitempty"`
	Response    string            `json:"response"`
}

// Parse matches text in its own language first. When only the fallback reply
// matches and the language is not English, the text is translated and parsed
// again.
func (p *Pipeline) Parse(ctx context.Context, text, lang string) (ParseResult, error) {
	lang = normalizeLanguage(lang)
	out := ParseResult{Text: text, English: text}

	in := intent.Parse(text, lang)
	if in.Fallback() && lang != intent.DefaultLanguage && strings.TrimSpace(text) != "" {
		tr, err := p.translator.Translate(ctx, text, intent.DefaultLanguage)
		if err != nil {
			return ParseResult{}, err
		}
		out.Translation = &tr
		if tr.Translated {
			out.English = tr.TranslatedText
			in = intent.Parse(tr.TranslatedText, lang)
		}
	}
	metrics.IntentsParsed.WithLabelValues(string(in.Kind)).Inc()

	out.Intent = in
	out.Response = p.localize(ctx, in.ResponseText, in.Language, lang)
	return out, nil
}

// localize translates a reply the keyword tables could not render in lang.
func (p *Pipeline) localize(ctx context.Context, text, have, want string) string {
	if text == "" || have == want {
		return text
	}
	tr, err := p.translator.Translate(ctx, text, want)
	if err != nil || !tr.Translated {
		return text
	}
	return tr.TranslatedText
}

func normalizeLanguage(lang string) string {
	if l, ok := intent.LookupLanguage(lang); ok {
		return l.Code
	}
	if v := strings.ToLower(strings.TrimSpace(lang)); v != "" {
		return v
	}
	return intent.DefaultLanguage
}

type MessageRequest struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	Wallet   string `json:"wallet,omitempty"`
}

// MessageResult is the reply to a chat message. Actionable commands carry a
// staged plan or a claim; everything else is a reply only.
type MessageResult struct {
	Parse   ParseResult     `json:"parse"`
	Reply   string          `json:"reply"`
	Plan    *execution.Plan `json:"plan,omitempty"`
	Claim   *ClaimNotice    `json:"claim,omitempty"`
	Balance *BalanceResult  `json:"balance,omitempty"`
	Missing []string        `json:"missing,omitempty"`
}

func (p *Pipeline) HandleMessage(ctx context.Context, req MessageRequest) (MessageResult, error) {
	parsed, err := p.Parse(ctx, req.Text, req.Language)
	if err != nil {
		return MessageResult{}, err
	}
	in := parsed.Intent
	out := MessageResult{Parse: parsed, Reply: parsed.Response, Missing: in.Missing()}

	switch in.Kind {
	case intent.KindSend:
		if !in.Actionable() || req.Wallet == "" {
			return out, nil
		}
		sent, err := p.PlanSend(ctx, SendCommand{
			From:            req.Wallet,
			Recipient:       in.Recipient(),
			Amount:          in.AmountValue(),
			Token:           in.Token,
			OriginalCommand: req.Text,
			Language:        parsed.Intent.Language,
		})
		if err != nil {
			return MessageResult{}, err
		}
		out.Plan, out.Claim = sent.Plan, sent.Claim
		if sent.Message != "" && sent.Claim != nil {
			out.Reply = p.localize(ctx, sent.Message, intent.DefaultLanguage, parsed.Intent.Language)
		}
	case intent.KindSwap, intent.KindBridge:
		if !in.Actionable() || req.Wallet == "" {
			return out, nil
		}
		cmd := SwapCommand{
			From:            req.Wallet,
			Amount:          in.AmountValue(),
			FromToken:       in.FromToken,
			ToToken:         in.ToToken,
			FromChain:       in.FromChain,
			ToChain:         in.ToChain,
			OriginalCommand: req.Text,
			Language:        parsed.Intent.Language,
		}
		var plan *execution.Plan
		if in.Kind == intent.KindSwap {
			plan, err = p.PlanSwap(ctx, cmd)
		} else {
			cmd.FromToken = in.Token
			plan, err = p.PlanBridge(ctx, cmd)
		}
		if err != nil {
			return MessageResult{}, err
		}
		out.Plan = plan
	case intent.KindBalance:
		if req.Wallet == "" {
			return out, nil
		}
		bal, err := p.Balance(ctx, req.Wallet)
		if err != nil {
			return MessageResult{}, err
		}
		out.Balance = &bal
	case intent.KindBuy, intent.KindChat, intent.KindUnknown:
	}
	return out, nil
}
