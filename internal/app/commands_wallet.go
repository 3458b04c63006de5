package app

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
	"github.com/ggonzalez94/lingo-wallet/internal/execution/signer"
	"github.com/ggonzalez94/lingo-wallet/internal/pipeline"
)

func (s *runtimeState) newParseCommand() *cobra.Command {
	var language string
	cmd := &cobra.Command{
		Use:   "parse <text>",
		Short: "Parse a natural-language wallet command into an intent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := s.services()
			if err != nil {
				return err
			}
			started := s.runner.now()
			res, err := d.pipeline.Parse(cmd.Context(), strings.Join(args, " "), language)
			if err != nil {
				return err
			}
			if res.Translation == nil {
				return s.emit(res)
			}
			return s.emitSuccess(res, nil, s.trackProvider("google-translate", started, nil))
		},
	}
	cmd.Flags().StringVar(&language, "language", "en", "Language of the text (ISO 639-1)")
	return cmd
}

func (s *runtimeState) newResolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <recipient>",
		Short: "Resolve an address or phone number to a wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := s.services()
			if err != nil {
				return err
			}
			res, err := d.pipeline.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return s.emit(res)
		},
	}
}

func (s *runtimeState) newLinkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "link <phone> <address>",
		Short: "Link a phone number to a wallet address",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := s.services()
			if err != nil {
				return err
			}
			res, err := d.pipeline.LinkPhone(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return s.emit(res)
		},
	}
}

func (s *runtimeState) newClaimsCommand() *cobra.Command {
	root := &cobra.Command{Use: "claims", Short: "Claim links for recipients without a wallet"}

	var phone, amount, token, sender string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a claim link and notify the recipient by SMS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := s.services()
			if err != nil {
				return err
			}
			from, err := s.walletOrDefault(sender)
			if err != nil {
				return err
			}
			notice, err := d.pipeline.CreateClaim(cmd.Context(), phone, amount, token, from)
			if err != nil {
				return err
			}
			var warnings []string
			if !notice.SMS.Sent {
				warnings = append(warnings, "sms not sent: "+notice.SMS.Error)
			}
			return s.emitSuccess(notice, warnings, nil)
		},
	}
	create.Flags().StringVar(&phone, "phone", "", "Recipient phone number")
	create.Flags().StringVar(&amount, "amount", "", "Amount in decimal units")
	create.Flags().StringVar(&token, "token", "USDC", "Token symbol")
	create.Flags().StringVar(&sender, "sender", "", "Sender wallet (defaults to the user signing key)")
	_ = create.MarkFlagRequired("phone")
	_ = create.MarkFlagRequired("amount")

	get := &cobra.Command{
		Use:   "get <token>",
		Short: "Show an active claim",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := s.services()
			if err != nil {
				return err
			}
			c, err := d.pipeline.GetClaim(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return s.emit(c)
		},
	}

	var wallet string
	redeem := &cobra.Command{
		Use:   "redeem <token>",
		Short: "Redeem a claim to a wallet and release the payout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := s.services()
			if err != nil {
				return err
			}
			res, err := d.pipeline.RedeemClaim(cmd.Context(), args[0], wallet)
			if err != nil {
				return err
			}
			var warnings []string
			if res.PayoutError != "" {
				warnings = append(warnings, "payout pending: "+res.PayoutError)
			}
			return s.emitSuccess(res, warnings, nil)
		},
	}
	redeem.Flags().StringVar(&wallet, "wallet", "", "Recipient wallet address")
	_ = redeem.MarkFlagRequired("wallet")

	var olderThan time.Duration
	unsettled := &cobra.Command{
		Use:   "unsettled",
		Short: "List redeemed claims with no recorded payout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := s.services()
			if err != nil {
				return err
			}
			items, err := d.pipeline.UnsettledClaims(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			return s.emit(items)
		},
	}
	unsettled.Flags().DurationVar(&olderThan, "older-than", 10*time.Minute, "Only claims redeemed at least this long ago")

	var txHash string
	settle := &cobra.Command{
		Use:   "settle <token>",
		Short: "Record a payout made outside lingo for a redeemed claim",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := s.services()
			if err != nil {
				return err
			}
			if err := d.pipeline.SettleClaim(cmd.Context(), args[0], txHash); err != nil {
				return err
			}
			return s.emit(map[string]any{"claim_token": args[0], "payout_tx_hash": txHash, "settled": true})
		},
	}
	settle.Flags().StringVar(&txHash, "tx-hash", "", "Payout transaction hash")
	_ = settle.MarkFlagRequired("tx-hash")

	root.AddCommand(create, get, redeem, unsettled, settle)
	return root
}

func (s *runtimeState) newPlanCommand() *cobra.Command {
	root := &cobra.Command{Use: "plan", Short: "Quote and stage a transaction for confirmation"}

	var send pipeline.SendCommand
	sendCmd := &cobra.Command{
		Use:   "send",
		Short: "Plan a transfer to an address or phone number",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := s.services()
			if err != nil {
				return err
			}
			if send.From, err = s.walletOrDefault(send.From); err != nil {
				return err
			}
			outcome, err := d.pipeline.PlanSend(cmd.Context(), send)
			if err != nil {
				return err
			}
			var warnings []string
			if outcome.Claim != nil && outcome.Plan == nil {
				warnings = append(warnings, "no payout wallet configured, the claim must be settled manually")
			}
			return s.emitSuccess(outcome, warnings, nil)
		},
	}
	sendCmd.Flags().StringVar(&send.From, "from", "", "Sender wallet (defaults to the user signing key)")
	sendCmd.Flags().StringVar(&send.Recipient, "to", "", "Recipient address or phone number")
	sendCmd.Flags().StringVar(&send.Amount, "amount", "", "Amount in decimal units")
	sendCmd.Flags().StringVar(&send.Token, "token", "USDC", "Token symbol")
	sendCmd.Flags().StringVar(&send.Chain, "chain", "", "Chain slug (default base)")
	sendCmd.Flags().StringVar(&send.Language, "language", "en", "Language the command was given in")
	_ = sendCmd.MarkFlagRequired("to")
	_ = sendCmd.MarkFlagRequired("amount")

	var swap pipeline.SwapCommand
	swapCmd := &cobra.Command{
		Use:   "swap",
		Short: "Quote and plan a same-chain swap",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runSwapPlan(cmd, swap, false)
		},
	}
	swapCmd.Flags().StringVar(&swap.From, "from", "", "Wallet (defaults to the user signing key)")
	swapCmd.Flags().StringVar(&swap.Amount, "amount", "", "Amount of the input token")
	swapCmd.Flags().StringVar(&swap.FromToken, "from-token", "", "Token to sell")
	swapCmd.Flags().StringVar(&swap.ToToken, "to-token", "", "Token to buy")
	swapCmd.Flags().StringVar(&swap.FromChain, "chain", "", "Chain slug (default base)")
	_ = swapCmd.MarkFlagRequired("amount")
	_ = swapCmd.MarkFlagRequired("from-token")
	_ = swapCmd.MarkFlagRequired("to-token")

	var bridge pipeline.SwapCommand
	bridgeCmd := &cobra.Command{
		Use:   "bridge",
		Short: "Quote and plan a cross-chain transfer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runSwapPlan(cmd, bridge, true)
		},
	}
	bridgeCmd.Flags().StringVar(&bridge.From, "from", "", "Wallet (defaults to the user signing key)")
	bridgeCmd.Flags().StringVar(&bridge.Amount, "amount", "", "Amount of the token")
	bridgeCmd.Flags().StringVar(&bridge.FromToken, "token", "", "Token to move")
	bridgeCmd.Flags().StringVar(&bridge.ToToken, "to-token", "", "Token to receive (defaults to --token)")
	bridgeCmd.Flags().StringVar(&bridge.FromChain, "from-chain", "", "Source chain slug (default base)")
	bridgeCmd.Flags().StringVar(&bridge.ToChain, "to-chain", "", "Destination chain slug")
	_ = bridgeCmd.MarkFlagRequired("amount")
	_ = bridgeCmd.MarkFlagRequired("token")
	_ = bridgeCmd.MarkFlagRequired("to-chain")

	show := &cobra.Command{
		Use:   "show <plan-id>",
		Short: "Show a staged plan without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := s.services()
			if err != nil {
				return err
			}
			plan, err := d.pipeline.Plan(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return s.emit(plan)
		},
	}

	root.AddCommand(sendCmd, swapCmd, bridgeCmd, show)
	return root
}

func (s *runtimeState) runSwapPlan(cmd *cobra.Command, req pipeline.SwapCommand, crossChain bool) error {
	d, err := s.services()
	if err != nil {
		return err
	}
	if req.From, err = s.walletOrDefault(req.From); err != nil {
		return err
	}
	if crossChain && req.ToToken == "" {
		req.ToToken = req.FromToken
	}
	started := s.runner.now()
	planFn := d.pipeline.PlanSwap
	if crossChain {
		planFn = d.pipeline.PlanBridge
	}
	plan, err := planFn(cmd.Context(), req)
	providers := s.trackProvider("lifi", started, err)
	if err != nil {
		return err
	}
	return s.emitSuccess(map[string]any{
		"plan":       plan,
		"expires_in": int(d.pipeline.PlanTTL().Seconds()),
	}, nil, providers)
}

func (s *runtimeState) newExecuteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "execute <plan-id>",
		Short: "Sign and broadcast a staged plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := s.services()
			if err != nil {
				return err
			}
			res, err := d.pipeline.Execute(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return s.emit(res)
		},
	}
}

func (s *runtimeState) newCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <plan-id>",
		Short: "Discard a staged plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := s.services()
			if err != nil {
				return err
			}
			if err := d.pipeline.Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			return s.emit(map[string]any{"plan_id": args[0], "cancelled": true})
		},
	}
}

func (s *runtimeState) newMessageCommand() *cobra.Command {
	var req pipeline.MessageRequest
	cmd := &cobra.Command{
		Use:   "message <text>",
		Short: "Handle a chat message end to end, staging a plan when it is an action",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := s.services()
			if err != nil {
				return err
			}
			req.Text = strings.Join(args, " ")
			if req.Wallet == "" {
				// Chat works without a key; actions report the missing wallet.
				req.Wallet, _ = s.walletOrDefault("")
			}
			res, err := d.pipeline.HandleMessage(cmd.Context(), req)
			if err != nil {
				return err
			}
			return s.emit(res)
		},
	}
	cmd.Flags().StringVar(&req.Language, "language", "en", "Language of the message (ISO 639-1)")
	cmd.Flags().StringVar(&req.Wallet, "wallet", "", "Acting wallet (defaults to the user signing key)")
	return cmd
}

func (s *runtimeState) newBalanceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "balance [address]",
		Short: "Show ETH and USDC balances on the default chain",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := s.services()
			if err != nil {
				return err
			}
			raw := ""
			if len(args) == 1 {
				raw = args[0]
			}
			addr, err := s.walletOrDefault(raw)
			if err != nil {
				return err
			}
			started := s.runner.now()
			res, err := d.pipeline.Balance(cmd.Context(), addr)
			providers := s.trackProvider("rpc", started, err)
			if err != nil {
				return err
			}
			return s.emitSuccess(res, nil, providers)
		},
	}
}

func (s *runtimeState) newTranslateCommand() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "translate <text>",
		Short: "Translate text with the configured provider",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := s.services()
			if err != nil {
				return err
			}
			started := s.runner.now()
			res, err := d.translator.Translate(cmd.Context(), strings.Join(args, " "), target)
			providers := s.trackProvider("google-translate", started, err)
			if err != nil {
				return err
			}
			var warnings []string
			if res.Error != "" {
				warnings = append(warnings, res.Error)
			}
			if res.Note != "" {
				warnings = append(warnings, res.Note)
			}
			return s.emitSuccess(res, warnings, providers)
		},
	}
	cmd.Flags().StringVar(&target, "to", "en", "Target language (ISO 639-1)")
	return cmd
}

// walletOrDefault returns raw, or the user signing key's address when raw
// is empty.
func (s *runtimeState) walletOrDefault(raw string) (string, error) {
	if v := strings.TrimSpace(raw); v != "" {
		return v, nil
	}
	txSigner, err := signer.Load(signer.RoleUser, s.settings.KeySource, s.privateKey)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUsage, "no wallet given and no user signing key configured", err)
	}
	return txSigner.Address().Hex(), nil
}
