package schema

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestBuildSchema(t *testing.T) {
	root := &cobra.Command{Use: "lingo"}
	root.PersistentFlags().Bool("json", false, "json output")
	claims := &cobra.Command{Use: "claims", Short: "claim links"}
	redeem := &cobra.Command{Use: "redeem <token>", Short: "redeem a claim", Aliases: []string{"r"}}
	redeem.Flags().String("wallet", "", "recipient wallet")
	_ = redeem.MarkFlagRequired("wallet")
	claims.AddCommand(redeem)
	root.AddCommand(claims)

	s, err := Build(root, "claims r")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if s.Path != "lingo claims redeem" || s.Args != "<token>" {
		t.Fatalf("unexpected command %+v", s)
	}
	if len(s.Flags) != 1 || s.Flags[0].Name != "wallet" || !s.Flags[0].Required {
		t.Fatalf("unexpected flags: %+v", s.Flags)
	}
	if len(s.Inherited) != 1 || s.Inherited[0].Name != "json" {
		t.Fatalf("unexpected inherited flags: %+v", s.Inherited)
	}

	if _, err := Build(root, "claims missing"); err == nil {
		t.Fatal("expected unknown command error")
	}

	full, err := Build(root, "")
	if err != nil {
		t.Fatalf("Build root failed: %v", err)
	}
	if len(full.Subcommands) != 1 || len(full.Subcommands[0].Subcommands) != 1 {
		t.Fatalf("unexpected tree %+v", full)
	}
}
