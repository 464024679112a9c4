package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tradeedge/signalcore/internal/ledger"
)

func runVerify(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	from, _ := cmd.Flags().GetUint64("from")
	to, _ := cmd.Flags().GetUint64("to")

	ctx := context.Background()
	eng, err := buildEngine(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer eng.close()

	err = eng.audit.Verify(ctx, from, to)
	var iErr *ledger.IntegrityError
	switch {
	case err == nil:
		fmt.Println("Ledger intact")
		return nil
	case errors.As(err, &iErr):
		fmt.Printf("TAMPERED: first broken entry at seq %d\n", iErr.Seq)
		return err
	default:
		return err
	}
}
