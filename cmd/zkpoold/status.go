package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/kysee/zkpool/zk-pool/sct"
	"github.com/kysee/zkpool/zk-pool/store"
	"github.com/kysee/zkpool/zk-pool/types"
	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the state version, root and latest anchor",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, _, err := openNode()
			if err != nil {
				return err
			}
			defer n.Store().Close()

			snap, err := n.Store().Snapshot()
			if err != nil {
				return err
			}
			defer snap.Release()
			ctx := context.Background()

			size, err := n.Tree().Size(ctx, snap)
			if err != nil {
				return err
			}
			fmt.Printf("chain:   %s\n", cfg.ChainID)
			fmt.Printf("version: %d\n", snap.Version())
			fmt.Printf("root:    %x\n", n.Store().Root())
			fmt.Printf("height:  %d\n", n.Height())
			fmt.Printf("notes:   %d/%d\n", size, n.Tree().Capacity())

			anchor, err := sct.LatestAnchor(ctx, snap)
			if errors.Is(err, store.ErrNotFound) {
				fmt.Println("anchor:  none")
				return nil
			} else if err != nil {
				return err
			}
			fmt.Printf("anchor:  %s\n", anchor)
			return nil
		},
	}
}

func nullifierCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nullifier <hex>",
		Short: "Tell whether a nullifier is spent and by which transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nf, err := types.ParseNullifier(args[0])
			if err != nil {
				return err
			}
			n, _, err := openNode()
			if err != nil {
				return err
			}
			defer n.Store().Close()

			snap, err := n.Store().Snapshot()
			if err != nil {
				return err
			}
			defer snap.Release()

			src, found, err := sct.SpendSource(context.Background(), snap, nf)
			if err != nil {
				return err
			}
			if !found {
				fmt.Printf("%s unspent\n", nf)
				return nil
			}
			fmt.Printf("%s spent by %s\n", nf, src)
			return nil
		},
	}
}
