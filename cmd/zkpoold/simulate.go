package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/holiman/uint256"
	"github.com/kysee/zkpool/utils"
	"github.com/kysee/zkpool/zk-pool/action"
	"github.com/kysee/zkpool/zk-pool/crypto"
	"github.com/kysee/zkpool/zk-pool/event"
	"github.com/kysee/zkpool/zk-pool/node"
	"github.com/kysee/zkpool/zk-pool/proof"
	"github.com/kysee/zkpool/zk-pool/prover"
	"github.com/kysee/zkpool/zk-pool/store"
	"github.com/kysee/zkpool/zk-pool/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func simulateCmd() *cobra.Command {
	var notes int

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Mint notes at genesis and spend them in one block, double spends included",
		RunE: func(cmd *cobra.Command, args []string) error {
			if notes < 3 {
				return fmt.Errorf("need at least 3 notes, got %d", notes)
			}
			params, err := loadParams()
			if err != nil {
				return err
			}
			n, bus, err := openNode()
			if err != nil {
				return err
			}
			defer n.Store().Close()

			if cfg.Metrics.Listen != "" {
				go serveMetrics(cfg.Metrics.Listen)
			}

			onSpend := func(ev store.Event) {
				sp, err := event.DecodeSpend(ev)
				if err != nil {
					fmt.Printf("  bad event at %d/%d: %v\n", ev.Version, ev.Seq, err)
					return
				}
				fmt.Printf("  event %d/%d: nullifier %s spent\n", ev.Version, ev.Seq, sp.Nullifier)
			}
			if err := bus.SubscribeAsync(event.KindSpend, onSpend); err != nil {
				return err
			}

			return simulate(cmd.Context(), n, bus, params, notes)
		},
	}
	cmd.Flags().IntVarP(&notes, "notes", "n", 4, "number of notes to mint at genesis")
	return cmd
}

func simulate(ctx context.Context, n *node.Node, bus *event.Bus, params *proof.Params, count int) error {
	if n.Store().Version() != 0 {
		return errors.New("simulate needs an empty state")
	}

	key, err := crypto.NewSpendKey()
	if err != nil {
		return err
	}
	notes := make([]*types.Note, count)
	for i := range notes {
		notes[i] = types.NewNote(uint256.NewInt(uint64(i+1)*100), key.Ak(), key.Nk())
	}
	positions, err := n.Genesis(ctx, notes)
	if err != nil {
		return err
	}
	fmt.Printf("minted %d notes to %s\n", count, key.Address())

	plans := make([]prover.SpendPlan, count)
	for i := range plans {
		plans[i] = prover.SpendPlan{Key: key, Note: notes[i], Position: positions[i]}
	}

	snap, err := n.Store().Snapshot()
	if err != nil {
		return err
	}
	build := func(plans ...prover.SpendPlan) (*action.Transaction, error) {
		tx, _, err := prover.BuildTransaction(ctx, params, snap, n.Tree(), cfg.ChainID, plans)
		return tx, err
	}
	var txs []*action.Transaction
	for _, group := range [][]prover.SpendPlan{
		plans[2:],            // spends the tail
		{plans[0], plans[0]}, // same note twice in one transaction
		{plans[1]},           // valid
		{plans[2]},           // already spent by the first transaction
	} {
		tx, err := build(group...)
		if err != nil {
			snap.Release()
			return err
		}
		txs = append(txs, tx)
	}
	snap.Release()

	results, anchor, err := n.ApplyBlock(ctx, txs)
	if err != nil {
		return err
	}
	bus.WaitAsync()

	for i, res := range results {
		if res.IsOK() {
			fmt.Printf("tx %d %x: committed at version %d with %d events\n", i, res.TxID[:8], res.Version, len(res.Events))
		} else {
			fmt.Printf("tx %d %x: rejected %s (%v)\n", i, res.TxID[:8], res.Code, res.Err)
		}
	}
	fmt.Printf("block %d sealed with anchor %s\n", n.Height()-1, anchor)
	return nil
}

func serveMetrics(addr string) {
	logger := utils.NewLogger("metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}))
	logger.Info().Str("addr", addr).Msg("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("metrics server stopped")
	}
}
