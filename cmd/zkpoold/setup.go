package main

import (
	"fmt"

	"github.com/kysee/zkpool/zk-pool/crypto"
	"github.com/kysee/zkpool/zk-pool/proof"
	"github.com/spf13/cobra"
)

func setupCmd() *cobra.Command {
	var solidity bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Compile the spend circuit and generate its proving params",
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := proof.Setup(cfg.TreeDepth)
			if err != nil {
				return err
			}
			if err := params.Write(cfg.Proof.ParamsDir); err != nil {
				return err
			}
			fmt.Printf("spend params for depth %d written to %s\n", params.Depth, cfg.Proof.ParamsDir)

			if solidity {
				path, err := params.ExportSolidity(cfg.Proof.ParamsDir)
				if err != nil {
					return err
				}
				fmt.Printf("solidity verifier written to %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&solidity, "solidity", false, "also export a solidity verifier")
	return cmd
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a spend key",
		RunE: func(cmd *cobra.Command, args []string) error {
			sk, err := crypto.NewSpendKey()
			if err != nil {
				return err
			}
			fmt.Printf("address:   %s\n", sk.Address())
			fmt.Printf("spend key: %x\n", sk.Bytes())
			return nil
		},
	}
}

// loadParams reads the proving params and installs their verification key.
func loadParams() (*proof.Params, error) {
	params, err := proof.LoadParams(cfg.Proof.ParamsDir)
	if err != nil {
		return nil, fmt.Errorf("load params (run setup first): %w", err)
	}
	if params.Depth != cfg.TreeDepth {
		return nil, fmt.Errorf("params in %s are for depth %d, config has tree_depth %d", cfg.Proof.ParamsDir, params.Depth, cfg.TreeDepth)
	}
	if err := proof.Init(params.VK, cfg.Proof.CacheSize); err != nil {
		return nil, err
	}
	return params, nil
}
