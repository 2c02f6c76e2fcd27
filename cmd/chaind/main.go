package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"synnergy-network/core"
	"synnergy-network/pkg/config"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{Use: "chaind"}
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(submitBlockCmd())
	rootCmd.AddCommand(headCmd())
	rootCmd.AddCommand(forkHeadsCmd())
	rootCmd.AddCommand(rectifyCmd())
	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("chaind: command failed")
		os.Exit(1)
	}
}

// newController loads config, opens the state database at its configured
// path and wires a controller over it, the way a real invocation of any of
// this binary's subcommands needs to.
func newController() (*core.Controller, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.WithError(err).Warn("chaind: no config file found, using defaults")
		cfg = &config.Config{}
	}

	threshold := uint64(cfg.Chain.IrreversibilityThreshold)
	if threshold == 0 {
		threshold = core.DefaultIrreversibilityThreshold
	}

	patches, err := loadRectifyPatches(cfg.Chain.RectifyPatchFile)
	if err != nil {
		return nil, fmt.Errorf("chaind: load rectify patches: %w", err)
	}

	db, err := core.OpenStateDB(core.StateDBConfig{
		Path:           cfg.Storage.DBPath,
		ForkAlgo:       forkChoiceFromName(cfg.Chain.ForkChoice),
		Threshold:      threshold,
		RectifyPatches: patches,
	})
	if err != nil {
		return nil, fmt.Errorf("chaind: open state db: %w", err)
	}

	backend, err := core.NewWasmBackend(cfg.VM.ModuleCacheSize)
	if err != nil {
		return nil, fmt.Errorf("chaind: open wasm backend: %w", err)
	}

	budgets := core.ResourceBudgets{
		Disk:    uint64(cfg.Chain.DiskBudget),
		Network: uint64(cfg.Chain.NetworkBudget),
		Ticks:   uint64(cfg.Chain.ComputeTicks),
	}
	return core.NewController(db, backend, budgets, core.BlockID{}), nil
}

// loadRectifyPatches reads a JSON array of rectification patches from path,
// the operator-approved corrections consulted at commit_irreversible time
// (section 9). An empty path means no patches are configured.
func loadRectifyPatches(path string) ([]core.RectifyPatch, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var patches []core.RectifyPatch
	if err := json.Unmarshal(raw, &patches); err != nil {
		return nil, fmt.Errorf("decode rectify patch file: %w", err)
	}
	return patches, nil
}

func forkChoiceFromName(name string) core.ForkChoice {
	switch name {
	case "block_time":
		return core.BlockTimeForkChoice{}
	case "proof_of_burn":
		return core.ProofOfBurnForkChoice{}
	default:
		return core.FIFOForkChoice{}
	}
}

func startCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start the node's RPC surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := newController()
			if err != nil {
				return err
			}
			return ctrl.Serve(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address for the RPC surface")
	return cmd
}

func submitBlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit-block [block.json]",
		Short: "submit a block read as JSON from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(args)
			if err != nil {
				return err
			}
			var block core.Block
			if err := json.Unmarshal(raw, &block); err != nil {
				return fmt.Errorf("chaind: decode block: %w", err)
			}
			ctrl, err := newController()
			if err != nil {
				return err
			}
			receipt, err := ctrl.SubmitBlock(block)
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(receipt)
		},
	}
}

func headCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "head",
		Short: "print the current head info",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := newController()
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(ctrl.GetHeadInfo())
		},
	}
}

func forkHeadsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fork-heads",
		Short: "print every finalized tip",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := newController()
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(ctrl.GetForkHeads())
		},
	}
}

func rectifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rectify [patch.json]",
		Short: "apply a single rectification patch against the current head, out of band",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(args)
			if err != nil {
				return err
			}
			patch, err := core.DecodeRectifyPatch(raw)
			if err != nil {
				return fmt.Errorf("chaind: decode patch: %w", err)
			}
			ctrl, err := newController()
			if err != nil {
				return err
			}
			head := ctrl.DB.Head()
			if head == nil {
				return fmt.Errorf("chaind: no head node")
			}
			if err := core.Rectify(ctrl.DB, head.Handle, patch); err != nil {
				return fmt.Errorf("chaind: apply patch: %w", err)
			}
			log.WithField("patch", patch.Name).Info("chaind: rectification applied")
			return nil
		},
	}
}

func readInput(args []string) ([]byte, error) {
	if len(args) == 1 {
		return os.ReadFile(args[0])
	}
	return io.ReadAll(os.Stdin)
}
