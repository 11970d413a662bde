package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"orderScope/internal/storage"
)

const exportPageSize = 1000

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump stored orders to a JSONL file",
		RunE:  runExport,
	}
	cmd.Flags().String("out", "./data/orders.jsonl", "output JSONL path")
	cmd.Flags().Uint64("chain", 0, "only export this chain id (0 means all)")
	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	out, _ := cmd.Flags().GetString("out")
	chainID, _ := cmd.Flags().GetUint64("chain")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, false, logger)
	if err != nil {
		return err
	}
	defer store.close()

	var filter storage.OrderFilter
	if chainID != 0 {
		filter.ChainID = &chainID
	}

	export, err := storage.CreateOrderExport(out)
	if err != nil {
		return err
	}
	if err := exportOrders(ctx, store, export, filter); err != nil {
		export.Abort()
		return err
	}
	if err := export.Commit(); err != nil {
		return err
	}
	logger.Info("export done", zap.String("out", out), zap.Int("orders", export.Count()))
	return nil
}

func exportOrders(ctx context.Context, reader storage.Reader, export *storage.OrderExport, filter storage.OrderFilter) error {
	for offset := 0; ; offset += exportPageSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		orders, _, err := reader.ListOrders(ctx, filter, storage.Page{Offset: offset, Limit: exportPageSize})
		if err != nil {
			return err
		}
		if err := export.Write(orders); err != nil {
			return err
		}
		if len(orders) < exportPageSize {
			return nil
		}
	}
}
