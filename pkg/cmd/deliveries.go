package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ethos-works/threadqueue/pkg/db"
	"github.com/ethos-works/threadqueue/pkg/executor"
	"github.com/ethos-works/threadqueue/pkg/types"
)

const (
	flagStatus = "status"
	flagSeq    = "seq"
)

func getDeliveriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deliveries",
		Short: "List the delivery records kept in a database file",
		Args:  cobra.NoArgs,
		RunE:  deliveriesCmdHandler,
	}

	cmd.Flags().String(flagStatus, "", "only list deliveries with this status [pending|done|failed]")
	cmd.Flags().Uint64(flagSeq, 0, "only show the delivery with this sequence number")

	return cmd
}

func deliveriesCmdHandler(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	status, err := cmd.Flags().GetString(flagStatus)
	if err != nil {
		return err
	}

	var filter *types.DeliveryStatus
	if status != "" {
		s, err := types.ParseDeliveryStatus(status)
		if err != nil {
			return err
		}
		filter = &s
	}

	store, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}

	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close db")
		}
	}()

	var deliveries []*types.Delivery
	if cmd.Flags().Changed(flagSeq) {
		seq, err := cmd.Flags().GetUint64(flagSeq)
		if err != nil {
			return err
		}

		d, err := executor.GetDelivery(store, seq)
		if err != nil {
			return err
		}
		deliveries = append(deliveries, d)
	} else {
		if deliveries, err = executor.Deliveries(store); err != nil {
			return err
		}
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	if err := printDeliveries(w, deliveries, filter); err != nil {
		return err
	}

	return w.Flush()
}

func printDeliveries(w io.Writer, deliveries []*types.Delivery, filter *types.DeliveryStatus) error {
	if _, err := fmt.Fprintln(w, "SEQ\tTOPIC\tSTATUS\tWORKER\tUPDATED\tERROR"); err != nil {
		return err
	}

	for _, d := range deliveries {
		if filter != nil && d.Status != *filter {
			continue
		}

		_, err := fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
			d.Seq, d.Topic, d.Status, d.Worker, d.UpdatedAt.Format(time.RFC3339), d.Error)
		if err != nil {
			return err
		}
	}

	return nil
}
