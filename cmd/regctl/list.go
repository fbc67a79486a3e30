package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/LandRegistry/internal/core"
)

func newListCmd(e *env) *cobra.Command {
	var topic string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ingested record sets, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), e.app.Service, cmd.OutOrStdout(), topic)
		},
	}
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "only list record sets with this topic")
	return cmd
}

func runList(ctx context.Context, svc *core.Service, out io.Writer, topic string) error {
	list, err := svc.ListRecordSets(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTOPIC\tRECORDS\tUPLOADED")
	for _, rs := range list {
		if topic != "" && rs.Topic != topic {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", rs.ID, rs.Name, rs.Topic, rs.RecordCount, rs.UploadedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}
