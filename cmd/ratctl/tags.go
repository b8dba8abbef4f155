package main

import (
	"fmt"
	"io"

	"github.com/danmuck/ratlink/internal/protocol/schema"
	"github.com/spf13/cobra"
)

func tagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "List the wire tags and payload layouts",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printTags(cmd.OutOrStdout())
		},
	}
}

func printTags(out io.Writer) {
	for _, dir := range []schema.Direction{schema.Inbound, schema.Outbound} {
		fmt.Fprintf(out, "%s (max frame %d bytes)\n", dir, schema.MaxFrameLen(dir))
		for _, l := range schema.Layouts(dir) {
			fmt.Fprintf(out, "  %-40s %d bytes\n", l.String(), l.FrameLen())
		}
	}
}
