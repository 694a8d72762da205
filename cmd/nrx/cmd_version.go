package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/netreplica/nrx/pkg/version"
)

func newVersionCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(out, version.Info())
		},
	}
}
