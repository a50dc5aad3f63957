package main

import (
	"github.com/spf13/cobra"

	"github.com/kbukum/gridstore/version"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   version.Name,
		Short: "gridstore - stream HTTP uploads into MongoDB GridFS",
		Long: `gridstore accepts multipart/form-data uploads and streams every file part
into a GridFS bucket, resolving file names, buckets and metadata per file.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.Version = version.GetShortVersion()
	root.SetVersionTemplate(version.Name + " {{.Version}}\n")

	root.AddCommand(newServeCmd(), newVersionCmd())
	return root
}
