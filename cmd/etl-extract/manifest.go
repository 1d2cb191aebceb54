package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dwops/etl-core/internal/collab"
)

var flagManifestWait bool

func newManifestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest <schema.table>",
		Short: "Rewrite one relation's load manifest from its already-extracted data files",
		Args:  cobra.ExactArgs(1),
		RunE:  runManifest,
	}
	cmd.Flags().BoolVar(&flagManifestWait, "wait", false, "poll for the _SUCCESS sentinel instead of requiring it to already be present")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "log the manifest that would be written instead of uploading it")
	return cmd
}

func runManifest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	identifier := args[0]

	blob, err := collab.NewS3Blob(ctx)
	if err != nil {
		return fmt.Errorf("init object store client: %w", err)
	}

	ordered, err := loadOrderedRelations(ctx, blob)
	if err != nil {
		return err
	}

	for _, rel := range ordered {
		if rel.Identifier() != identifier {
			continue
		}
		manifestWriter := newManifestWriter(blob)
		csvPrefix := rel.Prefix() + "/csv"
		if err := manifestWriter.Write(ctx, rel, rel.BucketName(), csvPrefix, flagManifestWait); err != nil {
			return err
		}
		fmt.Printf("wrote manifest for %s\n", identifier)
		return nil
	}

	return fmt.Errorf("no relation %q found under %s", identifier, flagDiscoverRoot)
}
