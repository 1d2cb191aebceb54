package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newOrderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "order",
		Short: "Print relations in dependency order",
		RunE: func(cmd *cobra.Command, args []string) error {
			ordered, err := loadOrderedRelations(cmd.Context(), nil)
			if err != nil {
				return err
			}
			for i, rel := range ordered {
				fmt.Printf("%3d  %s\n", i+1, rel.Identifier())
			}
			return nil
		},
	}
}
