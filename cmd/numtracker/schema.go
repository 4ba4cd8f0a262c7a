package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DiamondLightSource/numtracker/internal/graphqlapi"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the GraphQL schema text",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(graphqlapi.SchemaText)
		return nil
	},
}
