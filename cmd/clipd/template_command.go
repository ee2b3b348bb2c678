package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"clipd/internal/config"
	"clipd/internal/store"
)

func newTemplateCommand(ctx *commandContext) *cobra.Command {
	var ownerID int64

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage saved operation parameter templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().Int64Var(&ownerID, "owner", 0, "Owner the templates belong to")

	cmd.AddCommand(newTemplateListCommand(ctx, &ownerID))
	cmd.AddCommand(newTemplateSaveCommand(ctx, &ownerID))
	cmd.AddCommand(newTemplateDeleteCommand(ctx, &ownerID))
	return cmd
}

func newTemplateListCommand(ctx *commandContext, ownerID *int64) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				templates, err := st.ListTemplates(cmd.Context(), *ownerID)
				if err != nil {
					return err
				}
				if len(templates) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no templates saved")
					return nil
				}
				rows := make([][]string, 0, len(templates))
				for _, tmpl := range templates {
					rows = append(rows, []string{tmpl.Name, formatTemplateParams(tmpl.ParamsJSON)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Name", "Parameters"}, rows, nil))
				return nil
			})
		},
	}
}

func newTemplateSaveCommand(ctx *commandContext, ownerID *int64) *cobra.Command {
	var params []string
	cmd := &cobra.Command{
		Use:   "save <name>",
		Short: "Save or replace a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				paramMap, err := parseParams(params)
				if err != nil {
					return err
				}
				if len(paramMap) == 0 {
					return fmt.Errorf("at least one --param is required")
				}
				encoded, err := json.Marshal(paramMap)
				if err != nil {
					return err
				}
				if err := st.SaveTemplate(cmd.Context(), *ownerID, args[0], string(encoded)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved template %q\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&params, "param", nil, "Operation parameter as key=value (repeatable)")
	return cmd
}

func newTemplateDeleteCommand(ctx *commandContext, ownerID *int64) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				if err := st.DeleteTemplate(cmd.Context(), *ownerID, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted template %q\n", args[0])
				return nil
			})
		},
	}
}

func formatTemplateParams(paramsJSON string) string {
	params := make(map[string]string)
	if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
		return paramsJSON
	}
	pairs := make([]string, 0, len(params))
	for k, v := range params {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, " ")
}
