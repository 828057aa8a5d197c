package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"aiknife/internal/models"
	"aiknife/internal/selector"
	"aiknife/internal/settings"
)

func newMenuCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "List the available menu actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, item := range a.registry.Menu() {
				fmt.Fprintf(w, "%s\t%s\n", item.ID, item.Title)
				for _, child := range item.Children {
					fmt.Fprintf(w, "  %s\t%s\n", child.ID, child.Title)
				}
			}
			return w.Flush()
		},
	}
}

func newModelsCmd(a *app) *cobra.Command {
	var search string
	var limit int

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the OpenRouter model catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.clients.Current()
			if err != nil {
				return err
			}
			descs, err := client.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			if search != "" {
				descs = selector.Suggest(descs, search, limit)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCONTEXT\tPROMPT\tCOMPLETION\tFEATURES")
			for _, d := range descs {
				fmt.Fprintf(w, "%s\t%d\t%g\t%g\t%s\n",
					d.ID, d.ContextLength, float64(d.Pricing.Prompt), float64(d.Pricing.Completion),
					strings.Join(d.SupportedParameters, ","))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "fuzzy match model ids")
	cmd.Flags().IntVar(&limit, "limit", selector.DefaultSuggestions, "maximum matches for --search")
	return cmd
}

func newAuthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Show usage and limits of the configured API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.clients.Current()
			if err != nil {
				return err
			}
			info, err := client.KeyInfo(cmd.Context())
			if err != nil {
				return err
			}
			printKeyInfo(cmd, info)
			return nil
		},
	}
}

func printKeyInfo(cmd *cobra.Command, info models.KeyInfo) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "label:     %s\n", info.Label)
	fmt.Fprintf(out, "usage:     %g\n", info.Usage)
	if info.Limit != nil {
		fmt.Fprintf(out, "limit:     %g\n", *info.Limit)
	} else {
		fmt.Fprintln(out, "limit:     none")
	}
	fmt.Fprintf(out, "free tier: %t\n", info.IsFreeTier)
}

func newSettingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the stored API key and default model",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := a.store.Get().Redacted()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "file:          %s\n", a.store.Path())
			fmt.Fprintf(out, "api_key:       %s\n", s.APIKey)
			fmt.Fprintf(out, "default_model: %s\n", s.DefaultModel)
			return nil
		},
	})

	var apiKey, defaultModel string
	set := &cobra.Command{
		Use:   "set",
		Short: "Validate and save settings, then test the key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			values := a.store.Get()
			if cmd.Flags().Changed("api-key") {
				values.APIKey = apiKey
			}
			if cmd.Flags().Changed("default-model") {
				values.DefaultModel = defaultModel
			}

			var catalog selector.Catalog
			if client, err := a.clients.WithKey(values.APIKey); err == nil {
				catalog = client
			}
			checker := func(key string) (settings.KeyChecker, error) {
				return a.clients.WithKey(key)
			}

			out, err := settings.Apply(cmd.Context(), a.store, values, catalog, checker)
			if err != nil {
				return err
			}
			for _, w := range out.Warnings {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Status)
			return nil
		},
	}
	set.Flags().StringVar(&apiKey, "api-key", "", "OpenRouter API key (sk-or-...)")
	set.Flags().StringVar(&defaultModel, "default-model", "", "model used when no catalog entry fits")
	cmd.AddCommand(set)

	return cmd
}
