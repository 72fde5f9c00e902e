package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/session"
	"github.com/mohammad-safakhou/deepresearch/internal/session/vault"
)

func sessionsCMD() *cobra.Command {
	var cfgPath string
	var vaultPath string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect stored research sessions",
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.PersistentFlags().StringVar(&vaultPath, "vault-path", "", "vault directory override")

	loader := func() (*vault.Loader, error) {
		path := vaultPath
		if path == "" {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return nil, err
			}
			path = cfg.Vault.Path
		}
		return vault.NewLoader(path), nil
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List sessions in the vault",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := loader()
			if err != nil {
				return err
			}
			items, err := l.List()
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Println("No sessions found in vault")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tVERSION\tSTATUS\tWORKERS\tCOST\tQUERY")
			for _, it := range items {
				fmt.Fprintf(w, "%s\tv%d\t%s\t%d\t$%.4f\t%s\n",
					it.SessionID, it.Version, it.Status, it.NumWorkers, it.TotalCost, clipQuery(it.Query))
			}
			return w.Flush()
		},
	}

	var version int
	show := &cobra.Command{
		Use:   "show <session_id>",
		Short: "Show a session with worker drill-down",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := loader()
			if err != nil {
				return err
			}
			id, v := session.SplitVersionedID(args[0])
			if v == 0 {
				v = version
			}
			s, err := l.Load(id, v)
			if err != nil {
				return err
			}

			fmt.Printf("Session: %s\n", s.VersionedID())
			if s.ParentSessionID != "" {
				fmt.Printf("Parent:  %s\n", s.ParentSessionID)
			}
			fmt.Printf("Query:   %s\n", s.Query)
			fmt.Printf("Status:  %s | Model: %s | Cost: $%.4f | Sources: %d\n",
				s.Status, s.Model, s.Cost, len(s.AllSources))
			fmt.Printf("Created: %s\n\n", s.CreatedAt.Format("2006-01-02 15:04:05"))

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WORKER\tSTATUS\tITERATIONS\tTOOL CALLS\tSOURCES\tCOST\tOBJECTIVE")
			for i := range s.Workers {
				wk := &s.Workers[i]
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t$%.4f\t%s\n",
					wk.TaskID, wk.Status, len(wk.ReactIterations), len(wk.ToolCalls),
					len(wk.Sources), wk.Cost, clipQuery(wk.Objective))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if len(s.Insights) > 0 {
				fmt.Printf("\nInsights (%d):\n", len(s.Insights))
				for _, ins := range s.Insights {
					fmt.Printf("- [%s] %s\n", ins.Confidence, ins.Title)
				}
			}
			return nil
		},
	}
	show.Flags().IntVar(&version, "version", 1, "session version")

	cmd.AddCommand(list, show)
	return cmd
}

func clipQuery(q string) string {
	if len(q) > 60 {
		return q[:60] + "..."
	}
	return q
}
