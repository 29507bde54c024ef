package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/xela07ax/nexusflow/internal/app"
	"github.com/xela07ax/nexusflow/internal/console/service"
	"github.com/xela07ax/nexusflow/internal/directory"
	"github.com/xela07ax/nexusflow/internal/domain"
	"github.com/xela07ax/nexusflow/internal/engine"
	"github.com/xela07ax/nexusflow/internal/seed"
)

func runCmd() *cobra.Command {
	var (
		asJSON      bool
		paced       bool
		capability  string
		failureRate float64
		seedValue   uint64
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one workflow in-process and print the resulting graph and ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if cmd.Flags().Changed("capability") {
				cfg.Engine.Capability = capability
			}
			if cmd.Flags().Changed("failure-rate") {
				if failureRate < 0 || failureRate > 1 {
					return fmt.Errorf("--failure-rate must be within [0, 1]")
				}
				cfg.Engine.QuoteFailureRate = failureRate
			}
			if cmd.Flags().Changed("seed") {
				cfg.Engine.Seed = seedValue
			}

			var opts []engine.Option
			if !paced {
				opts = append(opts, engine.WithPacer(engine.NoDelay{}))
			}
			a, err := app.New(cfg, logger, opts...)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if _, err := a.Engine.Run(ctx); err != nil {
				return err
			}

			snap := a.Engine.Snapshot()
			if asJSON {
				return printJSON(os.Stdout, snap)
			}
			renderSnapshot(os.Stdout, snap)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	cmd.Flags().BoolVar(&paced, "paced", false, "keep presentation delays between phases")
	cmd.Flags().StringVar(&capability, "capability", "", "required supplier capability")
	cmd.Flags().Float64Var(&failureRate, "failure-rate", 0, "share of suppliers that fail to quote (resilience test)")
	cmd.Flags().Uint64Var(&seedValue, "seed", 0, "random seed for price jitter")
	return cmd
}

func directoryCmd() *cobra.Command {
	dir := &cobra.Command{Use: "directory", Short: "Inspect the Agent Directory"}
	dir.AddCommand(directoryFindCmd())
	dir.AddCommand(directoryExportCmd())
	return dir
}

func directoryFindCmd() *cobra.Command {
	var (
		q      directory.Query
		role   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "find",
		Short: "Find agents by role, capability and jurisdiction",
		RunE: func(cmd *cobra.Command, args []string) error {
			q.Role = domain.AgentRole(role)
			if q.Role != "" && !q.Role.IsValid() {
				return fmt.Errorf("unknown role %q", role)
			}
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}

			records := a.Directory.Find(q)
			if asJSON {
				return printJSON(os.Stdout, records)
			}
			renderRecords(os.Stdout, records)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "buyer, supplier or logistics")
	cmd.Flags().StringVar(&q.Capability, "capability", "", "capability tag")
	cmd.Flags().StringVar(&q.Jurisdiction, "jurisdiction", "", "jurisdiction code")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

func directoryExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print the configured agent set as a seed YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadRuntime()
			if err != nil {
				return err
			}
			agents, err := seed.Load(cfg.Engine.SeedFile)
			if err != nil {
				return err
			}
			data, err := seed.Marshal(agents)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}
}

func authCmd() *cobra.Command {
	a := &cobra.Command{Use: "auth", Short: "Operator credentials"}
	a.AddCommand(hashPasswordCmd())
	return a
}

func hashPasswordCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash for auth.operators[].password_hash",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadRuntime()
			if err != nil {
				return err
			}
			if password == "" {
				password, err = readLine(os.Stdin)
				if err != nil {
					return err
				}
			}
			if password == "" {
				return errors.New("empty password")
			}
			hash, err := service.HashPassword(password, cfg.Auth.BcryptCost)
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password (read from stdin when omitted)")
	return cmd
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderSnapshot(w io.Writer, snap engine.Snapshot) {
	fmt.Fprintf(w, "run %s finished: %s\n\n", snap.RunID, outcomeLabel(snap.Outcome))

	nodes := table.NewWriter()
	nodes.SetOutputMirror(w)
	nodes.SetTitle("Agents")
	nodes.AppendHeader(table.Row{"ID", "Role", "Label", "Status"})
	for _, n := range snap.Nodes {
		nodes.AppendRow(table.Row{n.ID, n.Role, n.Label, n.Status})
	}
	nodes.Render()

	edges := table.NewWriter()
	edges.SetOutputMirror(w)
	edges.SetTitle("Relations")
	edges.AppendHeader(table.Row{"From", "To", "Type", "Label"})
	for _, e := range snap.Edges {
		edges.AppendRow(table.Row{e.From, e.To, e.Type, e.Label})
	}
	edges.Render()

	// Журнал хранится от новых к старым, печатаем хронологически
	logs := table.NewWriter()
	logs.SetOutputMirror(w)
	logs.SetTitle("Ledger")
	logs.AppendHeader(table.Row{"#", "Source", "Severity", "Message"})
	for i := len(snap.Logs) - 1; i >= 0; i-- {
		e := snap.Logs[i]
		logs.AppendRow(table.Row{e.ID, e.Source, e.Severity, e.Message})
	}
	logs.Render()
}

func renderRecords(w io.Writer, records []domain.AgentRecord) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"DID", "Role", "Jurisdiction", "Capabilities", "Endpoint"})
	for _, r := range records {
		tw.AppendRow(table.Row{
			r.Identity.DID,
			r.Identity.Role,
			r.Context.Jurisdiction,
			strings.Join(r.Capabilities, ", "),
			r.Endpoint,
		})
	}
	tw.Render()
}

func outcomeLabel(o engine.Outcome) string {
	if o == engine.OutcomeNone {
		return "not started"
	}
	return string(o)
}
