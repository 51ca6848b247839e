package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"trail-go/internal/app"
	"trail-go/internal/config"
	"trail-go/internal/render"
	"trail-go/internal/trail"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a TrailApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Record", "List").
func newApp(cmd *cobra.Command, operation string, parameters ...string) (*app.TrailApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	scope, _ := cmd.Flags().GetString("scope")
	a, err := app.NewTrailApp(cmd.Context(), cfg, app.Options{
		Operation:  operation,
		Parameters: strings.Join(parameters, " "),
		Scope:      scope,
		Out:        cmd.OutOrStdout(),
	})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}

var rootCmd = &cobra.Command{
	Use:          "trail",
	Short:        "Record and browse walking trails",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		sessionID := uuid.New().String()
		cfg := config.NewConfig(sessionID, defaults.BaseDir, defaults.Scope)

		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Session ID: %s\n", sessionID)
		fmt.Printf("Base Dir:   %s\n", defaults.BaseDir)
		fmt.Printf("Scope:      %s\n", defaults.Scope)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Session ID:   %s\n", cfg.SessionID)
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:      %s\n", cfg.LogDir)
		fmt.Printf("Scope:        %s\n", cfg.Scope)
		fmt.Printf("Store:        %s\n", cfg.Store.Type)
		fmt.Printf("Location:     %s\n", cfg.Location.Type)
		fmt.Printf("Events:       %s\n", cfg.Events.Type)
		fmt.Printf("Unique names: %t\n", cfg.Catalog.UniqueNames)
		fmt.Printf("Min distance: %.0f m\n", cfg.Recording.MinDistanceM)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage export keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the key pair protecting exports",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "SetupKeys")
		if err != nil {
			return err
		}
		defer a.Close()

		pass, err := readPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		again, err := readPassphrase("Repeat passphrase: ")
		if err != nil {
			return err
		}
		if pass != again {
			return fmt.Errorf("passphrases do not match")
		}

		if err := a.SetupKeys(pass); err != nil {
			return fmt.Errorf("setting up keys: %w", err)
		}
		fmt.Println("Keys created.")
		return nil
	},
}

// record command
var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a trail until interrupted",
	Long: `Record a trail from the configured location provider. Press Ctrl-C to
stop; the recording is saved as a new trail, or appended to the trail given
with --continue.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		continueID, _ := cmd.Flags().GetString("continue")
		yes, _ := cmd.Flags().GetBool("yes")

		a, err := newApp(cmd, "Record", "name="+name, "continue="+continueID)
		if err != nil {
			return err
		}
		defer a.Close()

		var confirm trail.Confirmer = terminalConfirmer{}
		if yes || !stdinIsTerminal() {
			confirm = trail.AlwaysConfirm
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		go a.FollowRemote(ctx)

		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(signals)
		stop := make(chan struct{})
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-signals:
					select {
					case stop <- struct{}{}:
					case <-ctx.Done():
						return
					}
				}
			}
		}()

		fmt.Fprintln(os.Stderr, "Recording. Press Ctrl-C to stop.")
		rec, err := a.Record(ctx, app.RecordOptions{Name: name, ContinueID: continueID, Confirm: confirm}, stop)
		if err != nil {
			return fmt.Errorf("recording: %w", err)
		}

		fmt.Printf("Saved %s %q: %d segment(s), %d point(s), %.0f m\n",
			rec.ID, rec.Name, len(rec.Paths), rec.PointCount(), rec.Distance())
		return nil
	},
}

// recover command
var recoverCmd = &cobra.Command{
	Use:   "recover FILE",
	Short: "Save a recording kept after a failed save",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")

		a, err := newApp(cmd, "Recover", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.Recover(cmd.Context(), args[0], name)
		if err != nil {
			return fmt.Errorf("recovering: %w", err)
		}
		fmt.Printf("Saved %s %q\n", rec.ID, rec.Name)
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List trails",
	RunE: func(cmd *cobra.Command, args []string) error {
		query, _ := cmd.Flags().GetString("search")
		sortFlag, _ := cmd.Flags().GetString("sort")

		order, err := trail.ParseSortOrder(sortFlag)
		if err != nil {
			return err
		}

		a, err := newApp(cmd, "List")
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.List(query, order)
		if err != nil {
			return err
		}

		if len(recs) == 0 {
			fmt.Println("No trails.")
			return nil
		}

		for _, r := range recs {
			fmt.Printf("%-36s  %s  %6.0f m  %s\n", r.ID, formatTime(r.Timestamp), r.Distance(), r.Name)
		}
		return nil
	},
}

// show command
var showCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		a, err := newApp(cmd, "Show", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.Show(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		switch format {
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		case "yaml":
			enc := yaml.NewEncoder(os.Stdout)
			defer enc.Close()
			return enc.Encode(rec)
		case "text":
			start, _ := rec.Start()
			stop, _ := rec.Stop()
			fmt.Printf("ID:       %s\n", rec.ID)
			fmt.Printf("Name:     %s\n", rec.Name)
			fmt.Printf("Recorded: %s\n", formatTime(rec.Timestamp))
			fmt.Printf("Segments: %d\n", len(rec.Paths))
			fmt.Printf("Points:   %d\n", rec.PointCount())
			fmt.Printf("Distance: %.0f m\n", rec.Distance())
			fmt.Printf("Start:    %s\n", render.FormatPosition(start))
			fmt.Printf("Stop:     %s\n", render.FormatPosition(stop))
			return nil
		default:
			return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
		}
	},
}

// rename command
var renameCmd = &cobra.Command{
	Use:   "rename ID NAME",
	Short: "Rename a trail",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Rename", args...)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Rename(cmd.Context(), args[0], args[1]); err != nil {
			return fmt.Errorf("renaming: %w", err)
		}
		fmt.Printf("Renamed %s to %q\n", args[0], strings.TrimSpace(args[1]))
		return nil
	},
}

// delete command
var deleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Delete", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Delete(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("deleting: %w", err)
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

// view command
var viewCmd = &cobra.Command{
	Use:   "view ID",
	Short: "Draw one trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		geojsonFile, _ := cmd.Flags().GetString("geojson")

		a, err := newApp(cmd, "View", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.View(args[0]); err != nil {
			return err
		}
		return writeGeoJSON(a, geojsonFile)
	},
}

// combine command
var combineCmd = &cobra.Command{
	Use:   "combine ID...",
	Short: "Draw several trails together",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		geojsonFile, _ := cmd.Flags().GetString("geojson")

		a, err := newApp(cmd, "Combine", args...)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Combine(args); err != nil {
			return err
		}
		return writeGeoJSON(a, geojsonFile)
	},
}

func writeGeoJSON(a *app.TrailApp, path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	if err := a.WriteGeoJSON(f); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
	return nil
}

// export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all trails of the scope, encrypted",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")

		a, err := newApp(cmd, "Export", out)
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err != nil {
			return fmt.Errorf("creating export file: %w", err)
		}
		n, err := a.Export(cmd.Context(), f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(out)
			return fmt.Errorf("exporting: %w", err)
		}

		fmt.Printf("Exported %d trail(s) to %s\n", n, out)
		return nil
	},
}

// import command
var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import trails from an encrypted export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Import", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening export: %w", err)
		}
		defer f.Close()

		pass, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}

		res, err := a.Import(cmd.Context(), f, pass)
		if err != nil {
			return fmt.Errorf("importing: %w", err)
		}

		fmt.Printf("Imported %d trail(s)\n", len(res.Imported))
		for _, name := range res.Skipped {
			fmt.Printf("Skipped %q\n", name)
		}
		return nil
	},
}

// follow command
var followCmd = &cobra.Command{
	Use:   "follow",
	Short: "Print the trail list whenever another session changes it",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Follow")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		unsubscribe := a.Session().Catalog().Subscribe(func(ev trail.ListChanged) {
			fmt.Printf("%s  %d trail(s) in %s\n", time.Now().Format("15:04:05"), len(ev.Records), ev.Scope)
		})
		defer unsubscribe()

		return a.FollowRemote(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().String("scope", "", "Scope to read and write trails in (default from config)")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().StringP("name", "n", "", "Name of the new trail")
	recordCmd.Flags().StringP("continue", "c", "", "Append the recording to this trail ID")
	recordCmd.Flags().BoolP("yes", "y", false, "Stop without asking for confirmation")
	rootCmd.AddCommand(recoverCmd)
	recoverCmd.Flags().StringP("name", "n", "", "Name to save under (default from the file)")
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringP("search", "s", "", "Only list trails whose name contains this text")
	listCmd.Flags().String("sort", string(trail.SortNewestFirst), "Order: name-asc, name-desc, newest-first, oldest-first")
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().StringP("format", "f", "text", "Output format: text, json or yaml")
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(viewCmd)
	viewCmd.Flags().String("geojson", "", "Also write the view to this GeoJSON file")
	rootCmd.AddCommand(combineCmd)
	combineCmd.Flags().String("geojson", "", "Also write the view to this GeoJSON file")
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringP("out", "o", "trails.age", "Export file")
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(followCmd)
}
