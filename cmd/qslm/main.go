package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"qslm/internal/app"
	"qslm/internal/config"
	"qslm/internal/model"
	"qslm/internal/qsl"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "AddLog", "IssueCards").
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	return config.ReadFromFile(defaults["config_path"])
}

// readSecret prompts on stderr and reads a line without echo.
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return string(secret), nil
}

func parseLogIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid log id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

var rootCmd = &cobra.Command{
	Use:   "qslm",
	Short: "QSL card and contact log manager",
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
		callsign, _ := cmd.Flags().GetString("callsign")
		if callsign == "" {
			return fmt.Errorf("--callsign is required")
		}

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(strings.ToUpper(callsign), defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		a, err := app.NewApp(cfg, "ConfigInit")
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.Service().AddCallsign(cfg.PrimaryCallsign); err != nil {
			return err
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Primary Callsign: %s\n", cfg.PrimaryCallsign)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
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

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Primary Callsign: %s\n", cfg.PrimaryCallsign)
		fmt.Printf("Base Dir:         %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:          %s\n", cfg.LogDir)
		fmt.Printf("Logbook:          %s\n", cfg.LogbookPath)
		fmt.Printf("Database:         %s (%s)\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Archive:          %s\n", cfg.Archive.Type)
		return nil
	},
}

// callsign command
var callsignCmd = &cobra.Command{
	Use:   "callsign",
	Short: "Manage operator callsigns",
}

var callsignAddCmd = &cobra.Command{
	Use:   "add CALLSIGN",
	Short: "Register an operator callsign",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("AddCallsign")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Service().AddCallsign(args[0]); err != nil {
			return err
		}
		fmt.Printf("Registered callsign: %s\n", strings.ToUpper(args[0]))
		return nil
	},
}

var callsignRemoveCmd = &cobra.Command{
	Use:   "remove CALLSIGN",
	Short: "Remove an operator callsign",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("RemoveCallsign")
		if err != nil {
			return err
		}
		defer a.Close()

		removed, err := a.Service().RemoveCallsign(strings.ToUpper(args[0]))
		if err != nil {
			return err
		}
		if !removed {
			fmt.Printf("Callsign not registered: %s\n", strings.ToUpper(args[0]))
			return nil
		}
		fmt.Printf("Removed callsign: %s\n", strings.ToUpper(args[0]))
		return nil
	},
}

var callsignListCmd = &cobra.Command{
	Use:   "list",
	Short: "List operator callsigns",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListCallsigns")
		if err != nil {
			return err
		}
		defer a.Close()

		callsigns, err := a.Service().Callsigns()
		if err != nil {
			return err
		}
		if len(callsigns) == 0 {
			fmt.Println("No callsigns registered.")
			return nil
		}
		for _, cs := range callsigns {
			fmt.Println(cs)
		}
		return nil
	},
}

// log command
var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Manage contact logs",
}

var logAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a contact",
	RunE: func(cmd *cobra.Command, args []string) error {
		get := func(name string) string {
			v, _ := cmd.Flags().GetString(name)
			return v
		}

		l := &model.Log{
			StationCallsign: get("station"),
			QSODate:         get("date"),
			TimeOn:          get("time"),
			Band:            get("band"),
			BandRX:          get("band-rx"),
			Freq:            get("freq"),
			FreqRX:          get("freq-rx"),
			Mode:            get("mode"),
			Submode:         get("submode"),
			RSTSent:         get("rst-sent"),
			RSTRcvd:         get("rst-rcvd"),
			Comment:         get("comment"),
			SatName:         get("sat-name"),
			PropMode:        get("prop-mode"),
		}
		if l.StationCallsign == "" {
			return fmt.Errorf("--station is required")
		}

		now := time.Now().UTC()
		if l.QSODate == "" {
			l.QSODate = now.Format("20060102")
		}
		if l.TimeOn == "" {
			l.TimeOn = now.Format("150405")
		}

		a, err := newApp("AddLog")
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.AddLog(l)
		if err != nil {
			return err
		}
		fmt.Printf("Logged contact #%d with %s on %s %s\n", id, l.StationCallsign, l.QSODate, l.TimeOn)
		return nil
	},
}

var logListCmd = &cobra.Command{
	Use:   "list",
	Short: "Search contact logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		var f qsl.Filters
		f.MyCallsign, _ = cmd.Flags().GetString("my")
		f.StationCallsign, _ = cmd.Flags().GetString("station")
		f.Mode, _ = cmd.Flags().GetString("mode")
		f.CardID, _ = cmd.Flags().GetString("card")

		a, err := newApp("SearchLogs")
		if err != nil {
			return err
		}
		defer a.Close()

		logs, err := a.Service().SearchLogs(f)
		if err != nil {
			return err
		}
		if len(logs) == 0 {
			fmt.Println("No logs found.")
			return nil
		}
		for _, l := range logs {
			fmt.Printf("#%-5d %-10s %-10s %s %s  %-6s %-6s S:%s R:%s  %s\n",
				l.ID, l.MyCallsign, l.StationCallsign, l.QSODate, l.TimeOn,
				l.Band, l.Mode, l.QSLSent, l.QSLRcvd, l.Comment)
		}
		return nil
	},
}

var logShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "View one contact and its cards",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseLogIDs(args)
		if err != nil {
			return err
		}

		a, err := newApp("GetLog")
		if err != nil {
			return err
		}
		defer a.Close()

		l, err := a.Service().GetLog(ids[0])
		if err != nil {
			return err
		}
		if l == nil {
			fmt.Printf("No log with id %d.\n", ids[0])
			return nil
		}

		fmt.Printf("Log #%d\n", l.ID)
		fmt.Printf("  Operator:  %s\n", l.MyCallsign)
		fmt.Printf("  Station:   %s\n", l.StationCallsign)
		fmt.Printf("  When:      %s %s\n", l.QSODate, l.TimeOn)
		fmt.Printf("  Band/Mode: %s %s\n", l.Band, l.Mode)
		fmt.Printf("  RST:       sent %s, received %s\n", l.RSTSent, l.RSTRcvd)
		fmt.Printf("  QSL:       sent %s, received %s\n", l.QSLSent, l.QSLRcvd)
		if l.Comment != "" {
			fmt.Printf("  Comment:   %s\n", l.Comment)
		}

		cards, err := a.Service().CardsForLog(l.ID)
		if err != nil {
			return err
		}
		for _, c := range cards {
			fmt.Printf("  Card:      %s (%s, %s)\n", c.ID, c.Direction, c.CreatedAt.Format("2006-01-02"))
		}
		return nil
	},
}

var logDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a contact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseLogIDs(args)
		if err != nil {
			return err
		}

		a, err := newApp("DeleteLog")
		if err != nil {
			return err
		}
		defer a.Close()

		deleted, err := a.Service().DeleteLog(ids[0])
		if err != nil {
			return err
		}
		if !deleted {
			fmt.Printf("No log with id %d.\n", ids[0])
			return nil
		}
		fmt.Printf("Deleted log #%d\n", ids[0])
		return nil
	},
}

var logReorderCmd = &cobra.Command{
	Use:   "reorder",
	Short: "Renumber display order chronologically",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ReorderByTime")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Service().ReorderByTime(); err != nil {
			return err
		}
		fmt.Println("Logs reordered by date and time.")
		return nil
	},
}

// card command
var cardCmd = &cobra.Command{
	Use:   "card",
	Short: "Manage QSL cards",
}

var cardIssueCmd = &cobra.Command{
	Use:   "issue LOG_ID...",
	Short: "Issue cards for contacts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		direction, _ := cmd.Flags().GetString("direction")
		batch, _ := cmd.Flags().GetString("batch")

		ids, err := parseLogIDs(args)
		if err != nil {
			return err
		}

		a, err := newApp("IssueCards")
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Service().IssueCards(ids, strings.ToUpper(direction), qsl.BatchMode(batch))
		if err != nil {
			return err
		}

		for _, cardID := range result.CardIDs {
			fmt.Printf("Issued card %s\n", cardID)
		}
		if len(result.Issued) > 0 {
			fmt.Printf("Linked %d contact(s)\n", len(result.Issued))
		}
		if len(result.Skipped) > 0 {
			fmt.Printf("Skipped %d contact(s) already carrying a %s card\n", len(result.Skipped), strings.ToUpper(direction))
		}
		return nil
	},
}

var cardRecycleCmd = &cobra.Command{
	Use:   "recycle LOG_ID",
	Short: "Detach a contact's card and reset its flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		direction, _ := cmd.Flags().GetString("direction")

		ids, err := parseLogIDs(args)
		if err != nil {
			return err
		}

		a, err := newApp("RecycleCard")
		if err != nil {
			return err
		}
		defer a.Close()

		recycled, err := a.Service().RecycleCard(ids[0], strings.ToUpper(direction))
		if err != nil {
			return err
		}
		if !recycled {
			fmt.Printf("Log %d has no %s card.\n", ids[0], strings.ToUpper(direction))
			return nil
		}
		fmt.Printf("Recycled %s card for log %d\n", strings.ToUpper(direction), ids[0])
		return nil
	},
}

// lookup command
var lookupCmd = &cobra.Command{
	Use:   "lookup CARD_ID",
	Short: "List contacts linked to a card",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("LogsForCard")
		if err != nil {
			return err
		}
		defer a.Close()

		ids, err := a.Service().LogsForCard(args[0])
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Printf("No contacts linked to card %s.\n", args[0])
			return nil
		}
		for _, id := range ids {
			l, err := a.Service().GetLog(id)
			if err != nil {
				return err
			}
			if l == nil {
				continue
			}
			fmt.Printf("#%-5d %-10s %s %s  %-6s %-6s\n",
				l.ID, l.StationCallsign, l.QSODate, l.TimeOn, l.Band, l.Mode)
		}
		return nil
	},
}

// dedupe command
var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Find and merge duplicate contacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		listOnly, _ := cmd.Flags().GetBool("list")

		a, err := newApp("MergeDuplicates")
		if err != nil {
			return err
		}
		defer a.Close()

		if listOnly {
			clusters, err := a.Service().FindDuplicateClusters()
			if err != nil {
				return err
			}
			if len(clusters) == 0 {
				fmt.Println("No duplicates found.")
				return nil
			}
			for _, cluster := range clusters {
				parts := make([]string, len(cluster))
				for i, id := range cluster {
					parts[i] = strconv.FormatInt(id, 10)
				}
				fmt.Printf("Duplicate cluster: %s\n", strings.Join(parts, ", "))
			}
			return nil
		}

		merged, err := a.Service().MergeAllDuplicates()
		if err != nil {
			return err
		}
		if merged == 0 {
			fmt.Println("No duplicates found.")
			return nil
		}
		fmt.Printf("Merged %d duplicate cluster(s)\n", merged)
		return nil
	},
}

// import / export commands
var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import contacts from an ADIF file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ImportADIF")
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.ImportADIF(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d, merged %d, skipped %d duplicate(s)\n",
			result.Imported, result.Updated, result.Duplicates)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Export all contacts to an ADIF file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ExportADIF")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ExportADIF(args[0]); err != nil {
			return err
		}
		fmt.Printf("Exported logs to %s\n", args[0])
		return nil
	},
}

// stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "View logbook statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Stats")
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.Service().Stats()
		if err != nil {
			return err
		}

		fmt.Printf("Total logs:     %d\n", stats.TotalLogs)
		fmt.Printf("Sent cards:     %d\n", stats.SentCards)
		fmt.Printf("Received cards: %d\n", stats.ReceivedCards)
		if len(stats.Recent) > 0 {
			fmt.Println("\nRecent cards:")
			for _, act := range stats.Recent {
				kind := "received from"
				if act.Direction == model.DirectionTC {
					kind = "sent to"
				}
				fmt.Printf("  %s %s\n", kind, act.StationCallsign)
			}
		}
		return nil
	},
}

// reset command
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every card and reset all QSL flags",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		confirm, err := readSecret(fmt.Sprintf("Type the primary callsign (%s) to confirm: ", cfg.PrimaryCallsign))
		if err != nil {
			return err
		}
		if !strings.EqualFold(strings.TrimSpace(confirm), cfg.PrimaryCallsign) {
			return fmt.Errorf("confirmation did not match, aborting")
		}

		a, err := app.NewApp(cfg, "ResetAll")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Service().ResetAll(); err != nil {
			return err
		}
		fmt.Println("All card data deleted and QSL flags reset.")
		return nil
	},
}

// archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Upload an encrypted database snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Archive")
		if err != nil {
			return err
		}
		defer a.Close()

		name, err := a.Archive()
		if err != nil {
			return err
		}
		fmt.Printf("Archived snapshot %s\n", name)
		return nil
	},
}

var archiveSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Generate the archive encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ArchiveSetup")
		if err != nil {
			return err
		}
		defer a.Close()

		if a.EncryptionConfigured() {
			return fmt.Errorf("archive encryption already configured")
		}

		passphrase, err := readSecret("Passphrase for the archive private key: ")
		if err != nil {
			return err
		}
		again, err := readSecret("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != again {
			return fmt.Errorf("passphrases do not match")
		}

		if err := a.SetupEncryption(passphrase); err != nil {
			return err
		}
		fmt.Println("Archive encryption configured.")
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().String("callsign", "", "Primary operator callsign")
	configCmd.AddCommand(configListCmd)

	// callsign subcommands
	callsignCmd.AddCommand(callsignAddCmd)
	callsignCmd.AddCommand(callsignRemoveCmd)
	callsignCmd.AddCommand(callsignListCmd)

	// log subcommands
	logCmd.AddCommand(logAddCmd)
	logAddCmd.Flags().String("station", "", "Station callsign (required)")
	logAddCmd.Flags().String("date", "", "QSO date as YYYYMMDD (default: today, UTC)")
	logAddCmd.Flags().String("time", "", "Time on as HHMMSS (default: now, UTC)")
	logAddCmd.Flags().String("band", "", "Band (e.g. 20m)")
	logAddCmd.Flags().String("band-rx", "", "Receive band for split operation")
	logAddCmd.Flags().String("freq", "", "Frequency in MHz")
	logAddCmd.Flags().String("freq-rx", "", "Receive frequency in MHz")
	logAddCmd.Flags().String("mode", "", "Mode (e.g. SSB, CW, FT8)")
	logAddCmd.Flags().String("submode", "", "Submode")
	logAddCmd.Flags().String("rst-sent", "", "Signal report sent")
	logAddCmd.Flags().String("rst-rcvd", "", "Signal report received")
	logAddCmd.Flags().String("comment", "", "Comment")
	logAddCmd.Flags().String("sat-name", "", "Satellite name")
	logAddCmd.Flags().String("prop-mode", "", "Propagation mode")
	logCmd.AddCommand(logListCmd)
	logListCmd.Flags().String("my", "", "Filter by operator callsign (substring)")
	logListCmd.Flags().String("station", "", "Filter by station callsign (substring)")
	logListCmd.Flags().String("mode", "", "Filter by exact mode")
	logListCmd.Flags().String("card", "", "Filter by card id (substring)")
	logCmd.AddCommand(logShowCmd)
	logCmd.AddCommand(logDeleteCmd)
	logCmd.AddCommand(logReorderCmd)

	// card subcommands
	cardCmd.AddCommand(cardIssueCmd)
	cardIssueCmd.Flags().String("direction", "", "Card direction: RC (received) or TC (sent)")
	cardIssueCmd.Flags().String("batch", "single", "Batch mode: single (one card for all) or multi (one card each)")
	cardCmd.AddCommand(cardRecycleCmd)
	cardRecycleCmd.Flags().String("direction", "", "Card direction: RC or TC")

	// archive subcommands
	archiveCmd.AddCommand(archiveSetupCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(callsignCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(cardCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(dedupeCmd)
	dedupeCmd.Flags().Bool("list", false, "List duplicate clusters without merging")
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(archiveCmd)
}
