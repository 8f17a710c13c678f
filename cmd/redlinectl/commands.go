package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"redline/internal/auth"
	"redline/internal/domain/models/docsystem"
	models "redline/internal/domain/models/suggestion"
	"redline/internal/mirror"
	"redline/internal/service/anchor"
	"redline/internal/service/conflict"

	"github.com/spf13/cobra"
)

// --- anchor ---

var anchorCmd = &cobra.Command{
	Use:   "anchor",
	Short: "Resolve anchor text against a local document body",
	Long: `Resolve anchor text against a local document body and print the
verified range with its context snapshot.

Examples:
  redlinectl anchor --body chapter.txt --text "accross"
  redlinectl anchor --body chapter.txt --text "the" --hint 120`,
	RunE: func(cmd *cobra.Command, args []string) error {
		bodyPath, _ := cmd.Flags().GetString("body")
		text, _ := cmd.Flags().GetString("text")
		hintValue, _ := cmd.Flags().GetInt("hint")

		if text == "" {
			return errors.New("--text is required")
		}
		body, err := readInput(cmd, bodyPath)
		if err != nil {
			return err
		}
		engine, err := loadEngine()
		if err != nil {
			return err
		}

		var hint *int
		if hintValue >= 0 {
			hint = &hintValue
		}
		a, err := anchor.NewResolver(engine).Anchor(body, text, hint)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), a)
	},
}

// --- conflicts ---

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Rank a local set of suggestions for display",
	Long: `Validate a JSON array of suggestions against a local body, detect
overlaps and print the display order.

Examples:
  redlinectl conflicts --body chapter.txt --suggestions pending.json
  redlinectl conflicts --body chapter.txt --suggestions pending.json --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		bodyPath, _ := cmd.Flags().GetString("body")
		suggestionsPath, _ := cmd.Flags().GetString("suggestions")
		asJSON, _ := cmd.Flags().GetBool("json")

		if suggestionsPath == "" {
			return errors.New("--suggestions is required")
		}
		body, err := readInput(cmd, bodyPath)
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(suggestionsPath)
		if err != nil {
			return fmt.Errorf("reading suggestions: %w", err)
		}
		var suggestions []models.Suggestion
		if err := json.Unmarshal(raw, &suggestions); err != nil {
			return fmt.Errorf("decoding suggestions: %w", err)
		}

		engine, err := loadEngine()
		if err != nil {
			return err
		}
		detector, err := conflict.NewDetector(engine)
		if err != nil {
			return err
		}

		display, conflicts := detector.Resolve(suggestions, body)
		if asJSON {
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"suggestions": display,
				"conflicts":   conflicts,
			})
		}
		printDisplayTable(cmd.OutOrStdout(), display)
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d conflicts\n", len(conflicts))
		return nil
	},
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list <document-id>",
	Short: "Show the display list of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		versionStr, _ := cmd.Flags().GetString("version")
		asJSON, _ := cmd.Flags().GetBool("json")

		var version *docsystem.Version
		if versionStr != "" {
			v, err := docsystem.ParseVersion(versionStr)
			if err != nil {
				return err
			}
			version = &v
		}

		res, err := newAPIClient().ListSuggestions(cmd.Context(), args[0], version)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), res)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "document %s at version %s\n\n", res.DocumentID, res.Version)
		printDisplayTable(cmd.OutOrStdout(), res.Suggestions)
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d conflicts\n", len(res.Conflicts))
		return nil
	},
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats <document-id>",
	Short: "Summarise suggestion statuses for a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m := mirror.New(mirror.WithWindow(0), mirror.WithLogger(newLogger()))
		defer m.Close()

		if err := newAPIClient().LoadMirror(cmd.Context(), m, args[0], nil); err != nil {
			return err
		}
		printStats(cmd.OutOrStdout(), m.Stats())
		return nil
	},
}

// --- review ---

var reviewCmd = &cobra.Command{
	Use:   "review <document-id>",
	Short: "Accept, reject or delete suggestions in one batch",
	Long: `Queue status changes locally and commit them to the server as one batch.
The last change given for a suggestion wins.

Examples:
  redlinectl review 0b6c... --accept s1,s2 --reject s3
  redlinectl review 0b6c... --delete s4`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		accept, _ := cmd.Flags().GetStringSlice("accept")
		reject, _ := cmd.Flags().GetStringSlice("reject")
		del, _ := cmd.Flags().GetStringSlice("delete")
		if len(accept)+len(reject)+len(del) == 0 {
			return errors.New("one of --accept, --reject or --delete is required")
		}

		ctx := cmd.Context()
		documentID := args[0]
		api := newAPIClient()
		logger := newLogger()

		m := mirror.New(
			mirror.WithWindow(0),
			mirror.WithLogger(logger),
			mirror.WithFlushHook(api.StatusForwarder(ctx, documentID, logger)),
		)
		defer m.Close()

		if err := api.LoadMirror(ctx, m, documentID, nil); err != nil {
			return err
		}

		queue := func(ids []string, apply func(string) error) error {
			for _, id := range ids {
				if err := apply(id); err != nil {
					return fmt.Errorf("%s: %w", id, err)
				}
			}
			return nil
		}
		if err := queue(accept, m.Accept); err != nil {
			return err
		}
		if err := queue(reject, m.Reject); err != nil {
			return err
		}
		if err := queue(del, m.Delete); err != nil {
			return err
		}

		changes := m.Flush()
		for _, ch := range changes {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s -> %s\n", ch.ID, ch.From, ch.To)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "committed %d changes\n", len(changes))
		return nil
	},
}

// --- prune ---

var pruneCmd = &cobra.Command{
	Use:   "prune <document-id>",
	Short: "Delete expired pending suggestions of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := newAPIClient().Prune(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pruned %d suggestions\n", n)
		return nil
	},
}

// --- token ---

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development token signed with JWT_SECRET",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, _ := cmd.Flags().GetString("secret")
		tenant, _ := cmd.Flags().GetString("tenant")
		subject, _ := cmd.Flags().GetString("subject")
		role, _ := cmd.Flags().GetString("role")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		if secret == "" {
			return errors.New("--secret or JWT_SECRET is required")
		}
		signed, err := auth.IssueToken([]byte(secret), tenant, subject, role, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), signed)
		return nil
	},
}

func init() {
	anchorCmd.Flags().String("body", "-", "document body file (- for stdin)")
	anchorCmd.Flags().String("text", "", "anchor text to locate")
	anchorCmd.Flags().Int("hint", -1, "approximate start offset in characters")

	conflictsCmd.Flags().String("body", "-", "document body file (- for stdin)")
	conflictsCmd.Flags().String("suggestions", "", "JSON file holding an array of suggestions")
	conflictsCmd.Flags().Bool("json", false, "print JSON instead of a table")

	listCmd.Flags().String("version", "", "document version as major.minor (default current)")
	listCmd.Flags().Bool("json", false, "print JSON instead of a table")

	reviewCmd.Flags().StringSlice("accept", nil, "suggestion IDs to accept")
	reviewCmd.Flags().StringSlice("reject", nil, "suggestion IDs to reject")
	reviewCmd.Flags().StringSlice("delete", nil, "suggestion IDs to delete")

	tokenCmd.Flags().String("secret", os.Getenv("JWT_SECRET"), "HS256 signing secret")
	tokenCmd.Flags().String("tenant", "demo-tenant", "tenant_id claim")
	tokenCmd.Flags().String("subject", "cli", "sub claim")
	tokenCmd.Flags().String("role", "editor", "role claim")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
}

// readInput reads path, or the command's stdin when path is "-".
func readInput(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}
	return string(data), nil
}
