package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"example.com/notes-sync/internal/localcache"
	"example.com/notes-sync/internal/notes"
	"example.com/notes-sync/internal/stringsx"
)

const titleWidth = 40

func parseIndex(arg string) (int, error) {
	i, err := strconv.Atoi(arg)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid index %q", arg)
	}
	return i, nil
}

func newAddCmd(a *app) *cobra.Command {
	var title, content, tags string

	cmd := &cobra.Command{
		Use:     "add",
		Aliases: []string{"a"},
		Short:   "Add a note",
		Example: `  notes add --title "groceries" --content "milk, eggs" --tags home`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if stringsx.IsEmpty(title) && stringsx.IsEmpty(content) {
				return errors.New("a note needs a title or content")
			}
			if _, err := a.cache.Create(cmd.Context(), title, content, stringsx.SplitTags(tags)); err != nil {
				return errors.Wrap(err, "adding note")
			}
			a.syncAfter(cmd)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&title, "title", "t", "", "note title")
	f.StringVarP(&content, "content", "c", "", "note content")
	f.StringVar(&tags, "tags", "", "comma separated local tags")
	return cmd
}

func newEditCmd(a *app) *cobra.Command {
	var title, content string

	cmd := &cobra.Command{
		Use:   "edit INDEX",
		Short: "Change the title or content of a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			all := a.cache.Snapshot()
			if idx < 0 || idx >= len(all) {
				return errors.Wrapf(localcache.ErrIndexOutOfRange, "edit %d", idx)
			}
			current := all[idx]
			if !cmd.Flags().Changed("title") {
				title = current.Title
			}
			if !cmd.Flags().Changed("content") {
				content = current.Content
			}

			changed, err := a.cache.Edit(cmd.Context(), idx, title, content)
			if err != nil {
				return errors.Wrapf(err, "edit %d", idx)
			}
			if !changed {
				printStatus(cmd.OutOrStdout(), "Nothing to change")
				return nil
			}
			a.syncAfter(cmd)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&title, "title", "t", "", "new title")
	f.StringVarP(&content, "content", "c", "", "new content")
	return cmd
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm INDEX",
		Aliases: []string{"remove", "delete"},
		Short:   "Delete a note",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			all := a.cache.Snapshot()
			if idx < 0 || idx >= len(all) {
				return errors.Wrapf(localcache.ErrIndexOutOfRange, "delete %d", idx)
			}
			if err := a.cache.Delete(cmd.Context(), idx); err != nil {
				return errors.Wrapf(err, "delete %d", idx)
			}
			// unsynced notes are only dropped locally
			if all[idx].Synced() {
				a.syncAfter(cmd)
			}
			return nil
		},
	}
}

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "sync",
		Aliases: []string{"s"},
		Short:   "Send local changes to the server and fetch its notes",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.client.Sync(cmd.Context(), a.cache)
			printStatus(cmd.OutOrStdout(), res.Status)
			if err != nil {
				return errors.Wrap(err, "syncing")
			}
			return nil
		},
	}
}

type listedNote struct {
	Index      int `json:"index" yaml:"index"`
	notes.Note `yaml:",inline"`
}

func newListCmd(a *app) *cobra.Command {
	var output string
	var all bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Sync, then list notes newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.offline {
				// status goes to stderr so stdout stays parseable
				res, _ := a.client.Sync(cmd.Context(), a.cache)
				printStatus(cmd.ErrOrStderr(), res.Status)
			}

			var rows []listedNote
			if all {
				for i, n := range a.cache.Snapshot() {
					rows = append(rows, listedNote{Index: i, Note: n})
				}
			} else {
				for i, n := range a.cache.Visible() {
					rows = append(rows, listedNote{Index: i, Note: n})
				}
			}
			return render(cmd.OutOrStdout(), output, rows)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&output, "output", "o", "table", "output format: table, yaml or json")
	f.BoolVar(&all, "all", false, "include notes pending deletion")
	return cmd
}

func render(w io.Writer, format string, rows []listedNote) error {
	if rows == nil {
		rows = []listedNote{}
	}
	switch format {
	case "table":
		return renderTable(w, rows)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return errors.Wrap(err, "encoding yaml")
		}
		return enc.Close()
	default:
		return errors.Errorf("unknown output format %q", format)
	}
}

func state(op notes.Operation) string {
	switch op {
	case notes.OpCreate:
		return "new"
	case notes.OpUpdate:
		return "modified"
	case notes.OpDelete:
		return "deleted"
	case notes.OpNone:
		return "synced"
	default:
		return strings.ToLower(op.String())
	}
}

func renderTable(w io.Writer, rows []listedNote) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tID\tSTATE\tCHANGED\tTITLE\tTAGS")
	for _, r := range rows {
		id := "-"
		if r.Synced() {
			id = strconv.FormatInt(r.ID, 10)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			r.Index,
			id,
			state(r.Operation),
			r.ChangedAt().Format(time.DateTime),
			stringsx.Clip(stringsx.FirstLine(r.Title), titleWidth),
			strings.Join(r.Tags, ","),
		)
	}
	return tw.Flush()
}
