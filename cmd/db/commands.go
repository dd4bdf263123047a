package db

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/foliodb/foliodb/folio"
	"github.com/foliodb/foliodb/lib/filter"
	"github.com/foliodb/foliodb/lib/haystack"
)

var (
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints store configuration and statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := store.Config()
			fmt.Println(cfg.String())
			fmt.Printf("  %-18s: %d\n", "Records", store.ReadCount(filter.All(), folio.ReadOpts{}))
			fmt.Printf("  %-18s: %d\n", "Version", store.CurVer())
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [id]",
		Short: "Reads a record by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := store.ReadByID(haystack.NewRef(args[0]))
			if err != nil {
				return err
			}
			return printRec(rec)
		},
	}
	readCmd = &cobra.Command{
		Use:   "read [predicate]",
		Short: "Reads records by predicate (a tag name, or tag=value)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			trash, _ := cmd.Flags().GetBool("trash")
			limit, _ := cmd.Flags().GetInt("limit")
			recs := store.ReadAll(parseFilter(args[0]), folio.ReadOpts{
				Limit: limit,
				Trash: trash,
				Sort:  true,
			})
			for _, rec := range recs {
				if err := printRec(rec); err != nil {
					return err
				}
			}
			fmt.Printf("%d records\n", len(recs))
			return nil
		},
	}
	countCmd = &cobra.Command{
		Use:   "count [predicate]",
		Short: "Counts records by predicate (a tag name, or tag=value)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			trash, _ := cmd.Flags().GetBool("trash")
			n := store.ReadCount(parseFilter(args[0]), folio.ReadOpts{Trash: trash})
			fmt.Println(n)
			return nil
		},
	}
	addCmd = &cobra.Command{
		Use:   "add [tag[=value]...]",
		Short: "Adds a record; bare tags become markers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			changes, err := parseTags(args)
			if err != nil {
				return err
			}
			rec, err := store.Commit(folio.NewAddDiff(changes, nil), nil)
			if err != nil {
				return err
			}
			fmt.Printf("added %v\n", rec.ID())
			return printRec(rec)
		},
	}
	setCmd = &cobra.Command{
		Use:   "set [id] [tag[=value]...]",
		Short: "Updates a record; a trailing dash (tag-) deletes the tag",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := store.ReadByID(haystack.NewRef(args[0]))
			if err != nil {
				return err
			}
			changes, err := parseTags(args[1:])
			if err != nil {
				return err
			}
			rec, err = store.Commit(folio.NewDiff(rec, changes, 0), nil)
			if err != nil {
				return err
			}
			return printRec(rec)
		},
	}
	removeCmd = &cobra.Command{
		Use:   "remove [id]",
		Short: "Removes a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := store.ReadByID(haystack.NewRef(args[0]))
			if err != nil {
				return err
			}
			if _, err := store.Commit(folio.NewRemoveDiff(rec), nil); err != nil {
				return err
			}
			fmt.Println("removed successfully")
			return nil
		},
	}
)

func init() {
	for _, c := range []*cobra.Command{readCmd, countCmd} {
		c.Flags().Bool("trash", false, "include soft-deleted records")
	}
	readCmd.Flags().Int("limit", folio.DefaultReadLimit, "maximum number of records")
}

// printRec writes the record in its stored encoding.
func printRec(rec *haystack.Dict) error {
	enc, err := store.Serializer().Serialize(rec)
	if err != nil {
		return err
	}
	fmt.Println(string(enc))
	return nil
}

// parseFilter turns a command argument into a predicate: "tag" becomes a
// has-filter, "tag=value" an equality filter.
func parseFilter(arg string) filter.Filter {
	if name, val, ok := strings.Cut(arg, "="); ok {
		return filter.Eq(name, parseVal(val))
	}
	return filter.Has(arg)
}

// parseTags builds a change set from tag arguments: "name" (marker),
// "name=value" and "name-" (remove sentinel).
func parseTags(args []string) (*haystack.Dict, error) {
	b := haystack.NewDictBuilder()
	for _, arg := range args {
		name, val, hasVal := strings.Cut(arg, "=")
		if name == "" {
			return nil, fmt.Errorf("invalid tag argument %q", arg)
		}
		switch {
		case hasVal:
			b.Set(name, parseVal(val))
		case strings.HasSuffix(name, "-"):
			b.Set(name[:len(name)-1], haystack.Rm)
		default:
			b.SetMarker(name)
		}
	}
	return b.ToDict(), nil
}

// parseVal guesses the value kind: bool, number, ref (@id), else string.
func parseVal(s string) haystack.Val {
	switch s {
	case "true":
		return haystack.Bool(true)
	case "false":
		return haystack.Bool(false)
	}
	if strings.HasPrefix(s, "@") {
		return haystack.NewRef(s[1:])
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return haystack.Num(n)
	}
	return haystack.Str(s)
}
