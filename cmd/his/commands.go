package his

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/foliodb/foliodb/folio/his"
	"github.com/foliodb/foliodb/lib/haystack"
)

var (
	readCmd = &cobra.Command{
		Use:   "read [id]",
		Short: "Reads the time series of a historized point",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			span, err := spanFromFlags(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")

			n := 0
			err = hisStore.Read(haystack.NewRef(args[0]), span, his.ReadOpts{Limit: limit},
				func(it his.Item) bool {
					fmt.Printf("%s  %v\n", it.TS, it.Val)
					n++
					return true
				})
			if err != nil {
				return err
			}
			fmt.Printf("%d items\n", n)
			return nil
		},
	}
	writeCmd = &cobra.Command{
		Use:   "write [id] [ts] [value]",
		Short: "Writes one sample (ts in RFC 3339 or epoch milliseconds)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := parseTS(args[1])
			if err != nil {
				return err
			}
			val, err := parseSample(args[2])
			if err != nil {
				return err
			}
			n, err := hisStore.Write(haystack.NewRef(args[0]),
				[]his.Item{{TS: ts, Val: val}}, his.WriteOpts{}, nil)
			if err != nil {
				return err
			}
			fmt.Printf("wrote %d items\n", n)
			return nil
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear [id]",
		Short: "Clears the whole series, or a span given by --start/--end",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			span, err := spanFromFlags(cmd)
			if err != nil {
				return err
			}
			opts := his.WriteOpts{ClearAll: span == nil, Clear: span}
			if _, err := hisStore.Write(haystack.NewRef(args[0]), nil, opts, nil); err != nil {
				return err
			}
			fmt.Println("cleared successfully")
			return nil
		},
	}
)

func init() {
	for _, c := range []*cobra.Command{readCmd, clearCmd} {
		c.Flags().String("start", "", "span start (RFC 3339 or epoch milliseconds)")
		c.Flags().String("end", "", "span end, exclusive (RFC 3339 or epoch milliseconds)")
	}
	readCmd.Flags().Int("limit", 0, "maximum number of items")
}

// spanFromFlags builds the optional span from --start/--end; both must be
// given together.
func spanFromFlags(cmd *cobra.Command) (*his.Span, error) {
	startStr, _ := cmd.Flags().GetString("start")
	endStr, _ := cmd.Flags().GetString("end")
	if startStr == "" && endStr == "" {
		return nil, nil
	}
	if startStr == "" || endStr == "" {
		return nil, fmt.Errorf("start and end must be given together")
	}
	start, err := parseTS(startStr)
	if err != nil {
		return nil, err
	}
	end, err := parseTS(endStr)
	if err != nil {
		return nil, err
	}
	return &his.Span{Start: start, End: end}, nil
}

func parseTS(s string) (haystack.DateTime, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return haystack.FromUnixMilli(ms, "UTC"), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return haystack.DateTime{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return haystack.NewDateTime(t), nil
}

func parseSample(s string) (haystack.Val, error) {
	switch s {
	case "true":
		return haystack.Bool(true), nil
	case "false":
		return haystack.Bool(false), nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return haystack.Num(n), nil
	}
	return haystack.Str(s), nil
}
