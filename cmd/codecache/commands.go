package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/codecache/executor/php"
)

func newSetCmd(st *rootState) *cobra.Command {
	var (
		tags     []string
		lifetime string
		file     string
	)
	cmd := &cobra.Command{
		Use:   "set <id> [source]",
		Short: "Store source code under id",
		Long:  "Store source code under id. The source is taken from the argument, --file, or stdin.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lt, err := parseLifetime(lifetime)
			if err != nil {
				return err
			}
			src, err := readSource(cmd, args[1:], file)
			if err != nil {
				return err
			}
			return st.app.fe.Set(cmd.Context(), args[0], src, tags, lt)
		},
	}
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "tag the entry (repeatable)")
	cmd.Flags().StringVarP(&lifetime, "lifetime", "l", "default", `"default", "unlimited" or a duration`)
	cmd.Flags().StringVarP(&file, "file", "f", "", "read source from file")
	return cmd
}

func readSource(cmd *cobra.Command, rest []string, file string) (string, error) {
	switch {
	case len(rest) == 1:
		return rest[0], nil
	case file != "":
		b, err := os.ReadFile(file)
		return string(b), err
	default:
		b, err := io.ReadAll(cmd.InOrStdin())
		return string(b), err
	}
}

func newGetCmd(st *rootState, wrapped bool) *cobra.Command {
	use, short := "get <id>", "Print the source code stored under id"
	if wrapped {
		use, short = "get-wrapped <id>", "Print the stored payload including the envelope"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			get := st.app.fe.Get
			if wrapped {
				get = st.app.fe.GetWrapped
			}
			s, ok, err := get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s: %w", args[0], errNotFound)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), s)
			return err
		},
	}
}

func newRequireCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "require <id>",
		Short: "Execute the entry once with the configured executor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := st.app.fe.RequireOnce(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), v)
		},
	}
}

func newRunCmd(st *rootState) *cobra.Command {
	var tags []string
	cmd := &cobra.Command{
		Use:   "run <id> <file>",
		Short: "Store a file under id and execute it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			if err := st.app.fe.Set(cmd.Context(), args[0], string(src), tags, 0); err != nil {
				return err
			}
			v, err := st.app.fe.RequireOnce(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), v)
		},
	}
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "tag the entry (repeatable)")
	return cmd
}

func printResult(w io.Writer, v any) error {
	switch r := v.(type) {
	case php.Result:
		_, err := w.Write(r.Stdout)
		return err
	case nil:
		return nil
	default:
		_, err := fmt.Fprintln(w, r)
		return err
	}
}

func newHasCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "has <id>",
		Short: "Exit 0 if id is cached",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := st.app.fe.Has(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s: %w", args[0], errNotFound)
			}
			return nil
		},
	}
}

func newRemoveCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove the entry stored under id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := st.app.fe.Remove(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s: %w", args[0], errNotFound)
			}
			return nil
		},
	}
}

func newFlushCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Remove every entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return st.app.fe.Flush(cmd.Context())
		},
	}
}

func newFlushTagCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "flush-tag <tag>",
		Short: "Remove every entry carrying tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.app.fe.FlushByTag(cmd.Context(), args[0])
		},
	}
}
