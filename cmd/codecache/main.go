// Command codecache drives a code cache from the shell.
package main

import (
	"context"
	"io"
	"os"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// run executes one command line and closes whatever it opened.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cmd, st := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if st.app != nil {
		if cerr := st.app.close(context.WithoutCancel(ctx)); err == nil {
			err = cerr
		}
	}
	return err
}
