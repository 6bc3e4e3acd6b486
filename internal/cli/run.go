package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/weave/examples/userservice"
)

type runOptions struct {
	id     int
	repeat int
}

func (a *App) newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Exercise the cached user service",
		Long: `Call GetUser repeatedly, update the user, then read it again.

Cached reads return the same random token and do not increase the run count.

Examples:
  weavedemo run --repeat 3
  weavedemo run --provider distributed --codec cbor --log slog --level debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), opts)
		},
	}

	cmd.Flags().IntVar(&opts.id, "id", 1, "user id to read (1 and 2 exist)")
	cmd.Flags().IntVar(&opts.repeat, "repeat", 2, "reads before and after the update")
	return cmd
}

func (a *App) run(ctx context.Context, opts *runOptions) error {
	if opts.repeat < 1 {
		return fmt.Errorf("repeat must be at least 1")
	}
	d, err := a.flags.build(a.stderr)
	if err != nil {
		return fmt.Errorf("wire service: %w", err)
	}
	defer func() { _ = d.Close(context.Background()) }()

	read := func() (*userservice.User, error) {
		for i := 0; i < opts.repeat; i++ {
			u, err := d.svc.GetUser(ctx, opts.id)
			if err != nil {
				return nil, err
			}
			if u == nil {
				_, _ = fmt.Fprintf(a.stdout, "GetUser(%d) -> <nil>  runs=%d\n", opts.id, d.store.Runs())
				continue
			}
			_, _ = fmt.Fprintf(a.stdout, "GetUser(%d) -> %s token=%s  runs=%d\n", opts.id, u.Name, u.RandomToken, d.store.Runs())
			if i == opts.repeat-1 {
				return u, nil
			}
		}
		return nil, nil
	}

	u, err := read()
	if err != nil {
		return err
	}
	if u == nil {
		return nil
	}

	ok, err := d.svc.UpdateUser(ctx, u)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.stdout, "UpdateUser(%d) -> %t  runs=%d\n", u.ID, ok, d.store.Runs())

	if _, err := read(); err != nil {
		return err
	}

	key := fmt.Sprintf("user-%d", opts.id)
	_, cached := d.manager.Get(ctx, key)
	_, _ = fmt.Fprintf(a.stdout, "cached %s=%t\n", d.manager.FullKey(key), cached)
	return nil
}
