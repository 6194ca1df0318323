// Package main: Operasyon komutları.
//
// serve dışındaki komutlar aynı config ve veritabanını kullanır; kısa ömürlü
// işler için sunucu başlatmaya gerek kalmaz.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/akinalp/opti/pkg/metrics"
	"github.com/akinalp/opti/services"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			a.close()
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

// newFlushCommand, reconciler'ı bir kez çalıştırır. Redis bus ile çalışan
// sunucular durdurulduğunda side-table'da kalan bildirimleri yazmak için.
func newFlushCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Flush pending read receipts to the database once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			b, err := initBus(cmd.Context(), a.cfg.Bus, a.log.Named("bus"))
			if err != nil {
				return err
			}
			defer b.Close()

			repos := initRepositories(a.db.Conn)
			reconciler := services.NewReceiptReconciler(
				a.db.Conn,
				repos.Message,
				b,
				a.cfg.Chat.ReceiptFlushInterval,
				metrics.New(),
				a.log.Named("reconciler"),
			)

			res, err := reconciler.FlushOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "readers=%d pending=%d marked=%d\n", res.Readers, res.Pending, res.Marked)
			return nil
		},
	}
}

func newTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a session token for an existing user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIdentity(func(identity services.IdentityService) error {
				token, err := identity.IssueToken(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
}

func newUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	create := &cobra.Command{
		Use:   "create <nickname>",
		Short: "Create a user and print its id and token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIdentity(func(identity services.IdentityService) error {
				user, err := identity.CreateUser(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				token, err := identity.IssueToken(user.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "id=%s\ntoken=%s\n", user.ID, token)
				return nil
			})
		},
	}

	var unblock bool
	block := &cobra.Command{
		Use:   "block <user-id>",
		Short: "Block a user (or lift the block with --unblock)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIdentity(func(identity services.IdentityService) error {
				if err := identity.SetBlocked(cmd.Context(), args[0], !unblock); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "user %s blocked=%t\n", args[0], !unblock)
				return nil
			})
		},
	}
	block.Flags().BoolVar(&unblock, "unblock", false, "lift an existing block")

	cmd.AddCommand(create, block)
	return cmd
}

// withIdentity, komut süresince yaşayan bir IdentityService açar.
func withIdentity(fn func(services.IdentityService) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	repos := initRepositories(a.db.Conn)
	identity := services.NewIdentityService(
		repos.User,
		a.cfg.JWT.Secret,
		a.cfg.JWT.Expiry,
		a.cfg.Chat.CounterpartyCacheTTL,
		a.log.Named("identity"),
	)
	defer identity.Close()

	if err := fn(identity); err != nil {
		a.log.Debug("command failed", zap.Error(err))
		return err
	}
	return nil
}
