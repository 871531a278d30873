package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/blog-platform/internal/platform/auth"
	"github.com/example/blog-platform/internal/platform/db"
	"github.com/example/blog-platform/internal/platform/logging"
	"github.com/example/blog-platform/services/blog/internal/comments"
	"github.com/example/blog-platform/services/blog/internal/docstore"
	"github.com/example/blog-platform/services/blog/internal/events"
	"github.com/example/blog-platform/services/blog/internal/posts"
	"github.com/example/blog-platform/services/blog/internal/users"
)

// opener returns a store and the func that releases it.
type opener func(ctx context.Context, dbURL string) (docstore.Store, func(), error)

type options struct {
	dbURL    string
	logLevel string
	timeout  time.Duration
	open     opener
}

func (o *options) openStore(ctx context.Context) (docstore.Store, func(), error) {
	return o.open(ctx, o.dbURL)
}

func newRootCmd(open opener) *cobra.Command {
	_ = godotenv.Load()
	o := &options{open: open}

	root := &cobra.Command{
		Use:           "blogctl",
		Short:         "Operator tool for the blog service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&o.dbURL, "url", os.Getenv("DATABASE_URL"), "Postgres connection URL")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "info", "Log level")
	root.PersistentFlags().DurationVar(&o.timeout, "timeout", 5*time.Minute, "Overall command timeout")

	root.AddCommand(newMigrateCmd(o), newReconcileCmd(o), newUserCmd(o), newTokenCmd())
	return root
}

func openPostgres(ctx context.Context, dbURL string) (docstore.Store, func(), error) {
	if strings.TrimSpace(dbURL) == "" {
		return nil, nil, errors.New("--url or DATABASE_URL is required")
	}
	pool, err := db.Open(ctx, dbURL, db.PoolOptions{MaxConns: 4})
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	pg := docstore.NewPostgresStore(pool)
	if err := pg.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return pg, pool.Close, nil
}

func newMigrateCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the document table and indexes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
			defer cancel()
			_, closeStore, err := o.openStore(ctx)
			if err != nil {
				return err
			}
			closeStore()
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

func newReconcileCmd(o *options) *cobra.Command {
	var postID string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Repair reply links, orphaned comments and comment counters",
		Long: `Rebuilds every comment's replies list from the parent field, removes
subtrees whose parent no longer exists and recounts the post comment counter.
Run it when write traffic is low.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := logging.New(o.logLevel)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
			defer cancel()
			store, closeStore, err := o.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			registry := posts.NewRegistry(store, log)
			m := comments.NewManager(comments.Options{
				Store:  store,
				Posts:  registry,
				Users:  users.NewDirectory(store),
				Events: events.Nop{},
				Logger: log,
			})
			rec := comments.NewReconciler(m, registry)

			var reports []comments.Report
			if postID != "" {
				rep, err := rec.Reconcile(ctx, postID)
				if err != nil {
					return err
				}
				reports = append(reports, rep)
			} else if reports, err = rec.ReconcileAll(ctx); err != nil {
				return err
			}

			changed := 0
			for _, rep := range reports {
				if !rep.Changed() {
					continue
				}
				changed++
				log.Info("post repaired", zap.Any("report", rep))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked %d posts, repaired %d\n", len(reports), changed)
			return nil
		},
	}
	cmd.Flags().StringVar(&postID, "post", "", "Only reconcile this post")
	return cmd
}

func newUserCmd(o *options) *cobra.Command {
	var p users.Profile
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Create or update the display profile of a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(p.ID) == "" {
				return errors.New("--id is required")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
			defer cancel()
			store, closeStore, err := o.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := users.NewDirectory(store).Put(ctx, p); err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(p)
		},
	}
	cmd.Flags().StringVar(&p.ID, "id", "", "User id (token subject)")
	cmd.Flags().StringVar(&p.Username, "username", "", "Display name")
	cmd.Flags().StringVar(&p.Avatar, "avatar", "", "Avatar URL")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an HS256 bearer token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
			if secret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			if strings.TrimSpace(subject) == "" {
				return errors.New("--sub is required")
			}
			tok, err := auth.Sign([]byte(secret), subject, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "User id")
	cmd.Flags().StringVar(&role, "role", "", "Role claim, e.g. admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
