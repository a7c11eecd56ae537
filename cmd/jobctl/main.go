// Command jobctl is the out-of-core CLI collaborator §6 describes: list,
// print, and retry jobs against a service's namespace in the store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"joblifecycle/internal/config"
	"joblifecycle/internal/idgen"
	"joblifecycle/internal/jobs"
	"joblifecycle/internal/store"
)

var (
	serviceName string
	postgresDSN string
	redisAddr   string
)

func main() {
	root := &cobra.Command{
		Use:   "jobctl",
		Short: "Inspect and retry jobs in a service's namespace",
	}
	root.PersistentFlags().StringVar(&serviceName, "service", "", "service namespace (required)")
	root.PersistentFlags().StringVar(&postgresDSN, "postgres-dsn", "", "override POSTGRES_DSN")
	root.PersistentFlags().StringVar(&redisAddr, "redis-addr", "", "override REDIS_ADDR")
	_ = root.MarkPersistentFlagRequired("service")

	root.AddCommand(listCmd(), printCmd(), retryCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context) (*store.Postgres, error) {
	cfg := config.Load()
	dsn := cfg.PostgresDSN
	if postgresDSN != "" {
		dsn = postgresDSN
	}
	addr := cfg.RedisAddr
	if redisAddr != "" {
		addr = redisAddr
	}
	notifier := store.NewRedisNotifier(redis.NewClient(&redis.Options{Addr: addr}))
	return store.NewPostgres(ctx, dsn, notifier)
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List job keys currently pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			res, err := st.Get(ctx, store.PendingPath(serviceName))
			if err != nil && err != store.ErrNotFound {
				return err
			}
			for key := range res.Data {
				if key == "_id" || key == "_rev" || key == "_meta" || key == "_type" {
					continue
				}
				fmt.Println(key)
			}
			return nil
		},
	}
}

func printCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "print {pending|success|failure} <jobKey>",
		Short: "Print a job document by category and key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, jobKey := args[0], args[1]
			ctx := cmd.Context()
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			jobPath, err := resolveJobPath(ctx, st, category, jobKey)
			if err != nil {
				return err
			}
			job, err := jobs.Load(ctx, st, jobPath)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(job.AsMap())
		},
	}
}

func retryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <jobKey>",
		Short: "Re-submit a failed job as a fresh pending entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobKey := args[0]
			ctx := cmd.Context()
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			jobPath, err := resolveJobPath(ctx, st, "failure", jobKey)
			if err != nil {
				return err
			}
			original, err := jobs.Load(ctx, st, jobPath)
			if err != nil {
				return err
			}
			if !original.IsJob {
				return fmt.Errorf("jobctl: %s is not a valid job document", jobKey)
			}

			fresh := map[string]any{
				"service": original.Service,
				"type":    original.Type,
				"config":  original.Config,
			}
			posted, err := st.Post(ctx, store.ResourcesRoot(), fresh)
			if err != nil {
				return err
			}
			link := map[string]any{"_id": posted.Location, "path": posted.Location}
			newKey := idgen.NewJobKey()
			if err := st.Put(ctx, store.PendingEntry(original.Service, newKey), link, store.Tree{"_type": store.MediaTypeJob}); err != nil {
				return err
			}
			fmt.Println(newKey)
			return nil
		},
	}
}

// resolveJobPath scans the relevant index for jobKey and returns the
// canonical job document path it links to. pending lookups are direct;
// success/failure lookups scan all known days since the CLI has no
// narrower index to query.
func resolveJobPath(ctx context.Context, st store.Store, category, jobKey string) (string, error) {
	if category == "pending" {
		res, err := st.Get(ctx, store.PendingEntry(serviceName, jobKey))
		if err != nil {
			return "", err
		}
		path, _ := res.Data["_id"].(string)
		if path == "" {
			return "", fmt.Errorf("jobctl: pending entry %s has no link", jobKey)
		}
		return path, nil
	}

	root := store.DayIndexRoot(serviceName, category)
	days, err := st.Get(ctx, root)
	if err != nil {
		return "", err
	}
	for day := range days.Data {
		if day == "_id" || day == "_rev" || day == "_meta" || day == "_type" {
			continue
		}
		entryPath := root + "/" + day + "/" + jobKey
		res, err := st.Get(ctx, entryPath)
		if err != nil {
			continue
		}
		path, _ := res.Data["path"].(string)
		if path != "" {
			return path, nil
		}
	}
	return "", fmt.Errorf("jobctl: no %s entry found for key %s", category, jobKey)
}
