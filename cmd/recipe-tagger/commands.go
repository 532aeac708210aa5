package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/holidaychanneldottv/recipe-tagger/internal/api"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/config"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/internalerr"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/store"
)

const shutdownTimeout = 30 * time.Second

func (a *app) seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Register every taxonomy tag and index its keywords",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withTagger(cmd.Context(), func(tg *tagger.Tagger) error {
				res, err := tg.Seed(cmd.Context())
				a.printResult(res)
				return err
			})
		},
	}
}

func (a *app) tagAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tag-all",
		Short: "Match every recipe against the keyword index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withTagger(cmd.Context(), func(tg *tagger.Tagger) error {
				res, err := tg.TagAll(cmd.Context())
				a.printResult(res)
				return err
			})
		},
	}
}

func (a *app) tagOneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tag-one <recipe_id>",
		Short: "Match a single recipe against the keyword index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("recipe_id %q must be a positive integer: %w", args[0], internalerr.ErrInvalidInput)
			}
			return a.withTagger(cmd.Context(), func(tg *tagger.Tagger) error {
				res, err := tg.TagOne(cmd.Context(), id)
				a.printResult(res)
				return err
			})
		},
	}
}

func (a *app) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Seed, then tag every recipe",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()
			err := a.withTagger(cmd.Context(), func(tg *tagger.Tagger) error {
				res, err := tg.Seed(cmd.Context())
				a.printResult(res)
				if err != nil {
					return err
				}
				res, err = tg.TagAll(cmd.Context())
				a.printResult(res)
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Total time taken: %.3f seconds\n", time.Since(start).Seconds())
			return nil
		},
	}
}

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the tagging API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withTagger(cmd.Context(), func(tg *tagger.Tagger) error {
				return a.serve(cmd.Context(), tg)
			})
		},
	}
}

func (a *app) serve(ctx context.Context, tg *tagger.Tagger) error {
	h := api.NewHandler(tg, a.log)
	h.RateLimit = a.cfg.Server.RateLimit
	h.CORSOrigins = a.cfg.Server.CORSOrigins

	srv := &http.Server{
		Addr:         a.cfg.Server.Addr,
		Handler:      h.Router(),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-recipes <file.jsonl>",
		Short: "Load recipes from a JSON Lines file into the store",
		Long: `Each line holds one recipe:

  {"recipe_id": 1, "recipe_name": "Roast Turkey", "instructions": "..."}

Existing recipes with the same id are replaced. Only the sqlite and memory
drivers own a recipe table.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			if err := a.loadConfig(); err != nil {
				return err
			}
			defer a.log.Sync()

			ctx := cmd.Context()
			st, err := config.OpenStore(ctx, a.cfg.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			w, ok := st.(store.RecipeWriter)
			if !ok {
				return fmt.Errorf("driver %s does not accept recipe imports: %w", a.cfg.Database.Driver, internalerr.ErrInvalidInput)
			}

			n, err := importRecipes(ctx, f, w, a.cfg.Database.BatchSize)
			if err != nil {
				return err
			}
			a.log.Info("recipes imported", zap.String("file", args[0]), zap.Int64("recipes", n))
			fmt.Fprintf(a.out, "imported %d recipes\n", n)
			return nil
		},
	}
}

func (a *app) taxonomyCmd() *cobra.Command {
	var dump bool
	cmd := &cobra.Command{
		Use:   "taxonomy",
		Short: "Show the configured taxonomy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			tax, err := config.LoadTaxonomy(cfg.Taxonomy.Path)
			if err != nil {
				return err
			}
			if dump {
				return tax.Dump(a.out)
			}
			var tags, keywords int
			for _, s := range tax.Stats() {
				fmt.Fprintf(a.out, "%-10s %4d tags %5d keywords\n", s.Type, s.Tags, s.Keywords)
				tags += s.Tags
				keywords += s.Keywords
			}
			fmt.Fprintf(a.out, "%-10s %4d tags %5d keywords\n", "total", tags, keywords)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dump, "dump", false, "print the taxonomy as YAML")
	return cmd
}

func (a *app) printResult(res tagger.Result) {
	if res.RunID == "" {
		return
	}
	if a.jsonOutput {
		data, err := json.Marshal(res)
		if err == nil {
			fmt.Fprintln(a.out, string(data))
		}
		return
	}
	a.printSummary(res, "")
}

func (a *app) printSummary(res tagger.Result, indent string) {
	for _, step := range res.Steps {
		a.printSummary(step, indent+"  ")
	}
	fmt.Fprintf(a.out, "%s%s: considered=%d inserted=%d", indent, res.Op, res.Considered, res.Inserted)
	if res.Op == tagger.OpTagAll || res.Op == tagger.OpTagOne {
		fmt.Fprintf(a.out, " scanned=%d matched=%d", res.Scanned, res.Matched)
	}
	if len(res.Skipped) > 0 {
		fmt.Fprintf(a.out, " skipped=%d", len(res.Skipped))
	}
	fmt.Fprintf(a.out, " run=%s took=%s\n", res.RunID, res.Duration.Round(time.Millisecond))
}
