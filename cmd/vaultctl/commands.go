package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/knowledgevault/internal/app"
	"github.com/markdave123-py/knowledgevault/internal/config"
	"github.com/markdave123-py/knowledgevault/internal/logger"
	"github.com/markdave123-py/knowledgevault/internal/models"
)

type options struct {
	userID    string
	topK      int
	threshold float64
	ingest    bool
	verbose   bool
}

// appKey carries the App built in PersistentPreRunE.
type appKey struct{}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "vaultctl",
		Short:         "Operate the knowledge vault",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey{}).(*app.App); ok {
				a.Close()
			}
		},
	}
	root.PersistentFlags().StringVarP(&opts.userID, "user", "u", "", "user id (the object key prefix)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log pipeline progress")

	upload := &cobra.Command{
		Use:   "upload [file]",
		Short: "Upload a local file under the user's prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, opts, args[0])
		},
	}
	upload.Flags().BoolVar(&opts.ingest, "ingest", false, "run the ingestion pipeline after uploading")

	ingest := &cobra.Command{
		Use:   "ingest [key]",
		Short: "Run the ingestion pipeline on one stored object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args[0])
		},
	}

	search := &cobra.Command{
		Use:   "search [query]",
		Short: "Print the user's best matching chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, opts, args[0])
		},
	}
	search.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "maximum results (default RAG_TOP_K)")
	search.Flags().Float64Var(&opts.threshold, "threshold", 0, "minimum score (default RAG_SCORE_THRESHOLD)")

	usage := &cobra.Command{
		Use:   "usage",
		Short: "Show today's message count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUsage(cmd, opts)
		},
	}

	root.AddCommand(upload, ingest, search, usage)
	return root
}

func buildApp(ctx context.Context, opts *options) (*app.App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.NewNop()
	if opts.verbose {
		if log, err = logger.New("dev", cfg.LogHashSalt); err != nil {
			return nil, err
		}
	}
	return app.NewApp(ctx, cfg, log)
}

func appFrom(cmd *cobra.Command) *app.App {
	return cmd.Context().Value(appKey{}).(*app.App)
}

func requireUser(opts *options) error {
	if opts.userID == "" {
		return fmt.Errorf("--user is required")
	}
	return nil
}

func runUpload(cmd *cobra.Command, opts *options, path string) error {
	if err := requireUser(opts); err != nil {
		return err
	}
	a := appFrom(cmd)

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	key := opts.userID + "/" + filepath.Base(path)
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	url, err := a.Objects.UploadFile(cmd.Context(), a.Config.BucketName, key, f, contentType)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s\n", url)

	if !opts.ingest {
		return nil
	}
	return runIngest(cmd, key)
}

func runIngest(cmd *cobra.Command, key string) error {
	a := appFrom(cmd)
	res := a.Ingestor.ProcessObject(cmd.Context(), models.ObjectRef{Bucket: a.Config.BucketName, Key: key})
	if err := printJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	return res.Err
}

func runSearch(cmd *cobra.Command, opts *options, query string) error {
	if err := requireUser(opts); err != nil {
		return err
	}
	a := appFrom(cmd)

	topK := a.Config.RetrievalTopK
	if cmd.Flags().Changed("top-k") {
		topK = opts.topK
	}
	threshold := a.Config.ScoreThreshold
	if cmd.Flags().Changed("threshold") {
		threshold = opts.threshold
	}

	frags, err := a.Retriever.Retrieve(cmd.Context(), opts.userID, query, topK, threshold)
	if err != nil {
		return err
	}
	return printFragments(cmd.OutOrStdout(), frags)
}

func runUsage(cmd *cobra.Command, opts *options) error {
	if err := requireUser(opts); err != nil {
		return err
	}
	u, err := appFrom(cmd).Quota.Usage(cmd.Context(), opts.userID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d/%d messages\n", u.Day, u.Used, u.Limit)
	return nil
}

func printFragments(w io.Writer, frags []models.RetrievedFragment) error {
	if len(frags) == 0 {
		_, err := fmt.Fprintln(w, "no matching chunks")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tFILE\tCHUNK\tTEXT")
	for _, f := range frags {
		fmt.Fprintf(tw, "%.4f\t%s\t%d\t%s\n", f.Score, f.Chunk.FileName, f.Chunk.Index, preview(f.Chunk.Text, 60))
	}
	return tw.Flush()
}

func preview(s string, n int) string {
	r := []rune(s)
	for i, c := range r {
		if c == '\n' || c == '\t' {
			r[i] = ' '
		}
	}
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
