package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tracceaqua/internal/core"
	"tracceaqua/pkg/domain"
)

type batchesOptions struct {
	status      string
	sourceType  string
	search      string
	sortBy      string
	sortOrder   string
	batchSortBy string
	batchOrder  string
	localFilter bool
	jsonOutput  bool
	trace       bool
	watch       time.Duration
}

func (a *app) batchesCommand() *cobra.Command {
	opts := &batchesOptions{}
	cmd := &cobra.Command{
		Use:   "batches",
		Short: "Fetch records from the API and print them grouped into batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runBatches(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.status, "status", "", "filter by record status (DRAFT, ACTIVE, COMPLETED, REJECTED)")
	flags.StringVar(&opts.sourceType, "source-type", "", "filter by source type (FARMED, WILD_CAPTURE)")
	flags.StringVar(&opts.search, "search", "", "free-text search")
	flags.StringVar(&opts.sortBy, "sort-by", "", "server-side record sort field")
	flags.StringVar(&opts.sortOrder, "sort-order", "", "server-side record sort order (asc, desc)")
	flags.StringVar(&opts.batchSortBy, "batch-sort-by", "", "batch sort field (batchId, totalQuantity, averageProgress, createdAt, ...)")
	flags.StringVar(&opts.batchOrder, "batch-order", "asc", "batch sort order (asc, desc)")
	flags.BoolVar(&opts.localFilter, "local-filter", false, "re-apply filters locally to the fetched records")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print batches as JSON")
	flags.BoolVar(&opts.trace, "trace", false, "write pipeline spans to stderr as JSON lines")
	flags.DurationVar(&opts.watch, "watch", 0, "refresh interval; zero prints once")
	return cmd
}

func (o *batchesOptions) query() (core.BatchQuery, error) {
	q := core.BatchQuery{
		RecordQuery: domain.RecordQuery{
			Status:     domain.RecordStatus(strings.ToUpper(strings.TrimSpace(o.status))),
			SourceType: domain.SourceType(strings.ToUpper(strings.TrimSpace(o.sourceType))),
			Search:     o.search,
			SortBy:     o.sortBy,
		},
		Order: domain.ParseSortOrder(o.batchOrder),
	}
	if o.sortOrder != "" {
		q.SortOrder = domain.ParseSortOrder(o.sortOrder)
	}
	if o.batchSortBy != "" {
		field, ok := core.ParseBatchField(o.batchSortBy)
		if !ok {
			return core.BatchQuery{}, fmt.Errorf("unknown batch sort field %q", o.batchSortBy)
		}
		q.SortBy = field
	}
	return q, nil
}

func (a *app) runBatches(ctx context.Context, out, traceOut io.Writer, opts *batchesOptions) error {
	q, err := opts.query()
	if err != nil {
		return err
	}
	fetcher, err := a.newClient()
	if err != nil {
		return err
	}
	defer func() { _ = fetcher.Close() }()

	svcOpts := []core.ServiceOption{
		core.WithLogger(a.logger.Named("batches")),
		core.WithLocalFilter(opts.localFilter),
	}
	if opts.trace {
		svcOpts = append(svcOpts, core.WithTracer(core.NewJSONTracer(traceOut)))
	}
	svc := core.NewService(fetcher, svcOpts...)
	if opts.watch <= 0 {
		batches, err := svc.Batches(ctx, q)
		if err != nil {
			return err
		}
		return printBatches(out, batches, opts.jsonOutput)
	}

	view := core.NewView(svc)
	ticker := time.NewTicker(opts.watch)
	defer ticker.Stop()
	for {
		batches, err := view.Refresh(ctx, q)
		switch {
		case errors.Is(err, core.ErrSuperseded):
		case ctx.Err() != nil:
			return nil
		case err != nil:
			a.logger.Warn("refresh batches", zap.Error(err))
		default:
			if err := printBatches(out, batches, opts.jsonOutput); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func printBatches(out io.Writer, batches []domain.BatchSummary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if batches == nil {
			batches = []domain.BatchSummary{}
		}
		return enc.Encode(batches)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BATCH\tSPECIES\tPRODUCTS\tQUANTITY\tPROGRESS\tSTATUS\tSOURCE\tSTAGES")
	for _, b := range batches {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%g %s\t%d%%\t%s\t%s\t%s\n",
			b.BatchID,
			b.Species.CommonName,
			len(b.Products),
			b.TotalQuantity, b.Unit,
			b.AverageProgress,
			b.Status,
			b.SourceType,
			strings.Join(b.Stages, ", "),
		)
	}
	return tw.Flush()
}
