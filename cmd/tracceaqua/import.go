package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tracceaqua/internal/core"
	"tracceaqua/pkg/domain"
)

func (a *app) importCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Load a JSON file of product records into the configured store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runImport(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), args[0])
		},
	}
}

func (a *app) runImport(ctx context.Context, in io.Reader, out io.Writer, source string) error {
	var (
		data []byte
		err  error
	)
	if source == "-" {
		data, err = io.ReadAll(in)
	} else {
		// #nosec G304: path supplied by the operator.
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return fmt.Errorf("read records: %w", err)
	}
	recs, err := parseRecords(data)
	if err != nil {
		return err
	}

	store, err := core.OpenRecordStore(ctx, a.cfg.StorageConfig())
	if err != nil {
		return fmt.Errorf("open record store: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.PutRecords(ctx, recs...); err != nil {
		return fmt.Errorf("store records: %w", err)
	}
	a.logger.Info("records imported", zap.Int("records", len(recs)), zap.String("storage", a.cfg.Storage.Driver))
	_, err = fmt.Fprintf(out, "imported %d records\n", len(recs))
	return err
}

// parseRecords accepts a bare array or an object with a "records" array.
func parseRecords(data []byte) ([]domain.ProductRecord, error) {
	trimmed := bytes.TrimSpace(data)
	var recs []domain.ProductRecord
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var envelope struct {
			Records []domain.ProductRecord `json:"records"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("decode records: %w", err)
		}
		recs = envelope.Records
	} else if err := json.Unmarshal(trimmed, &recs); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	for i, rec := range recs {
		if rec.ID == "" {
			return nil, fmt.Errorf("record %d: id required", i)
		}
	}
	return recs, nil
}
