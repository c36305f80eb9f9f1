package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/odyssey-erp/retailstock/internal/inventory"
)

// ChainVerifier replays ledgers.
type ChainVerifier interface {
	ListRecordKeys(ctx context.Context, storeID int64) ([]inventory.RecordKey, error)
	VerifyChain(ctx context.Context, storeID, productID int64) (inventory.ChainReport, error)
}

// VerifyOptions defines the flags of the verify command.
type VerifyOptions struct {
	StoreID    int64
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// VerifySummary is the JSON output of verify.
type VerifySummary struct {
	OK       bool                    `json:"ok"`
	Checked  int                     `json:"checked"`
	Failures []inventory.ChainReport `json:"failures"`
}

// VerifyCommand replays the ledger of every record, optionally for one store,
// and exits non-zero when any chain is broken or disagrees with its record.
func VerifyCommand(ctx context.Context, svc ChainVerifier, opts VerifyOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	keys, err := svc.ListRecordKeys(ctx, opts.StoreID)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "verify: %v\n", err)
		return 1
	}
	summary := VerifySummary{OK: true, Failures: []inventory.ChainReport{}}
	for _, key := range keys {
		report, err := svc.VerifyChain(ctx, key.StoreID, key.ProductID)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "verify %d/%d: %v\n", key.StoreID, key.ProductID, err)
			return 1
		}
		summary.Checked++
		if !report.Consistent {
			summary.OK = false
			summary.Failures = append(summary.Failures, report)
		}
	}

	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(summary)
	} else {
		for _, f := range summary.Failures {
			_, _ = fmt.Fprintf(opts.Stdout, "BROKEN store=%d product=%d %s\n", f.StoreID, f.ProductID, f.Problem)
		}
		_, _ = fmt.Fprintf(opts.Stdout, "checked %d records, %d broken\n", summary.Checked, len(summary.Failures))
	}
	if !summary.OK {
		return 2
	}
	return 0
}
