// Package telemetry wires debugedit's structured logging. The teacher's
// go.mod lists github.com/samber/slog-multi for exactly this purpose: fan a
// single slog record out to more than one handler. debugedit uses it to
// always emit a human-readable line to stderr and, when verbose logging is
// requested, additionally emit a JSON line a caller can pipe into log
// aggregation.
package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// Options configures the logger New builds.
type Options struct {
	// Verbose also emits a JSON handler alongside the text handler.
	Verbose bool
	// Writer overrides the text handler's destination. Defaults to os.Stderr.
	Writer io.Writer
}

// New builds the process-wide logger. debugedit's internal packages never
// call slog.Default() or log directly; the CLI passes warning callbacks in
// edit.Config that forward to this logger, so tests can capture output
// deterministically.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	textHandler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})

	if !opts.Verbose {
		return slog.New(textHandler)
	}

	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})

	fanout := slogmulti.Fanout(textHandler, jsonHandler)
	return slog.New(fanout)
}

// Discard returns a logger that drops every record; used by tests and by
// library callers who do not want debugedit's diagnostics.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// WarnFormatOverflow logs the §7 diagnostic for a DW_FORM_string comp_dir
// replacement that did not fit in the original byte length.
func WarnFormatOverflow(ctx context.Context, log *slog.Logger, cuOffset int64, original, replacement string) {
	log.WarnContext(ctx, "comp_dir replacement longer than original, DIE left unchanged",
		slog.Int64("cu_offset", cuOffset),
		slog.String("original", original),
		slog.String("replacement", replacement),
	)
}

// WarnUnreachableStrOffsetsEntry logs the §8 diagnostic for a
// .debug_str_offsets entry that pointed at a string no DIE ever registered.
func WarnUnreachableStrOffsetsEntry(ctx context.Context, log *slog.Logger, tableOffset int64, index int, origOffset uint32) {
	log.WarnContext(ctx, "str_offsets entry unreachable through any DIE, substituting dummy entry",
		slog.Int64("table_offset", tableOffset),
		slog.Int("index", index),
		slog.Uint64("orig_offset", uint64(origOffset)),
	)
}
