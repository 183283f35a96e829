package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/phuslu/log"

	"github.com/tvondra/pg-check/bitmap"
	"github.com/tvondra/pg-check/check"
	"github.com/tvondra/pg-check/logging"
	"github.com/tvondra/pg-check/pagesource"
	"github.com/tvondra/pg-check/report"
	"github.com/tvondra/pg-check/tuple"
	"github.com/tvondra/pg-check/ui"
)

func main() {
	var (
		tablePath    = flag.String("table", "", "heap relation file to check")
		tableSchema  = flag.String("schema", "", "comma separated attribute types of the table (int2,int4,int8,float8,char,varlena,cstring)")
		indexPaths   = flag.String("indexes", "", "comma separated index relation files")
		indexSchema  = flag.String("index-schema", "", "comma separated attribute types of the indexes")
		pageSize     = flag.Uint("page-size", uint(8192), "page size in bytes")
		crossCheck   = flag.Bool("cross-check", false, "reconcile index references against the heap")
		checksums    = flag.Bool("verify-checksums", false, "verify page checksums")
		blockFrom    = flag.Int64("from", -1, "first block to check (full scan when unset)")
		blockTo      = flag.Int64("to", -1, "block to stop before (full scan when unset)")
		debug        = flag.Bool("debug", false, "dump cross-check bitmaps")
		bitmapFormat = flag.String("bitmap-format", "binary", "bitmap dump format: binary, hex, base64 or none")
		verbose      = flag.Bool("v", false, "per page debug logging")
	)
	flag.Parse()

	if *tablePath == "" || *tableSchema == "" {
		flag.Usage()
		os.Exit(2)
	}

	level := log.InfoLevel
	if *verbose {
		level = log.DebugLevel
	}
	logger := logging.CreateLogger(level)

	if err := run(logger, options{
		tablePath:    *tablePath,
		tableSchema:  *tableSchema,
		indexPaths:   *indexPaths,
		indexSchema:  *indexSchema,
		pageSize:     uint32(*pageSize),
		crossCheck:   *crossCheck,
		checksums:    *checksums,
		blockFrom:    *blockFrom,
		blockTo:      *blockTo,
		debug:        *debug,
		bitmapFormat: *bitmapFormat,
	}); err != nil {
		logger.Error().Err(err).Msg("check failed")
		os.Exit(1)
	}
}

type options struct {
	tablePath    string
	tableSchema  string
	indexPaths   string
	indexSchema  string
	pageSize     uint32
	crossCheck   bool
	checksums    bool
	blockFrom    int64
	blockTo      int64
	debug        bool
	bitmapFormat string
}

func run(logger *log.Logger, o options) error {
	desc, err := parseSchema(o.tableSchema)
	if err != nil {
		return err
	}

	format, err := bitmap.ParseFormat(o.bitmapFormat)
	if err != nil {
		return err
	}

	var indexes []check.Index
	if o.indexPaths != "" {
		idxDesc, err := parseSchema(o.indexSchema)
		if err != nil {
			return fmt.Errorf("index schema: %w", err)
		}
		for _, p := range strings.Split(o.indexPaths, ",") {
			idx, err := pagesource.OpenIndex(pagesource.FileOptions{
				Path:         p,
				PageSizeByte: o.pageSize,
			}, idxDesc, check.AccessMethodBTree)
			if err != nil {
				return err
			}
			defer idx.Close()
			indexes = append(indexes, idx)
		}
	}

	tbl, err := pagesource.OpenTable(pagesource.FileOptions{
		Path:         o.tablePath,
		PageSizeByte: o.pageSize,
	}, desc, indexes)
	if err != nil {
		return err
	}
	defer tbl.Close()

	collector := &report.Collector{}
	checker := check.New(*logger, report.Tee{collector, &report.LogSink{Logger: *logger}})

	opts := check.Options{
		PageSize:       o.pageSize,
		VerifyChecksum: o.checksums,
		CheckIndexes:   len(indexes) > 0,
		CrossCheck:     o.crossCheck && len(indexes) > 0,
		Debug:          o.debug,
		BitmapFormat:   format,
	}
	if o.blockFrom >= 0 && o.blockTo >= 0 {
		opts.BlockFrom = uint32(o.blockFrom)
		opts.BlockTo = uint32(o.blockTo)
		opts.BlockRangeSet = true
	}

	nerrs, err := checker.CheckTable(context.Background(), tbl, opts)
	if err != nil {
		return err
	}

	fmt.Print(ui.RenderSummary(o.tablePath, nerrs, collector.Findings))

	if nerrs > 0 {
		os.Exit(1)
	}
	return nil
}

func parseSchema(spec string) (tuple.RowDescriptor, error) {
	if spec == "" {
		return nil, fmt.Errorf("empty schema")
	}

	var desc tuple.RowDescriptor
	for _, tok := range strings.Split(spec, ",") {
		switch strings.TrimSpace(tok) {
		case "int2":
			desc = append(desc, tuple.Attr{Len: 2, ByVal: true, Align: 2})
		case "int4":
			desc = append(desc, tuple.Attr{Len: 4, ByVal: true, Align: 4})
		case "int8":
			desc = append(desc, tuple.Attr{Len: 8, ByVal: true, Align: 8})
		case "float8":
			desc = append(desc, tuple.Attr{Len: 8, ByVal: true, Align: 8})
		case "char":
			desc = append(desc, tuple.Attr{Len: 1, ByVal: true, Align: 1})
		case "varlena":
			desc = append(desc, tuple.Attr{Len: tuple.VarLena, Align: 4})
		case "cstring":
			desc = append(desc, tuple.Attr{Len: tuple.CString, Align: 1})
		default:
			return nil, fmt.Errorf("unknown attribute type %q", tok)
		}
	}
	return desc, nil
}
