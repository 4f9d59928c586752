package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cro-platform/molcore/internal/infrastructure/monitoring/logging"
	"github.com/cro-platform/molcore/pkg/client"
)

var (
	ingestFile    string
	ingestOwner   string
	ingestMapping string
)

// newIngestCmd builds the "ingest" subcommand: a one-shot upload of a CSV
// file against a running molcore server, combining begin_upload and ingest
// into a single call for operator convenience.
func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Upload and ingest a CSV file of molecules",
		Long: "ingest registers a new upload against the running molcore server and streams\n" +
			"the given CSV file into it in one call, using --mapping to bind CSV columns\n" +
			"onto the structure column, an optional name column, and zero or more property\n" +
			"columns.",
		RunE: runIngest,
	}

	cmd.Flags().StringVar(&ingestFile, "file", "", "path to the CSV file to ingest (required)")
	cmd.Flags().StringVar(&ingestOwner, "owner", "", "owner id to attribute the upload to (required)")
	cmd.Flags().StringVar(&ingestMapping, "mapping", "", "column mapping: structure=COL;name=COL;property=COL:prop,COL:prop (required)")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	logger := cliCtx.Logger

	if ingestFile == "" || ingestOwner == "" || ingestMapping == "" {
		logger.Error("missing required flags", logging.String("command", "ingest"))
		os.Exit(ExitValidationFailed)
	}

	mapping, err := parseColumnMapping(ingestMapping)
	if err != nil {
		logger.Error("invalid --mapping value", logging.Err(err))
		os.Exit(ExitValidationFailed)
	}

	if cliCtx.Client == nil {
		logger.Error("API client unavailable")
		os.Exit(ExitGeneralFailure)
	}

	f, err := os.Open(ingestFile)
	if err != nil {
		logger.Error("failed to open file", logging.String("file", ingestFile), logging.Err(err))
		os.Exit(ExitValidationFailed)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		logger.Error("failed to stat file", logging.Err(err))
		os.Exit(ExitValidationFailed)
	}

	ctx := cmd.Context()

	upload, err := cliCtx.Client.Uploads().BeginUpload(ctx, client.BeginUploadRequest{
		OwnerID:   ingestOwner,
		Filename:  info.Name(),
		SizeBytes: info.Size(),
		Mapping:   mapping,
	})
	if err != nil {
		logger.Error("begin upload failed", logging.Err(err))
		os.Exit(exitCodeFor(err))
	}

	result, err := cliCtx.Client.Uploads().Ingest(ctx, upload.ID, f)
	if err != nil {
		logger.Error("ingest failed", logging.String("upload_id", upload.ID), logging.Err(err))
		os.Exit(exitCodeFor(err))
	}

	logger.Info("ingest complete",
		logging.String("upload_id", result.Upload.ID),
		logging.String("status", result.Upload.Status),
		logging.Int("row_errors", len(result.RowErrors)))

	return PrintResult(cmd, result)
}

// parseColumnMapping parses the --mapping flag's "structure=COL;name=COL;
// property=COL:prop,COL:prop" format into a client.ColumnMapping.
func parseColumnMapping(raw string) (client.ColumnMapping, error) {
	var mapping client.ColumnMapping

	for _, segment := range strings.Split(raw, ";") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		key, value, ok := strings.Cut(segment, "=")
		if !ok {
			return mapping, fmt.Errorf("malformed mapping segment %q: expected key=value", segment)
		}

		switch key {
		case "structure":
			mapping.StructureColumn = value
		case "name":
			mapping.NameColumn = value
		case "property":
			props := make(map[string]string)
			for _, pair := range strings.Split(value, ",") {
				col, prop, ok := strings.Cut(pair, ":")
				if !ok {
					return mapping, fmt.Errorf("malformed property pair %q: expected COLUMN:property", pair)
				}
				props[col] = prop
			}
			mapping.PropertyColumns = props
		default:
			return mapping, fmt.Errorf("unknown mapping key %q", key)
		}
	}

	if mapping.StructureColumn == "" {
		return mapping, fmt.Errorf("mapping must declare a structure column")
	}
	return mapping, nil
}
