package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/autoview/internal/archive"
)

type archivesParams struct {
	Action    string `json:"action" jsonschema:"one of list, compress, cleanup"`
	Folder    string `json:"folder,omitempty" jsonschema:"output folder to compress; all configured folders when empty"`
	OlderThan string `json:"older_than,omitempty" jsonschema:"cleanup threshold as a Go duration, e.g. 168h"`
}

func (h *handler) archivesHandler(ctx context.Context, req *mcp.CallToolRequest, params archivesParams) (*mcp.CallToolResult, any, error) {
	if h.archiver == nil {
		return errorResult("archiving is not configured")
	}

	switch params.Action {
	case "list":
		list, err := h.archiver.List()
		if err != nil {
			return errorResult(fmt.Sprintf("listing archives: %v", err))
		}
		return textResult(formatArchives(list))

	case "compress":
		folders := h.archiver.Folders
		if params.Folder != "" {
			folders = []string{params.Folder}
		}
		var (
			made []archive.Archive
			errs []string
		)
		for _, f := range folders {
			arc, err := h.archiver.Compress(f)
			if err != nil {
				errs = append(errs, err.Error())
				continue
			}
			made = append(made, *arc)
		}
		text := formatArchives(made)
		if len(errs) > 0 {
			text += "\nErrors:\n  " + strings.Join(errs, "\n  ") + "\n"
		}
		if len(made) == 0 {
			return errorResult(text)
		}
		return textResult(text)

	case "cleanup":
		olderThan := h.engine.Config.ArchiveRetention()
		if params.OlderThan != "" {
			d, err := time.ParseDuration(params.OlderThan)
			if err != nil || d < 0 {
				return errorResult(fmt.Sprintf("invalid older_than %q", params.OlderThan))
			}
			olderThan = d
		}
		n, err := h.archiver.Cleanup(olderThan)
		if err != nil {
			return errorResult(fmt.Sprintf("cleanup failed after %d deletions: %v", n, err))
		}
		return textResult(fmt.Sprintf("Deleted %d archive(s) older than %s.\n", n, olderThan))

	default:
		return errorResult(fmt.Sprintf("unknown action %q (want list, compress or cleanup)", params.Action))
	}
}

func formatArchives(list []archive.Archive) string {
	if len(list) == 0 {
		return "No archives.\n"
	}
	var b strings.Builder
	for _, a := range list {
		fmt.Fprintf(&b, "%s  %s  %s\n", a.Name, a.HumanSize, a.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
