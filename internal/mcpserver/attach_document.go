package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/stash/internal/blob"
	"github.com/starford/stash/internal/models"
	"github.com/starford/stash/internal/resources"
)

func (s *Server) attachDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("data")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, mediaType, err := decodeDataURI(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	fileName := strings.TrimSpace(req.GetString("fileName", ""))
	if fileName == "" {
		fileName = uuid.NewString() + extFor(mediaType)
	}

	obj, err := s.blobs.Put(fileName, bytes.NewReader(data))
	if errors.Is(err, blob.ErrTooLarge) {
		return mcp.NewToolResultError(fmt.Sprintf("file too large (max %d bytes)", s.blobs.MaxBytes())), nil
	}
	if err != nil {
		return s.toolError("attach_document", err)
	}

	title := strings.TrimSpace(req.GetString("title", ""))
	if title == "" {
		title = obj.FileName
	}
	in := resources.CreateInput{
		Type:     models.TypeDocument,
		Title:    title,
		FolderID: optionalString(req, "folderId"),
		Tags:     req.GetStringSlice("tags", nil),
	}
	in.FileURL = obj.URL
	in.FileName = obj.FileName
	in.FileSize = obj.Size
	in.FileType = obj.ContentType
	in.Description = req.GetString("description", "")

	r, err := s.resources.Create(ctx, s.userID, in)
	if err != nil {
		// Stored bytes are content-addressed and may back another document,
		// so they are left in place.
		return s.toolError("attach_document", err)
	}
	return jsonResult(r)
}

// decodeDataURI parses a data:<mediatype>;base64,<data> URI.
func decodeDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", errors.New("data must be a data URI")
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", errors.New("invalid data URI: missing comma separator")
	}
	if !strings.Contains(meta, ";base64") {
		return nil, "", errors.New("only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", fmt.Errorf("invalid base64 data: %w", err)
		}
	}
	mediaType := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	return data, mediaType, nil
}

// extFor picks a file extension for a media type, or "" when none is known.
func extFor(mediaType string) string {
	if mediaType == "" {
		return ""
	}
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}
