package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/studybot/internal/excel"
)

// maxImportBytes caps the size of an uploaded study log
const maxImportBytes = 5 << 20

// HandleDocument imports sessions from an uploaded xlsx or CSV study log
func (b *Bot) HandleDocument(ctx context.Context, message *tgbotapi.Message) {
	text, err := b.importDocument(ctx, message.From.ID, message.Document)
	if err != nil {
		if !isUserError(err) {
			b.log.Errorw("import failed", "owner_id", message.From.ID, "file", message.Document.FileName, "error", err)
		}
		text = errorText(err)
	}
	b.reply(ctx, message.Chat.ID, text)
}

func (b *Bot) importDocument(ctx context.Context, ownerID int64, doc *tgbotapi.Document) (string, error) {
	switch strings.ToLower(filepath.Ext(doc.FileName)) {
	case ".xlsx", ".csv":
	default:
		return "Send an .xlsx or .csv study log to import sessions.", nil
	}
	if doc.FileSize > maxImportBytes {
		return fmt.Sprintf("The file is too large (max %d MB).", maxImportBytes>>20), nil
	}

	url, err := b.api.GetFileDirectURL(doc.FileID)
	if err != nil {
		return "", fmt.Errorf("file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := b.opts.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", doc.FileName, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: status %d", doc.FileName, resp.StatusCode)
	}

	loc, err := b.svc.Settings.Location(ctx, ownerID)
	if err != nil {
		return "", err
	}
	res, err := b.svc.Importer.Import(ctx, ownerID, doc.FileName, io.LimitReader(resp.Body, maxImportBytes), loc)
	if err != nil {
		return "", err
	}
	return formatImport(res), nil
}

func formatImport(res *excel.ImportResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Imported %d sessions, skipped %d.", res.Created, res.Skipped)
	for _, e := range res.Errors {
		sb.WriteString("\n" + e)
	}
	return sb.String()
}
