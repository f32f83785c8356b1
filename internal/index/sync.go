package index

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/starford/vitrine/internal/checksum"
	"github.com/starford/vitrine/internal/markup"
	"github.com/starford/vitrine/internal/models"
)

// Sync brings the index up to date with the cards of the master document:
//   - new/changed cards are upserted
//   - cards no longer in the document are deleted from the index
//
// Cards without an id are not indexed.
func Sync(db CardIndex, cards []models.Card, logger *slog.Logger) error {
	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	live := make(map[string]struct{}, len(cards))
	for _, c := range cards {
		if c.ID == "" {
			continue
		}
		if _, dup := live[c.ID]; dup {
			continue
		}
		live[c.ID] = struct{}{}

		body := plainText(c.BodyHTML)
		cs := cardChecksum(c, body)
		if checksums[c.ID] == cs {
			continue
		}
		row := CardRow{
			ID:        c.ID,
			Folder:    c.Folder(),
			Title:     c.Title,
			Hidden:    c.Hidden,
			Order:     c.Order,
			Checksum:  cs,
			UpdatedAt: time.Now(),
		}
		if err := db.UpsertCard(row, body); err != nil {
			logger.Warn("sync: index failed", slog.String("id", c.ID), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("id", c.ID), slog.String("folder", row.Folder))
		}
	}

	// Remove stale entries.
	for id := range checksums {
		if _, ok := live[id]; !ok {
			if err := db.DeleteCard(id); err != nil {
				logger.Warn("sync: delete failed", slog.String("id", id), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("id", id))
			}
		}
	}

	return nil
}

func cardChecksum(c models.Card, body string) string {
	order := ""
	if c.Order != nil {
		order = strconv.Itoa(*c.Order)
	}
	return checksum.Sum([]byte(strings.Join([]string{c.Title, strconv.FormatBool(c.Hidden), order, body}, "\x00")))
}

// plainText reduces card markup to whitespace-normalized text.
func plainText(fragment string) string {
	root, err := markup.Parse(fragment)
	if err != nil {
		return ""
	}
	var words []string
	markup.Walk(root, func(n *html.Node) bool {
		if n.Type == html.TextNode {
			words = append(words, strings.Fields(n.Data)...)
		}
		return true
	})
	return strings.Join(words, " ")
}
