package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
)

// Debug tool: dumps the raw key space of a support-chat store.
//
//	go run ./tools -db /tmp/support-chat -prefix msg:

type storedConversation struct {
	ID           string    `json:"id"`
	Participants [2]string `json:"participants"`
	UpdatedAt    int64     `json:"updated_at"`
}

type storedMessage struct {
	ID       string `json:"id"`
	SenderID string `json:"sender_id"`
	Content  string `json:"content"`
	Lang     string `json:"lang"`
	IsRead   bool   `json:"is_read"`
	Seq      uint64 `json:"seq"`
}

type storedIdentity struct {
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

func main() {
	dbPath := flag.String("db", "", "Path to badger DB")
	prefix := flag.String("prefix", "", "Prefix to scan (conv:, msg:, user:, empty for all)")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("missing -db path")
	}

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(v []byte) error {
				kind, detail := describe(key, v)
				table.Append([]string{key, kind, detail})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

// describe classifies a key by its prefix and renders a readable value.
func describe(key string, value []byte) (kind, detail string) {
	switch {
	case strings.HasPrefix(key, "conv:pair:"):
		var c storedConversation
		if err := json.Unmarshal(value, &c); err != nil {
			return "CONV", fmt.Sprintf("unmarshal error: %v", err)
		}
		return "CONV", fmt.Sprintf("%s <-> %s (updated %s)",
			c.Participants[0], c.Participants[1],
			time.Unix(0, c.UpdatedAt).Format("15:04:05"))
	case strings.HasPrefix(key, "conv:"):
		return "INDEX", string(value)
	case strings.HasPrefix(key, "msg:seq:"):
		return "SEQ", fmt.Sprintf("% x", value)
	case strings.HasPrefix(key, "msg:"):
		var m storedMessage
		if err := json.Unmarshal(value, &m); err != nil {
			return "MSG", fmt.Sprintf("unmarshal error: %v", err)
		}
		read := " "
		if m.IsRead {
			read = "r"
		}
		content := m.Content
		if len(content) > 40 {
			content = content[:40]
		}
		return "MSG", fmt.Sprintf("#%d [%s] %s: %s", m.Seq, read, m.SenderID, content)
	case strings.HasPrefix(key, "user:"):
		var u storedIdentity
		if err := json.Unmarshal(value, &u); err != nil {
			return "USER", fmt.Sprintf("unmarshal error: %v", err)
		}
		return "USER", fmt.Sprintf("%s (%s)", u.DisplayName, u.Role)
	}
	return "?", fmt.Sprintf("%d bytes", len(value))
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)
	return badger.Open(opts)
}
