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

// Offline inspector for a fitgent Badger directory. Opens the store
// read-only and dumps one keyspace as a table, decoding the JSON
// documents enough to show what each row is.
func main() {
	dbPath := flag.String("db", "/tmp/fitgent/badger", "Path to badger DB")
	// Default to "conv:" to avoid tripping over the reference keyspaces (mref:, nref:, uref:)
	prefix := flag.String("prefix", "conv:", "Prefix to scan")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Timestamp", "Entity ID", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			rawKey := string(item.Key())

			// Reference keys hold a primary key, not a document
			if strings.HasPrefix(rawKey, "mref:") || strings.HasPrefix(rawKey, "nref:") ||
				strings.HasPrefix(rawKey, "uref:") || strings.HasPrefix(rawKey, "pconv:") ||
				strings.HasPrefix(rawKey, "cidx:") {
				err := item.Value(func(v []byte) error {
					table.Append([]string{rawKey, "REF", "", "", string(v)})
					return nil
				})
				if err != nil {
					return err
				}
				continue
			}

			err := item.Value(func(v []byte) error {
				var doc map[string]any
				if err := json.Unmarshal(v, &doc); err != nil {
					// Log the bad row and keep scanning instead of aborting the dump
					fmt.Printf("Error unmarshaling key %s: %v\n", rawKey, err)
					return nil
				}
				table.Append([]string{
					rawKey,
					docType(rawKey),
					docTimestamp(doc),
					displayID(doc),
					docDetail(rawKey, doc),
				})
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

func docType(key string) string {
	switch {
	case strings.HasPrefix(key, "conv:"):
		return "CONVERSATION"
	case strings.HasPrefix(key, "msg:"):
		return "MESSAGE"
	case strings.HasPrefix(key, "notif:"):
		return "NOTIFICATION"
	case strings.HasPrefix(key, "user:"):
		return "USER"
	}
	return "RAW"
}

func docTimestamp(doc map[string]any) string {
	raw, ok := doc["createdAt"].(string)
	if !ok {
		return ""
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return raw
	}
	return at.UTC().Format("15:04:05")
}

func displayID(doc map[string]any) string {
	id, _ := doc["id"].(string)
	if len(id) > 8 {
		id = id[:8]
	}
	return id
}

func docDetail(key string, doc map[string]any) string {
	switch docType(key) {
	case "CONVERSATION":
		name, _ := doc["name"].(string)
		convType, _ := doc["type"].(string)
		return fmt.Sprintf("%s %s", convType, name)
	case "MESSAGE":
		if deleted, _ := doc["isDeleted"].(bool); deleted {
			return "(deleted)"
		}
		content, _ := doc["content"].(string)
		return content
	case "NOTIFICATION":
		title, _ := doc["title"].(string)
		notifType, _ := doc["type"].(string)
		return fmt.Sprintf("[%s] %s", notifType, title)
	case "USER":
		email, _ := doc["email"].(string)
		return email
	}
	compact, _ := json.Marshal(doc)
	return string(compact)
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	db, err := badger.Open(opts)
	if err != nil {
		if strings.Contains(err.Error(), "Log truncate required") {
			// Open in write mode once to let Badger truncate, then reopen read-only
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}

			db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
