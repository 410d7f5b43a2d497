package inventory

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"giveaway-fulfillment/pkg/steam"
)

// ExportResult is a filtered, ordered slice of an inventory snapshot.
type ExportResult struct {
	Total   int
	Matched int
	Items   []steam.Item
}

func sortKey(it steam.Item) string {
	if it.MarketHashName != "" {
		return it.MarketHashName
	}
	return it.Name
}

// Export keeps items whose market hash name or name contains filter
// (case-insensitive), orders them by name then asset id and keeps the first limit.
func Export(items []steam.Item, filter string, limit int) ExportResult {
	rows := make([]steam.Item, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.AssetID) != "" {
			rows = append(rows, it)
		}
	}
	total := len(rows)

	needle := strings.ToLower(strings.TrimSpace(filter))
	if needle != "" {
		matched := rows[:0]
		for _, it := range rows {
			if strings.Contains(strings.ToLower(it.MarketHashName), needle) || strings.Contains(strings.ToLower(it.Name), needle) {
				matched = append(matched, it)
			}
		}
		rows = matched
	}

	sort.SliceStable(rows, func(i, j int) bool {
		ki, kj := sortKey(rows[i]), sortKey(rows[j])
		if ki != kj {
			return ki < kj
		}
		return rows[i].AssetID < rows[j].AssetID
	})

	res := ExportResult{Total: total, Matched: len(rows), Items: rows}
	if limit > 0 && len(rows) > limit {
		res.Items = rows[:limit]
	}
	return res
}

// WriteAssetIDs prints one asset id per line.
func WriteAssetIDs(w io.Writer, items []steam.Item) error {
	for _, it := range items {
		if _, err := fmt.Fprintln(w, it.AssetID); err != nil {
			return err
		}
	}
	return nil
}

// TSVHeader names the columns written by WriteTSV.
const TSVHeader = "assetId\tclassId\tinstanceId\tmarket_hash_name\tname"

func WriteTSV(w io.Writer, items []steam.Item) error {
	if _, err := fmt.Fprintln(w, TSVHeader); err != nil {
		return err
	}
	for _, it := range items {
		line := strings.Join([]string{it.AssetID, it.ClassID, it.InstanceID, it.MarketHashName, it.Name}, "\t")
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
