package inventory

import (
	"bytes"
	"testing"

	"giveaway-fulfillment/pkg/steam"

	"github.com/stretchr/testify/require"
)

func exportFixture() []steam.Item {
	return []steam.Item{
		{AssetID: "30", ClassID: "c3", InstanceID: "0", MarketHashName: "AK-47 | Redline (Field-Tested)", Name: "AK-47 | Redline"},
		{AssetID: "10", ClassID: "c1", InstanceID: "0", MarketHashName: "AWP | Asiimov (Field-Tested)", Name: "AWP | Asiimov"},
		{AssetID: "20", ClassID: "c3", InstanceID: "0", MarketHashName: "AK-47 | Redline (Field-Tested)", Name: "AK-47 | Redline"},
		{AssetID: "", MarketHashName: "ghost"},
		{AssetID: "40", Name: "Sticker | Crown"},
	}
}

func TestExportFiltersSortsAndLimits(t *testing.T) {
	res := Export(exportFixture(), "ak-47", 0)
	require.Equal(t, 4, res.Total)
	require.Equal(t, 2, res.Matched)
	require.Equal(t, "20", res.Items[0].AssetID)
	require.Equal(t, "30", res.Items[1].AssetID)

	res = Export(exportFixture(), "", 3)
	require.Equal(t, 4, res.Matched)
	require.Len(t, res.Items, 3)
	require.Equal(t, []string{"20", "30", "10"}, []string{res.Items[0].AssetID, res.Items[1].AssetID, res.Items[2].AssetID})

	res = Export(exportFixture(), "crown", 10)
	require.Len(t, res.Items, 1)
	require.Equal(t, "40", res.Items[0].AssetID)
}

func TestWriters(t *testing.T) {
	items := Export(exportFixture(), "asiimov", 0).Items

	var ids bytes.Buffer
	require.NoError(t, WriteAssetIDs(&ids, items))
	require.Equal(t, "10\n", ids.String())

	var tsv bytes.Buffer
	require.NoError(t, WriteTSV(&tsv, items))
	require.Equal(t, TSVHeader+"\n10\tc1\t0\tAWP | Asiimov (Field-Tested)\tAWP | Asiimov\n", tsv.String())
}
