package repository

import (
	"testing"

	"github.com/nsvirk/tickcollector/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestTableNamesOptionKindUsesCurrencyPrefix(t *testing.T) {
	tables := NewTableNames("BTC")
	assert.Equal(t, "btc_option_quotes", tables.Quotes(models.KindOption))
	assert.Equal(t, "btc_option_trades", tables.Trades(models.KindOption))
	assert.Equal(t, "btc_option_orderbook_depth", tables.Depth(models.KindOption))
}

func TestTableNamesPerpetualKindIsSharedAcrossCurrencies(t *testing.T) {
	btc := NewTableNames("BTC")
	eth := NewTableNames("ETH")

	assert.Equal(t, "perpetuals_quotes", btc.Quotes(models.KindPerpetual))
	assert.Equal(t, btc.Quotes(models.KindPerpetual), eth.Quotes(models.KindPerpetual))
}

func TestTableNamesLowercasesCurrency(t *testing.T) {
	tables := NewTableNames("BTC")
	assert.Equal(t, "btc_option_quotes", tables.Quotes(models.KindOption))
}

func TestAllTickTablesCoversEveryKindAndTableFamily(t *testing.T) {
	tables := NewTableNames("BTC")
	all := tables.allTickTables()
	assert.Len(t, all, 6)

	names := make(map[string]bool, len(all))
	for _, e := range all {
		names[e.name] = true
	}
	assert.True(t, names["btc_option_quotes"])
	assert.True(t, names["btc_option_trades"])
	assert.True(t, names["btc_option_orderbook_depth"])
	assert.True(t, names["perpetuals_quotes"])
	assert.True(t, names["perpetuals_trades"])
	assert.True(t, names["perpetuals_depth"])
}
