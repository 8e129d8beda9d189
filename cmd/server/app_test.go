package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnuser/red-envelope-server/infra/balance"
	"github.com/gnuser/red-envelope-server/infra/config"
	"github.com/gnuser/red-envelope-server/infra/logging"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Assets = []config.Asset{{Name: "BTC", Prec: 8}, {Name: "CNY", Prec: 8}}
	cfg.Markets = []config.Market{{
		Name: "BTCCNY", Stock: "BTC", Money: "CNY",
		StockPrec: 4, MoneyPrec: 2, FeePrec: 4, MinAmount: "0.001",
	}}
	return cfg
}

func TestBuildEngine(t *testing.T) {
	cfg := testConfig()
	e, err := buildEngine(logging.NewTestLogger(), cfg, balance.NewMemory(cfg.AssetPrecs()), nil)
	require.NoError(t, err)

	m, ok := e.Market("BTCCNY")
	require.True(t, ok)
	assert.Equal(t, "0.001", m.MinAmount.String())
	assert.Equal(t, 4, m.StockPrec)
}

func TestBuildEngineRejectsBadMinAmount(t *testing.T) {
	cfg := testConfig()
	cfg.Markets[0].MinAmount = "abc"
	_, err := buildEngine(logging.NewTestLogger(), cfg, balance.NewMemory(cfg.AssetPrecs()), nil)
	assert.Error(t, err)
}

func TestNoBrokerMeansNoPublisher(t *testing.T) {
	pub, err := newPublisher(config.Broker{Driver: config.BrokerNone})
	require.NoError(t, err)
	assert.Nil(t, pub)

	pub, err = newPublisher(config.Broker{Driver: config.BrokerKafkaGo, Brokers: []string{"localhost:9092"}, Topic: "engine"})
	require.NoError(t, err)
	require.NotNil(t, pub)
	assert.NoError(t, pub.Close())
}
