package binance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKline_Raw(t *testing.T) {
	msg := []byte(`{"e":"kline","E":1700000001000,"s":"BTCUSDT","k":{"t":1700000000000,"T":1700014399999,"s":"BTCUSDT","i":"4h","o":"100.0","c":"101.5","h":"102.0","l":"99.0","v":"321.5","x":true}}`)

	ev, ok := decodeKline(msg)
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", ev.Symbol)
	assert.Equal(t, "4h", ev.Interval)
	assert.True(t, ev.Closed)
	assert.Equal(t, int64(1700000000000), ev.Candle.OpenTime)
	assert.Equal(t, 101.5, ev.Candle.Close)
	assert.Equal(t, 321.5, ev.Candle.Volume)
}

func TestDecodeKline_FuturesPayload(t *testing.T) {
	msg := []byte(`{
		"e":"kline","E":1638747660000,"s":"BTCUSDT",
		"k":{"t":1638747600000,"T":1638747659999,"s":"BTCUSDT","i":"1m","f":100,"L":200,
			"o":"0.0010","c":"0.0020","h":"0.0025","l":"0.0015","v":"1000","n":100,"x":false,
			"q":"1.0000","V":"500","Q":"0.500","B":"123456"}}`)

	ev, ok := decodeKline(msg)
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", ev.Symbol)
	assert.Equal(t, "1m", ev.Interval)
	assert.False(t, ev.Closed)
	assert.Equal(t, int64(1638747600000), ev.Candle.OpenTime)
	assert.Equal(t, 0.0010, ev.Candle.Open)
	assert.Equal(t, 0.0025, ev.Candle.High)
	assert.Equal(t, 0.0015, ev.Candle.Low)
	assert.Equal(t, 0.0020, ev.Candle.Close)
	assert.Equal(t, 1000.0, ev.Candle.Volume)
}

func TestDecodeKline_UppercaseKeysDoNotShadow(t *testing.T) {
	msg := []byte(`{"e":"kline","s":"BTCUSDT","k":{"t":1000,"T":1999,"s":"BTCUSDT","i":"4h","o":"1","c":"2","h":"3","l":"0.5","v":"1000","V":"500","x":true}}`)

	ev, ok := decodeKline(msg)
	require.True(t, ok)
	assert.Equal(t, int64(1000), ev.Candle.OpenTime)
	assert.Equal(t, 1000.0, ev.Candle.Volume)
}

func TestDecodeKline_Combined(t *testing.T) {
	msg := []byte(`{"stream":"ethusdt@kline_1h","data":{"e":"kline","s":"ETHUSDT","k":{"t":1,"s":"ETHUSDT","i":"1h","o":"1","c":"2","h":"3","l":"0.5","v":"10","x":false}}}`)

	ev, ok := decodeKline(msg)
	require.True(t, ok)
	assert.Equal(t, "ETHUSDT", ev.Symbol)
	assert.False(t, ev.Closed)
}

func TestDecodeKline_Ignored(t *testing.T) {
	for _, msg := range []string{
		`{"result":null,"id":1}`,
		`not json`,
		`{"e":"kline","k":{"o":"x","c":"1","h":"1","l":"1","v":"1"}}`,
	} {
		_, ok := decodeKline([]byte(msg))
		assert.False(t, ok, msg)
	}
}

func TestStreamNames(t *testing.T) {
	s := NewStream("wss://fstream.binance.com/", []string{"BTCUSDT", "EthUsdt"}, "4h", time.Second, time.Second, nil).(*Stream)
	assert.Equal(t, []string{"btcusdt@kline_4h", "ethusdt@kline_4h"}, s.StreamNames())
	assert.Equal(t, "wss://fstream.binance.com", s.websocketURL)
	assert.False(t, s.IsConnected())
}
