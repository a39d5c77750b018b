package ticks

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"hedgexd/pkg/types"
)

// Packet length thresholds from the broker's binary tick protocol. Every
// packet starts with a 4-byte big-endian instrument token; everything
// after that is mode-dependent.
const (
	lenLTP   = 8
	lenQuote = 28
	lenFull  = 44
)

// decodePacket decodes one binary tick packet. The mode (LTP, Quote, or
// Full) is selected by payload length alone, per the wire format.
func decodePacket(data []byte, now time.Time) (types.Tick, error) {
	if len(data) < lenLTP {
		return types.Tick{}, fmt.Errorf("ticks: packet too short: %d bytes", len(data))
	}

	token := binary.BigEndian.Uint32(data[0:4])
	ltp := readFloat32(data[4:8])

	tick := types.Tick{
		InstrumentToken: token,
		LTP:             ltp,
		ServerTime:      now,
	}

	switch {
	case len(data) >= lenFull:
		if err := decodeQuoteFields(data, &tick); err != nil {
			return types.Tick{}, err
		}
		tick.OHLC = &types.OHLC{
			Open:  readFloat32(data[28:32]),
			High:  readFloat32(data[32:36]),
			Low:   readFloat32(data[36:40]),
			Close: readFloat32(data[40:44]),
		}
		if tick.OHLC.Close > 0 {
			tick.Change = tick.LTP - tick.OHLC.Close
			tick.ChangePct = (tick.Change / tick.OHLC.Close) * 100
		}

	case len(data) >= lenQuote:
		if err := decodeQuoteFields(data, &tick); err != nil {
			return types.Tick{}, err
		}

	case len(data) == lenLTP:
		// LTP-only packet: nothing further to decode.

	default:
		return types.Tick{}, fmt.Errorf("ticks: unrecognized packet length: %d bytes", len(data))
	}

	if err := validateTick(tick); err != nil {
		return types.Tick{}, err
	}
	return tick, nil
}

// decodeQuoteFields fills the Quote-mode fields shared by Quote and Full
// packets: last-qty, avg-price, volume, best-bid, best-ask.
func decodeQuoteFields(data []byte, tick *types.Tick) error {
	if len(data) < lenQuote {
		return fmt.Errorf("ticks: packet too short for quote mode: %d bytes", len(data))
	}
	tick.LastQty = binary.BigEndian.Uint32(data[8:12])
	tick.AvgPrice = readFloat32(data[12:16])
	tick.Volume = binary.BigEndian.Uint32(data[16:20])
	tick.Bid = readFloat32(data[20:24])
	tick.Ask = readFloat32(data[24:28])
	return nil
}

func readFloat32(b []byte) float64 {
	return float64(math.Float32frombits(binary.BigEndian.Uint32(b)))
}

// validateTick enforces the wire-level sanity checks. A packet that fails
// these is dropped upstream rather than propagated.
func validateTick(t types.Tick) error {
	if t.LTP <= 0 {
		return fmt.Errorf("ticks: invalid LTP %v for token %d", t.LTP, t.InstrumentToken)
	}
	if t.Bid < 0 || t.Ask < 0 {
		return fmt.Errorf("ticks: negative bid/ask for token %d", t.InstrumentToken)
	}
	if t.Bid > 0 && t.Ask > 0 && t.Bid > t.Ask {
		return fmt.Errorf("ticks: bid %v exceeds ask %v for token %d", t.Bid, t.Ask, t.InstrumentToken)
	}
	return nil
}
