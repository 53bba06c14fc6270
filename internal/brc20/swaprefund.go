package brc20

import (
	"encoding/hex"
	"sort"

	"github.com/brc20idx/indexer/internal/ids"
)

// swapRefundIdPrefix is the fixed literal the synthesized refund
// inscription ids are built from (§4.3.7).
const swapRefundIdPrefix = "BRC20SWAPREFUND"

// swapRefundSortKey reorders tickers for the refund replay: the literal
// ".com" sorts as if it were "aaaa", a historical quirk hard-coded at the
// refund height rather than a general rule.
func swapRefundSortKey(ticker string) string {
	if ticker == ".com" {
		return "aaaa"
	}
	return ticker
}

// synthRefundInscriptionId builds the fixed-prefix synthetic inscription id
// a refund's transfer-inscribe/transfer-transfer pair is recorded under.
func synthRefundInscriptionId(ticker string) ids.InscriptionId {
	body := hex.EncodeToString([]byte(swapRefundIdPrefix)) + hex.EncodeToString([]byte(ticker))
	for len(body) < 64 {
		body += "0"
	}
	body = body[:64]
	var txid [ids.TxidSize]byte
	raw, _ := hex.DecodeString(body)
	copy(txid[:], raw)
	return ids.InscriptionId{Txid: txid, Index: 0}
}

// RunSwapRefund replays every non-zero balance the swap module pkscript
// holds back to the refund pkscript, in ticker order with the ".com"
// reordering quirk, synthesizing a transfer-inscribe/transfer-transfer
// event pair per ticker (§4.3.7). It must run exactly once, at the
// configured block height, and its events participate in the hash chain
// like any other block's.
func (e *Engine) RunSwapRefund(swapPkScript, refundPkScript []byte, blockHeight int32) {
	type row struct {
		ticker string
		amount *Balance
	}
	var rows []row
	for key := range e.Tickers {
		bal, ok := e.Balances.Lookup(key, swapPkScript)
		if !ok || bal.Overall.Sign() == 0 {
			continue
		}
		rows = append(rows, row{ticker: key, amount: bal})
	}
	sort.Slice(rows, func(i, j int) bool {
		return swapRefundSortKey(rows[i].ticker) < swapRefundSortKey(rows[j].ticker)
	})

	for _, r := range rows {
		ticker := e.Tickers[r.ticker]
		amount := r.amount.Overall
		inscriptionId := synthRefundInscriptionId(r.ticker)

		e.Balances.LockAvailable(ticker.Ticker, swapPkScript, amount)
		e.emit(Event{
			Type:           EventTransferInscribe,
			InscriptionId:  inscriptionId,
			PkScript:       swapPkScript,
			Ticker:         ticker.Ticker,
			OriginalTicker: ticker.OriginalTicker,
			Decimals:       ticker.Decimals,
			Amount:         amount,
			BlockHeight:    blockHeight,
		})

		e.Balances.CreditOverall(ticker.Ticker, refundPkScript, amount)
		e.Balances.DebitOverall(ticker.Ticker, swapPkScript, amount)
		e.emit(Event{
			Type:           EventTransferTransfer,
			InscriptionId:  inscriptionId,
			PkScript:       swapPkScript,
			SpentPkScript:  refundPkScript,
			Ticker:         ticker.Ticker,
			OriginalTicker: ticker.OriginalTicker,
			Decimals:       ticker.Decimals,
			Amount:         amount,
			BlockHeight:    blockHeight,
		})
	}
}
