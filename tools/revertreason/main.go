// Command revertreason replays a mined transaction as an eth_call at its own
// block and decodes the revert reason the receipt does not carry. Useful when
// a deposit lands with status 0: the deposit contract reverts with a message
// naming the rejected field.
//
// It speaks raw JSON-RPC on purpose: the call must copy the original
// transaction fields exactly as the node reports them.
package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	svr     = flag.String("ethrpc", "http://127.0.0.1:8545", "ETH JSON-RPC url")
	txHash  = flag.String("tx", "", "Transaction hash")
	verbose = flag.Bool("v", false, "also print req/resp json content. default false.")
)

var hc = &http.Client{
	Timeout: time.Second * 10,
}

// Fields copied verbatim from the mined transaction into the eth_call.
// Legacy and dynamic-fee transactions carry different pricing keys, absent
// ones are skipped.
var cpKeys = []string{"from", "to", "gas", "gasPrice", "maxFeePerGas", "maxPriorityFeePerGas", "value"}

// Request is a jsonrpc request
type Request struct {
	JSONRPC string           `json:"jsonrpc"`
	Method  string           `json:"method"`
	Params  *json.RawMessage `json:"params,omitempty"`
	ID      uint64           `json:"id"`
}

func main() {
	flag.Parse()
	if *txHash == "" {
		log.Fatal().Msg("-tx is required")
	}

	reqBytes := getReqJSON("eth_getTransactionByHash", *txHash)
	resp := make(map[string]interface{})
	err := postToSvr(reqBytes, &resp)
	if err != nil {
		log.Fatal().Err(err).Send()
	}
	if respErr, ok := resp["error"].(map[string]interface{}); ok {
		log.Fatal().Err(errors.New(respErr["message"].(string))).Send()
	}
	result, ok := resp["result"].(map[string]interface{})
	if !ok {
		log.Fatal().Msg("Transaction not found")
	}

	ethCall := make(map[string]string)
	for _, k := range cpKeys {
		if v, ok := result[k].(string); ok && v != "" {
			ethCall[k] = v
		}
	}
	ethCall["data"] = result["input"].(string)

	reqBytes = getReqJSON("eth_call", ethCall, result["blockNumber"])
	resp2 := make(map[string]interface{})
	err = postToSvr(reqBytes, &resp2)
	if err != nil {
		log.Fatal().Err(err).Send()
	}
	var txt string
	if errObj, ok := resp2["error"].(map[string]interface{}); ok {
		// some providers put the raw return data on error.data
		if data, ok := errObj["data"].(string); ok {
			txt = strings.TrimPrefix(data, "Reverted ")
		} else {
			log.Info().Str("reason", errObj["message"].(string)).Send()
			return
		}
	} else if s, ok := resp2["result"].(string); ok {
		txt = s
	}
	printReason(txt)
}

// printReason decodes an Error(string) revert payload:
// 0x08c379a0 selector, then the ABI-encoded string offset, length and bytes.
func printReason(txt string) {
	b := hex2Bytes(txt)
	if len(b) <= 68 || !bytes.HasPrefix(b, []byte{0x08, 0xc3, 0x79, 0xa0}) {
		log.Info().Msg("No revert reason")
		return
	}
	length := new(big.Int).SetBytes(b[36:68]).Uint64()
	if uint64(len(b)-68) < length {
		length = uint64(len(b) - 68)
	}
	log.Info().Str("reason", string(b[68:68+length])).Send()
}

func postToSvr(req []byte, result interface{}) error {
	if *verbose {
		log.Info().Str("request", string(req)).Send()
	}
	resp, err := hc.Post(*svr, "application/json", bytes.NewReader(req))
	if err != nil {
		return errors.New("post to svr err: " + err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.New("svr http err: " + resp.Status)
	}
	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.New("read resp.Body err: " + err.Error())
	}
	if *verbose {
		log.Info().Str("response", string(respBytes)).Send()
	}
	return json.Unmarshal(respBytes, result)
}

// returns marshaled bytes to post to server
func getReqJSON(method string, paramsIn ...interface{}) []byte {
	req := &Request{
		JSONRPC: "2.0",
		Method:  method,
		ID:      1,
	}
	b, _ := json.Marshal(paramsIn)
	req.Params = (*json.RawMessage)(&b)
	ret, _ := json.Marshal(req)
	return ret
}

func hex2Bytes(s string) (b []byte) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	// hex.DecodeString expects an even-length string
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, _ = hex.DecodeString(s)
	return b
}
