package cryptoutils

import (
	"bytes"
	"encoding/hex"
	"fmt"

	tdx_abi "github.com/google/go-tdx-guest/abi"
	tdx_pb "github.com/google/go-tdx-guest/proto/tdx"
)

// QuoteInfo is the operator-facing summary of a decoded TDX quote.
// Decoding is not verification: nothing here checks signatures or collateral.
type QuoteInfo struct {
	ReportData   []byte
	Measurements map[int]string
}

// ReportDataMatches reports whether the quote's report data equals the nonce.
func (q *QuoteInfo) ReportDataMatches(nonce []byte) bool {
	return bytes.Equal(q.ReportData, nonce)
}

// InspectTDXQuote parses a raw TDX v4 quote and extracts its measurement registers.
func InspectTDXQuote(report []byte) (*QuoteInfo, error) {
	protoQuote, err := tdx_abi.QuoteToProto(report)
	if err != nil {
		return nil, fmt.Errorf("could not parse quote: %w", err)
	}

	v4Quote, ok := protoQuote.(*tdx_pb.QuoteV4)
	if !ok {
		return nil, fmt.Errorf("unsupported quote type: %T", protoQuote)
	}

	body := v4Quote.GetTdQuoteBody()
	if body == nil || len(body.Rtmrs) != 4 {
		return nil, fmt.Errorf("quote has no TD report body")
	}

	measurements := map[int]string{
		0: hex.EncodeToString(body.MrTd),
		1: hex.EncodeToString(body.Rtmrs[0]),
		2: hex.EncodeToString(body.Rtmrs[1]),
		3: hex.EncodeToString(body.Rtmrs[2]),
		4: hex.EncodeToString(body.Rtmrs[3]),
		5: hex.EncodeToString(body.MrConfigId),
		6: hex.EncodeToString(body.MrOwner),
		7: hex.EncodeToString(body.MrOwnerConfig),
	}

	return &QuoteInfo{
		ReportData:   body.ReportData,
		Measurements: measurements,
	}, nil
}
