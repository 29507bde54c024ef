package protocol

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedIDs(ids ...string) IDFunc {
	i := 0
	return func() string {
		id := ids[i%len(ids)]
		i++
		return id
	}
}

func TestCodec_CreateIntent(t *testing.T) {
	c := NewCodecWithIDs(fixedIDs("req_1"))
	req := c.CreateIntent("automotive_chips", 5000, "2026-12-01")

	assert.Equal(t, "2.0", req.JSONRPC)
	assert.Equal(t, "req_1", req.ID)
	assert.Equal(t, MethodProcure, req.Method)

	params, ok := req.Params.(ProcureParams)
	require.True(t, ok)
	assert.Equal(t, "automotive_chips", params.Item)
	assert.Equal(t, 5000, params.Qty)
	assert.Equal(t, "2026-12-01", params.Deadline)
	assert.Equal(t, []string{"ISO-26262", "AEC-Q100"}, params.Standards)

	// Список стандартов копируется: изменение конверта не портит пакетную переменную
	params.Standards[0] = "changed"
	assert.Equal(t, "ISO-26262", ComplianceStandards[0])
}

func TestCodec_OfferJSONShape(t *testing.T) {
	c := NewCodec()
	resp := c.CreateOffer("req_42", 487.5, "USD", 14)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"jsonrpc": "2.0",
		"id": "req_42",
		"result": {
			"status": "accepted",
			"quote": {"price_per_unit": 487.5, "currency": "USD", "incoterms": "FOB", "lead_time_days": 14}
		}
	}`, string(raw))
}

func TestCodec_BookingJSONShape(t *testing.T) {
	c := NewCodecWithIDs(fixedIDs("req_7"))
	req := c.CreateBooking("KR PUS", "NL RTM", 1200)

	raw, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"jsonrpc": "2.0",
		"id": "req_7",
		"method": "logistics.book",
		"params": {"origin_locode": "KR PUS", "dest_locode": "NL RTM", "cargo_weight": 1200, "service_level": "express"}
	}`, string(raw))
}

func TestCodec_CreateError(t *testing.T) {
	c := NewCodec()
	resp := c.CreateError("req_9", CodeQuoteUnavailable, "quote unavailable")

	assert.Nil(t, resp.Result)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeQuoteUnavailable, resp.Error.Code)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"req_9","error":{"code":-32001,"message":"quote unavailable"}}`, string(raw))
}

func TestCodec_CreateConfirmation(t *testing.T) {
	c := NewCodec()
	resp := c.CreateConfirmation("req_3", "WB-000123", "Triple-E Class")

	res, ok := resp.Result.(BookingResult)
	require.True(t, ok)
	assert.Equal(t, "booked", res.Status)
	assert.Equal(t, "WB-000123", res.Waybill)
	assert.Equal(t, "req_3", resp.ID)
}

func TestTimeRandomID_Format(t *testing.T) {
	re := regexp.MustCompile(`^req_\d+_\d{1,3}$`)
	for i := 0; i < 20; i++ {
		assert.Regexp(t, re, TimeRandomID())
	}
}
