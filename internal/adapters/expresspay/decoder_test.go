package expresspay

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/expresspay/expresspay-go/internal/core/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDecoder() *Decoder {
	return &Decoder{now: func() time.Time { return fixedNow }}
}

func TestDecode_Success(t *testing.T) {
	res := newTestDecoder().Decode([]byte(`{
		"action": "SALE",
		"result": "SUCCESS",
		"status": "SETTLED",
		"order_id": "ORD1",
		"trans_id": "T1",
		"trans_date": "2024-01-15 10:30:00",
		"amount": "10.00",
		"currency": "SAR",
		"descriptor": "SHOP"
	}`))

	require.Equal(t, domain.ResultSuccess, res.Kind)
	require.NotNil(t, res.Details)
	assert.Empty(t, res.Anomalies)
	assert.Equal(t, domain.TransactionSale, res.Details.Action)
	assert.Equal(t, "ORD1", res.Details.OrderID)
	assert.Equal(t, "T1", res.Details.TransactionID)
	assert.True(t, decimal.RequireFromString("10").Equal(res.Details.Amount))
	assert.Equal(t, time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), res.Details.TransactionDate)
	assert.Equal(t, "SHOP", res.Details.Descriptor)
	assert.Nil(t, res.Failure)
}

func TestDecode_NumericFields(t *testing.T) {
	res := newTestDecoder().Decode([]byte(`{"result":"success","order_id":42,"trans_id":7,"amount":12.5,"trans_date":"2024-01-15 10:30:00"}`))

	require.Equal(t, domain.ResultSuccess, res.Kind)
	assert.Equal(t, "42", res.Details.OrderID)
	assert.Equal(t, "7", res.Details.TransactionID)
	assert.True(t, decimal.RequireFromString("12.5").Equal(res.Details.Amount))
}

func TestDecode_Secure3DS(t *testing.T) {
	res := newTestDecoder().Decode([]byte(`{
		"result": "REDIRECT",
		"order_id": "ORD1",
		"trans_id": "T1",
		"amount": "10.00",
		"trans_date": "2024-01-15 10:30:00",
		"redirect_url": "https://acs.example/challenge",
		"redirect_method": "post",
		"redirect_params": {"PaReq": "abc+/=", "MD": "m1", "TermUrl": "https://shop.example/3ds"}
	}`))

	require.Equal(t, domain.ResultSecure3DS, res.Kind)
	require.NotNil(t, res.Redirect)
	assert.Equal(t, "https://acs.example/challenge", res.Redirect.URL)
	assert.Equal(t, domain.RedirectPOST, res.Redirect.Method)
	assert.Equal(t, map[string]string{
		"PaReq":   "abc+/=",
		"MD":      "m1",
		"TermUrl": "https://shop.example/3ds",
	}, res.Redirect.Params)
	assert.True(t, res.NeedsChallenge())
}

func TestDecode_GenericRedirect(t *testing.T) {
	res := newTestDecoder().Decode([]byte(`{
		"result": "REDIRECT",
		"order_id": "ORD1",
		"trans_id": "T1",
		"amount": "10.00",
		"trans_date": "2024-01-15 10:30:00",
		"redirect_url": "https://wallet.example/confirm",
		"redirect_method": "GET",
		"redirect_params": {"ref": "r1", "count": 3, "nested": {"a": 1}}
	}`))

	require.Equal(t, domain.ResultRedirect, res.Kind)
	assert.Equal(t, domain.RedirectGET, res.Redirect.Method)
	assert.Equal(t, "r1", res.Redirect.Params["ref"])
	assert.Equal(t, "3", res.Redirect.Params["count"])
	assert.JSONEq(t, `{"a":1}`, res.Redirect.Params["nested"])
}

func TestDecode_RedirectMethodDefaultsToPost(t *testing.T) {
	res := newTestDecoder().Decode([]byte(`{
		"order_id": "ORD1",
		"trans_id": "T1",
		"amount": "1.50",
		"trans_date": "2024-01-15 10:30:00",
		"redirect_url": "https://acs.example",
		"redirect_params": {"term_url": "https://shop.example/3ds"}
	}`))

	require.Equal(t, domain.ResultSecure3DS, res.Kind)
	assert.Equal(t, domain.RedirectPOST, res.Redirect.Method)
	assert.Len(t, res.Anomalies, 1)
}

func TestDecode_RedirectWinsOverRecurringAndSuccess(t *testing.T) {
	res := newTestDecoder().Decode([]byte(`{
		"result": "SUCCESS",
		"order_id": "ORD1",
		"trans_id": "T1",
		"amount": "1.50",
		"trans_date": "2024-01-15 10:30:00",
		"recurring_token": "RT",
		"redirect_url": "https://acs.example",
		"redirect_method": "POST",
		"redirect_params": {"TermUrl": "https://shop.example/3ds"}
	}`))

	assert.Equal(t, domain.ResultSecure3DS, res.Kind)
}

func TestDecode_RecurringInit(t *testing.T) {
	res := newTestDecoder().Decode([]byte(`{
		"result": "SUCCESS",
		"order_id": "ORD1",
		"trans_id": "T1",
		"amount": "10.00",
		"trans_date": "2024-01-15 10:30:00",
		"recurring_token": "RT-1"
	}`))

	require.Equal(t, domain.ResultRecurringInit, res.Kind)
	assert.Equal(t, "RT-1", res.RecurringToken)
	assert.True(t, res.IsTerminalSuccess())
}

func TestDecode_Anomalies(t *testing.T) {
	res := newTestDecoder().Decode([]byte(`{"result":"SUCCESS","order_id":"ORD1","trans_id":"T1","amount":"abc","trans_date":"yesterday"}`))

	require.Equal(t, domain.ResultSuccess, res.Kind)
	assert.True(t, res.Details.Amount.IsZero())
	assert.Equal(t, fixedNow, res.Details.TransactionDate)
	assert.Len(t, res.Anomalies, 2)
}

func TestDecode_MissingDateIsAnomaly(t *testing.T) {
	res := newTestDecoder().Decode([]byte(`{"result":"SUCCESS","order_id":"ORD1","trans_id":"T1","amount":"10.00"}`))

	require.Equal(t, domain.ResultSuccess, res.Kind)
	assert.Equal(t, fixedNow, res.Details.TransactionDate)
	assert.Len(t, res.Anomalies, 1)
}

func TestDecode_Failures(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		reason string
	}{
		{
			name:   "decline with reason",
			body:   `{"result":"DECLINED","order_id":"ORD1","trans_id":"T1","decline_reason":"Insufficient funds"}`,
			err:    domain.ErrGatewayFailure,
			reason: "Insufficient funds",
		},
		{
			name:   "decline with recurring token",
			body:   `{"result":"DECLINED","decline_reason":"Insufficient funds","recurring_token":"RT1","order_id":"O1","trans_id":"T1","amount":"10.00"}`,
			err:    domain.ErrGatewayFailure,
			reason: "Insufficient funds",
		},
		{
			name:   "error message",
			body:   `{"result":"ERROR","error_message":"Invalid hash"}`,
			err:    domain.ErrGatewayFailure,
			reason: "Invalid hash",
		},
		{
			name: "no result",
			body: `{"order_id":"ORD1"}`,
			err:  domain.ErrMalformedResponse,
		},
		{
			name: "not json",
			body: `<html>oops</html>`,
			err:  domain.ErrMalformedResponse,
		},
		{
			name: "success without trans_id",
			body: `{"result":"SUCCESS","order_id":"ORD1"}`,
			err:  domain.ErrMalformedResponse,
		},
		{
			name: "redirect without params",
			body: `{"result":"REDIRECT","order_id":"ORD1","trans_id":"T1","redirect_url":"https://acs.example"}`,
			err:  domain.ErrMalformedResponse,
		},
		{
			name: "redirect params not an object",
			body: `{"order_id":"ORD1","trans_id":"T1","redirect_url":"https://acs.example","redirect_params":[1,2]}`,
			err:  domain.ErrMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestDecoder().Decode([]byte(tt.body))

			require.Equal(t, domain.ResultFailure, res.Kind)
			require.NotNil(t, res.Failure)
			assert.ErrorIs(t, res.Error(), tt.err)
			assert.Equal(t, domain.CodeFor(tt.err), res.Failure.Code)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, res.Failure.Reason)
			}
			assert.True(t, json.Valid(res.Failure.Raw), "raw payload must stay valid JSON")
		})
	}
}

func TestParseGatewayDate(t *testing.T) {
	got, ok := ParseGatewayDate("2024-01-15 10:30:00")
	require.True(t, ok)
	assert.Equal(t, "2024-01-15 10:30:00", FormatGatewayDate(got))

	_, ok = ParseGatewayDate("")
	assert.False(t, ok)
	_, ok = ParseGatewayDate("15/01/2024")
	assert.False(t, ok)
}
