package expresspay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/expresspay/expresspay-go/internal/core/domain"
	"github.com/expresspay/expresspay-go/internal/metrics"
	"github.com/shopspring/decimal"
)

// successResult is the value of "result" for an accepted transaction.
const successResult = "success"

// Decoder implements ports.ResponseDecoder.
//
// Classification priority, first match wins:
//  1. redirect_url + redirect_params with a 3DS term URL param -> Secure3DSChallenge
//  2. redirect_url + redirect_params                          -> GenericRedirect
//  3. recurring_token                                         -> RecurringInit
//  4. result == "success"                                     -> Success
//  5. anything else                                           -> Failure
//
// Unparsable amounts become 0 and unparsable dates become "now"; both are
// reported as anomalies on the result instead of failing the decode.
type Decoder struct {
	now func() time.Time
}

// NewDecoder creates a new response decoder.
func NewDecoder() *Decoder {
	return &Decoder{now: time.Now}
}

// flexString accepts JSON strings, numbers and null.
type flexString struct {
	Value   string
	Present bool
}

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	f.Present = true
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &f.Value)
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	f.Value = n.String()
	return nil
}

type gatewayResponse struct {
	Action         flexString      `json:"action"`
	Result         flexString      `json:"result"`
	Status         flexString      `json:"status"`
	OrderID        flexString      `json:"order_id"`
	TransactionID  flexString      `json:"trans_id"`
	TransDate      flexString      `json:"trans_date"`
	Descriptor     flexString      `json:"descriptor"`
	Amount         flexString      `json:"amount"`
	Currency       flexString      `json:"currency"`
	RedirectURL    flexString      `json:"redirect_url"`
	RedirectParams json.RawMessage `json:"redirect_params"`
	RedirectMethod flexString      `json:"redirect_method"`
	RecurringToken flexString      `json:"recurring_token"`
	ErrorMessage   flexString      `json:"error_message"`
	DeclineReason  flexString      `json:"decline_reason"`
}

// Decode classifies a gateway body into a TransactionResult.
func (d *Decoder) Decode(body []byte) domain.TransactionResult {
	res := d.classify(body)
	if n := len(res.Anomalies); n > 0 {
		metrics.DecodeAnomalies.Add(float64(n))
	}
	return res
}

func (d *Decoder) classify(body []byte) domain.TransactionResult {
	var resp gatewayResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return failure(domain.ErrMalformedResponse, "gateway response is not valid JSON", body)
	}

	hasURL := resp.RedirectURL.Value != ""
	hasParams := len(resp.RedirectParams) > 0 && !bytes.Equal(bytes.TrimSpace(resp.RedirectParams), []byte("null"))

	switch {
	case hasURL && hasParams:
		return d.decodeRedirect(resp, body)

	case hasURL != hasParams:
		return failure(domain.ErrMalformedResponse,
			"gateway redirect is missing redirect_url or redirect_params", body)

	// a declined sale stays declined even when it carries a recurring token
	case resp.Result.Present && !strings.EqualFold(resp.Result.Value, successResult):
		return failure(domain.ErrGatewayFailure, declineReason(resp), body)

	case resp.RecurringToken.Value != "":
		res, ok := d.decodeDetails(domain.ResultRecurringInit, resp, body)
		if !ok {
			return res
		}
		res.RecurringToken = resp.RecurringToken.Value
		return res

	case resp.Result.Present:
		res, _ := d.decodeDetails(domain.ResultSuccess, resp, body)
		return res

	default:
		return failure(domain.ErrMalformedResponse, "gateway response has no result", body)
	}
}

func (d *Decoder) decodeRedirect(resp gatewayResponse, body []byte) domain.TransactionResult {
	params, err := decodeParams(resp.RedirectParams)
	if err != nil {
		return failure(domain.ErrMalformedResponse, "gateway redirect_params is not an object", body)
	}

	kind := domain.ResultRedirect
	if hasTermURL(params) {
		kind = domain.ResultSecure3DS
	}

	res, ok := d.decodeDetails(kind, resp, body)
	if !ok {
		return res
	}

	method := domain.RedirectMethod(strings.ToUpper(strings.TrimSpace(resp.RedirectMethod.Value)))
	switch method {
	case domain.RedirectGET, domain.RedirectPOST:
	case "":
		method = domain.RedirectPOST
		res.Anomalies = append(res.Anomalies, "redirect_method missing; defaulted to POST")
	default:
		res.Anomalies = append(res.Anomalies,
			fmt.Sprintf("redirect_method %q unknown; defaulted to POST", resp.RedirectMethod.Value))
		method = domain.RedirectPOST
	}

	res.Redirect = &domain.Redirect{
		URL:    resp.RedirectURL.Value,
		Method: method,
		Params: params,
	}
	return res
}

// decodeDetails fills the fields shared by every non-failure variant. It
// returns a failure result and false when a required field is missing.
func (d *Decoder) decodeDetails(kind domain.ResultKind, resp gatewayResponse, body []byte) (domain.TransactionResult, bool) {
	var missing []string
	if resp.OrderID.Value == "" {
		missing = append(missing, "order_id")
	}
	if resp.TransactionID.Value == "" {
		missing = append(missing, "trans_id")
	}
	if len(missing) > 0 {
		return failure(domain.ErrMalformedResponse,
			"gateway response is missing "+strings.Join(missing, ", "), body), false
	}

	res := domain.TransactionResult{Kind: kind}

	amount, err := decimal.NewFromString(strings.TrimSpace(resp.Amount.Value))
	if err != nil {
		amount = decimal.Zero
		res.Anomalies = append(res.Anomalies,
			fmt.Sprintf("amount %q is not a number; defaulted to 0", resp.Amount.Value))
	}

	date, ok := ParseGatewayDate(resp.TransDate.Value)
	if !ok {
		date = d.now()
		res.Anomalies = append(res.Anomalies,
			fmt.Sprintf("trans_date %q is not a date; defaulted to now", resp.TransDate.Value))
	}

	res.Details = &domain.TransactionDetails{
		Action:          domain.TransactionType(strings.ToUpper(resp.Action.Value)),
		Result:          resp.Result.Value,
		Status:          resp.Status.Value,
		OrderID:         resp.OrderID.Value,
		TransactionID:   resp.TransactionID.Value,
		TransactionDate: date,
		Amount:          amount,
		Currency:        resp.Currency.Value,
		Descriptor:      resp.Descriptor.Value,
	}
	return res, true
}

// decodeParams keeps string values verbatim and other JSON values as their
// raw text.
func decodeParams(raw json.RawMessage) (map[string]string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}

	params := make(map[string]string, len(fields))
	for key, value := range fields {
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			params[key] = s
			continue
		}
		params[key] = string(bytes.TrimSpace(value))
	}
	return params, nil
}

// hasTermURL reports whether redirect params carry a 3DS term URL
// (TermUrl, term_url, term_url_3ds, ...).
func hasTermURL(params map[string]string) bool {
	for key, value := range params {
		normalized := strings.ToLower(strings.ReplaceAll(key, "_", ""))
		if strings.HasPrefix(normalized, "termurl") && value != "" {
			return true
		}
	}
	return false
}

func declineReason(resp gatewayResponse) string {
	switch {
	case resp.DeclineReason.Value != "":
		return resp.DeclineReason.Value
	case resp.ErrorMessage.Value != "":
		return resp.ErrorMessage.Value
	default:
		return "gateway returned result " + strconv.Quote(resp.Result.Value)
	}
}

func failure(err error, reason string, body []byte) domain.TransactionResult {
	res := domain.NewFailure(err, reason)
	res.Failure.Raw = rawPayload(body)
	return res
}

// rawPayload returns body when it is valid JSON, otherwise body as a JSON string.
func rawPayload(body []byte) json.RawMessage {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if json.Valid(body) {
		return append(json.RawMessage(nil), body...)
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}
