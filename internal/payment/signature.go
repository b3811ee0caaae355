package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"pondflow/internal/model"
	"pondflow/internal/workflow"
)

// SignatureParam carries the HMAC of every other parameter.
const SignatureParam = "signature"

var (
	ErrInvalidSignature = errors.New("invalid payment signature")
	ErrMalformedResult  = errors.New("malformed payment result")
)

// Sign returns the hex HMAC-SHA512 of values, sorted by key and joined as
// key=value pairs. The signature parameter itself is skipped.
func Sign(secret string, values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == SignatureParam {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(values.Get(k)))
	}

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(b.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify authenticates a gateway callback and decodes it.
func Verify(secret string, values url.Values) (workflow.PaymentResult, error) {
	got := values.Get(SignatureParam)
	if got == "" {
		return workflow.PaymentResult{}, ErrInvalidSignature
	}
	want := Sign(secret, values)
	if !hmac.Equal([]byte(strings.ToLower(got)), []byte(want)) {
		return workflow.PaymentResult{}, ErrInvalidSignature
	}
	return decodeResult(values)
}

func decodeResult(values url.Values) (workflow.PaymentResult, error) {
	projectID, err := strconv.ParseInt(values.Get("project_id"), 10, 64)
	if err != nil || projectID <= 0 {
		return workflow.PaymentResult{}, fmt.Errorf("%w: project_id %q", ErrMalformedResult, values.Get("project_id"))
	}
	var amount int64
	if raw := values.Get("amount"); raw != "" {
		amount, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return workflow.PaymentResult{}, fmt.Errorf("%w: amount %q", ErrMalformedResult, raw)
		}
	}
	code := values.Get("response_code")
	if code == "" {
		return workflow.PaymentResult{}, fmt.Errorf("%w: missing response_code", ErrMalformedResult)
	}
	return workflow.PaymentResult{
		ProjectID:    projectID,
		Kind:         model.PaymentKind(strings.ToUpper(values.Get("kind"))),
		ResponseCode: code,
		TxnRef:       values.Get("txn_ref"),
		Amount:       amount,
	}, nil
}

// ResultValues encodes res as a signed callback query, the way the gateway
// sends it.
func ResultValues(secret string, res workflow.PaymentResult) url.Values {
	v := url.Values{}
	v.Set("project_id", strconv.FormatInt(res.ProjectID, 10))
	v.Set("kind", string(res.Kind))
	v.Set("response_code", res.ResponseCode)
	v.Set("txn_ref", res.TxnRef)
	if res.Amount != 0 {
		v.Set("amount", strconv.FormatInt(res.Amount, 10))
	}
	v.Set(SignatureParam, Sign(secret, v))
	return v
}
