package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// encoder is implemented by every response body.
type encoder interface {
	Encode(e *jx.Encoder)
}

// writeData writes the success envelope {code, success, data, message?}.
func writeData(w http.ResponseWriter, status int, data encoder, message string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("success")
	e.Bool(true)
	e.FieldStart("data")
	if data == nil {
		e.Null()
	} else {
		data.Encode(&e)
	}
	if message != "" {
		e.FieldStart("message")
		e.Str(message)
	}
	e.ObjEnd()
	write(w, status, e.Bytes())
}

// writeError maps err to the error envelope {code, success, error, message}.
// Internal failures are logged and never leak their cause.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := classify(err)
	if ae.Status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(ae.Status)
	e.FieldStart("success")
	e.Bool(false)
	e.FieldStart("error")
	e.Str(ae.Code)
	e.FieldStart("message")
	e.Str(ae.Message)
	e.ObjEnd()
	write(w, ae.Status, e.Bytes())
}

func write(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Raw([]byte(d.StringFixed(2)))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeOptStr(e *jx.Encoder, name, v string) {
	e.FieldStart(name)
	if v == "" {
		e.Null()
		return
	}
	e.Str(v)
}
