package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"sharedcal/core/utils"
)

const maxPayloadBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, fields map[string]string) {
	body := map[string]any{"code": code}
	if len(fields) > 0 {
		body["fields"] = fields
	}
	writeJSON(w, status, map[string]any{"error": body})
}

// decodeJSON rejects unknown fields and bodies over maxPayloadBytes.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decodeBody(w, r, dst, false)
}

// decodeOptionalJSON leaves dst untouched when the body is empty, whatever
// Content-Length the client sent.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decodeBody(w, r, dst, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	if r.Body == nil {
		if optional {
			return true
		}
		writeError(w, http.StatusBadRequest, "request.empty", nil)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxPayloadBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request.tooLarge", nil)
			return false
		}
		if errors.Is(err, io.EOF) {
			if optional {
				return true
			}
			writeError(w, http.StatusBadRequest, "request.empty", nil)
			return false
		}
		writeError(w, http.StatusBadRequest, "request.malformed", nil)
		return false
	}
	return true
}

func validationFields(err error) map[string]string {
	var verr *utils.ValidationError
	if errors.As(err, &verr) {
		return verr.Fields
	}
	return nil
}

func parseIntDefault(val string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil || v < 0 {
		return def
	}
	return v
}
