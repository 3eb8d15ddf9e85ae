/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/acronis/go-admission/log"
)

// ContentTypeAppJSON represents MIME media type for JSON.
const ContentTypeAppJSON = "application/json"

// Detail messages.
// We are using "var" here because some services may want to use different messages.
var (
	DetailInternal         = "Internal error."
	DetailNotFound         = "Not found."
	DetailMethodNotAllowed = "Method not allowed."
	DetailTooManyRequests  = "Rate limit exceeded. Please try again later."
)

// DetailResponse is a body of an error response.
type DetailResponse struct {
	Detail string `json:"detail"`
}

// Does JSON marshaling with disabled HTML escaping
func jsonMarshal(v interface{}) ([]byte, error) {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return buffer.Bytes()[:buffer.Len()-1], nil
}

// RespondJSON sends response with 200 HTTP status code, does JSON marshaling of data and writes result in response's body.
func RespondJSON(rw http.ResponseWriter, respData interface{}, logger log.FieldLogger) {
	RespondCodeAndJSON(rw, http.StatusOK, respData, logger)
}

// RespondCodeAndJSON sends a response with the passed status code and sets the "Content-Type"
// to "application/json" if it's not already set. It performs JSON marshaling of the data and
// writes the result to the response's body.
func RespondCodeAndJSON(rw http.ResponseWriter, statusCode int, respData interface{}, logger log.FieldLogger) {
	if respData == nil {
		rw.WriteHeader(statusCode)
		return
	}

	if rw.Header().Get("Content-Type") == "" {
		rw.Header().Set("Content-Type", ContentTypeAppJSON)
	}

	respJSON, err := jsonMarshal(respData)
	if err != nil {
		if logger != nil {
			logger.Error("error while marshaling json for response body", log.Error(err))
		}
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	rw.WriteHeader(statusCode)
	if _, err = rw.Write(respJSON); err != nil && logger != nil {
		logger.Error("error while writing response body", log.Error(err))
	}
}

// RespondDetail sends an error response with the status code and {"detail": "..."} body.
func RespondDetail(rw http.ResponseWriter, statusCode int, detail string, logger log.FieldLogger) {
	if metricsResponseErrors != nil {
		metricsResponseErrors.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	}
	RespondCodeAndJSON(rw, statusCode, DetailResponse{Detail: detail}, logger)
}

// RespondInternalError sends response with 500 HTTP status code and internal error detail in body.
func RespondInternalError(rw http.ResponseWriter, logger log.FieldLogger) {
	RespondDetail(rw, http.StatusInternalServerError, DetailInternal, logger)
}

// RespondTooManyRequests sends response with 429 HTTP status code and rate-limit detail in body.
func RespondTooManyRequests(rw http.ResponseWriter, logger log.FieldLogger) {
	RespondDetail(rw, http.StatusTooManyRequests, DetailTooManyRequests, logger)
}
