package transportutil

import (
	"context"
	"encoding/json"
	"net/http"
)

func EncodeResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")

	if r := GetHTTPRequestFromContext(ctx); r != nil {
		FinalizeRequest(ctx, http.StatusOK, r)
	}

	if response == nil {
		w.WriteHeader(http.StatusOK)
		return nil
	}

	return json.NewEncoder(w).Encode(response)
}

func EncodeError(ctx context.Context, err error, w http.ResponseWriter) {
	terr := MakeError(err)

	if r := GetHTTPRequestFromContext(ctx); r != nil {
		FinalizeRequest(ctx, terr.HTTPCode, r)
	}

	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(terr.HTTPCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: terr})
}
