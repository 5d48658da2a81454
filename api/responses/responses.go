// Package responses writes every HTTP reply as a result envelope.
package responses

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	pkgerrors "github.com/angelmondragon/marketsettle-backend/pkg/errors"
	"github.com/angelmondragon/marketsettle-backend/pkg/logger"
	"github.com/angelmondragon/marketsettle-backend/pkg/result"
)

func WriteSuccess[T any](w http.ResponseWriter, data T) {
	WriteResult(w, http.StatusOK, result.OK(data))
}

func WriteSuccessStatus[T any](w http.ResponseWriter, status int, data T) {
	WriteResult(w, status, result.OK(data))
}

// WriteResult writes res with successStatus on success and the code's mapped
// status otherwise.
func WriteResult[T any](w http.ResponseWriter, successStatus int, res result.Result[T]) {
	writeJSON(w, res.Status(successStatus), res)
}

// Write reports the outcome of an engine call: data on success, the error
// envelope otherwise.
func Write[T any](ctx context.Context, logg *logger.Logger, w http.ResponseWriter, successStatus int, data T, err error) {
	if err != nil {
		WriteError(ctx, logg, w, err)
		return
	}
	WriteSuccessStatus(w, successStatus, data)
}

func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	res := result.FromError[any](err)

	if logg != nil {
		dump := pkgerrors.Dump(err)
		fields := map[string]any{
			"error_code":  string(res.Code),
			"error_chain": dump.Chain,
		}
		if dump.PGCode != "" {
			fields["pg_code"] = dump.PGCode
			fields["pg_constraint"] = dump.PGConstraint
			fields["pg_detail"] = dump.PGDetail
		}
		ctx = logg.WithFields(ctx, fields)

		if res.Status(http.StatusOK) >= http.StatusInternalServerError {
			logg.Error(ctx, "request.error", err)
		} else {
			logg.Warn(ctx, "request.rejected")
		}
	}

	writeJSON(w, res.Status(http.StatusOK), res)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode response","err":"%v"}`, err)
	}
}
