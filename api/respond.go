package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/cyverse-de/helpdesk-notifier/model"
)

// errBadRequest marks malformed input.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...interface{}) error {
	return errors.Wrapf(errBadRequest, format, args...)
}

// statusFor maps an error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, model.ErrInvalidToken),
		errors.Is(err, model.ErrVerificationMismatch),
		errors.Is(err, model.ErrCodeExpired),
		errors.Is(err, model.ErrInvalidEmail),
		errors.Is(err, model.ErrInvalidPreferences),
		errors.Is(err, model.ErrUnknownKind):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrChannelDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Error("unable to encode the response body")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		writeJSON(w, status, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return badRequest("invalid request body: %s", err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid %s: %q", name, chi.URLParam(r, name))
	}
	return id, nil
}

func parseActor(kind, id string) (model.Actor, error) {
	actorKind, err := model.ParseActorKind(kind)
	if err != nil {
		return model.Actor{}, badRequest("%s", err)
	}
	actorID, err := strconv.ParseInt(id, 10, 64)
	if err != nil || actorID <= 0 {
		return model.Actor{}, badRequest("invalid actor ID: %q", id)
	}
	return model.Actor{Kind: actorKind, ID: actorID}, nil
}

// pathActor reads the actor from the actorType and actorID path parameters.
func pathActor(r *http.Request) (model.Actor, error) {
	return parseActor(chi.URLParam(r, "actorType"), chi.URLParam(r, "actorID"))
}

// queryViewer reads the viewer from the viewer_type and viewer_id query parameters.
func queryViewer(r *http.Request) (model.Actor, error) {
	q := r.URL.Query()
	return parseActor(q.Get("viewer_type"), q.Get("viewer_id"))
}

func queryUint(r *http.Request, name string) (uint64, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, badRequest("invalid %s: %q", name, value)
	}
	return n, nil
}
