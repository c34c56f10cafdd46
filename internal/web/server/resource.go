package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fennec-api/fennec/internal/orm/query"
)

// Resource mounts the RESTful routes for a registered entity type under its
// table name:
//
//	GET    {prefix}/{table}               list (resolver-driven)
//	GET    {prefix}/{table}/{id}          show
//	POST   {prefix}/{table}               create (nested payload)
//	PUT    {prefix}/{table}/{id}          update (nested payload)
//	DELETE {prefix}/{table}/{id}          delete
//	POST   {prefix}/{table}/{id}/restore  restore a soft-deleted row
func (s *Server) Resource(name string) {
	t, err := s.orm.Registry().MustLookup(name)
	if err != nil {
		panic(err)
	}

	s.router.Route(s.prefix+"/"+t.Table, func(r chi.Router) {
		r.Get("/", s.list(name))
		r.Post("/", s.create(name))
		r.Get("/{id}", s.show(name))
		r.Put("/{id}", s.update(name))
		r.Delete("/{id}", s.remove(name))
		r.Post("/{id}/restore", s.restore(name))
	})
}

func (s *Server) list(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, rerr := s.orm.MustModel(name).Resolve(r.Context(), parseListRequest(r))
		if rerr != nil {
			s.logger.Error("list failed", zap.String("resource", name), zap.Error(rerr))
			respondError(w, rerr)
			return
		}
		respondResult(w, res)
	}
}

func (s *Server) show(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := s.orm.MustModel(name).Expand(splitCSV(r.URL.Query().Get("expand"))...)
		e, err := q.FindOrNotFound(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			s.fail(w, name, "show", err)
			return
		}
		respond(w, http.StatusOK, "success", e.ToExternal(), nil)
	}
}

func (s *Server) create(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, ok := decodePayload(w, r)
		if !ok {
			return
		}

		e, err := s.orm.NewEntity(name)
		if err != nil {
			s.fail(w, name, "create", err)
			return
		}
		if err := e.Pump(r.Context(), payload); err != nil {
			s.fail(w, name, "create", err)
			return
		}
		respond(w, http.StatusCreated, "created", e.ToExternal(), nil)
	}
}

func (s *Server) update(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, ok := decodePayload(w, r)
		if !ok {
			return
		}

		e, err := s.orm.MustModel(name).FindOrNotFound(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			s.fail(w, name, "update", err)
			return
		}
		if err := e.Pump(r.Context(), payload); err != nil {
			s.fail(w, name, "update", err)
			return
		}
		respond(w, http.StatusOK, "updated", e.ToExternal(), nil)
	}
}

func (s *Server) remove(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := s.orm.MustModel(name).FindOrNotFound(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			s.fail(w, name, "delete", err)
			return
		}
		snapshot, err := e.Delete(r.Context())
		if err != nil {
			s.fail(w, name, "delete", err)
			return
		}
		respond(w, http.StatusOK, "deleted", snapshot, nil)
	}
}

func (s *Server) restore(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := s.orm.MustModel(name).OnlyTrashed().FindOrNotFound(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			s.fail(w, name, "restore", err)
			return
		}
		if err := e.Restore(r.Context()); err != nil {
			s.fail(w, name, "restore", err)
			return
		}
		respond(w, http.StatusOK, "restored", e.ToExternal(), nil)
	}
}

func (s *Server) fail(w http.ResponseWriter, resource, op string, err error) {
	var rerr *query.ResponseError
	switch e := err.(type) {
	case *query.ResponseError:
		rerr = e
	default:
		rerr = query.WrapResponseError(err)
	}
	if rerr.Status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.String("resource", resource), zap.Error(err))
	}
	respondError(w, rerr)
}

func decodePayload(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respond(w, http.StatusBadRequest, "invalid request body", []map[string]any{}, nil)
		return nil, false
	}
	return payload, true
}
