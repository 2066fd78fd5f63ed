package server

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gnemet/tablegrid"
	"github.com/gnemet/tablegrid/internal/session"
	"github.com/gorilla/mux"
)

var (
	errNoSuchPage   = errors.New("page not found")
	errNoSuchSearch = errors.New("saved search not found")
	errNoLibrary    = errors.New("saved searches are not configured")
)

func (s *Server) listPages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Pages())
}

func (s *Server) queryPage(w http.ResponseWriter, r *http.Request) {
	def, ok := s.catalog.Get(mux.Vars(r)["page"])
	if !ok {
		s.writeError(w, errNoSuchPage)
		return
	}
	p := tablegrid.ParseParams(r, def)
	if f, ok := s.seeds.(Fetcher); ok && def.Source != nil {
		res, err := f.Fetch(r.Context(), def, p)
		if err == nil {
			writeJSON(w, http.StatusOK, res)
			return
		}
		s.logger.Warn("Paged query failed, using embedded records", "page", def.Name, "error", err)
	}
	writeJSON(w, http.StatusOK, tablegrid.Query(def, def.Seed, p))
}

// loadSeed reads the page's source table when one is configured, falling back to
// the records embedded in the definition.
func (s *Server) loadSeed(r *http.Request, def *tablegrid.Definition) []tablegrid.Record {
	if s.seeds == nil || def.Source == nil {
		return nil
	}
	records, err := s.seeds.Load(r.Context(), def)
	if err != nil {
		s.logger.Warn("Seed source unavailable, using embedded records", "page", def.Name, "error", err)
		return nil
	}
	return records
}

func (s *Server) openSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Page string `json:"page"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	def, ok := s.catalog.Get(body.Page)
	if !ok {
		s.writeError(w, errNoSuchPage)
		return
	}

	sess, err := s.pool.Open(def, s.loadSeed(r, def))
	if err != nil {
		s.writeError(w, err)
		return
	}
	gridSessions.Set(float64(s.pool.Count()))
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":     sess.ID,
		"page":   sess.Page,
		"result": sess.Grid.Result(),
	})
}

func (s *Server) closeSession(w http.ResponseWriter, r *http.Request) {
	sid := mux.Vars(r)["sid"]
	if _, err := s.pool.Get(sid); err != nil {
		s.writeError(w, err)
		return
	}
	s.pool.Remove(sid)
	gridSessions.Set(float64(s.pool.Count()))
	w.WriteHeader(http.StatusNoContent)
}

// withGrid runs fn on the session's grid and answers with the resulting view.
func (s *Server) withGrid(w http.ResponseWriter, r *http.Request, fn func(*session.Session) error) {
	var res *tablegrid.TableResult
	err := s.pool.Do(mux.Vars(r)["sid"], func(sess *session.Session) error {
		if err := fn(sess); err != nil {
			return err
		}
		res = sess.Grid.Result()
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// mutate runs fn through the pool's delayed task and answers with extra fields
// plus the resulting view.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, status int, fn func(*session.Session) (map[string]interface{}, error)) {
	var out map[string]interface{}
	task := s.pool.Submit(mux.Vars(r)["sid"], func(sess *session.Session) error {
		extra, err := fn(sess)
		if err != nil {
			return err
		}
		out = extra
		out["result"] = sess.Grid.Result()
		return nil
	})
	if _, err := task.Wait(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, status, out)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	s.withGrid(w, r, func(*session.Session) error { return nil })
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Term string `json:"term"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	s.withGrid(w, r, func(sess *session.Session) error {
		sess.Grid.ApplyTextFilter(body.Term)
		return nil
	})
}

func (s *Server) filter(w http.ResponseWriter, r *http.Request) {
	var c tablegrid.FilterCriteria
	if err := decode(r, &c); err != nil {
		s.writeError(w, err)
		return
	}
	s.withGrid(w, r, func(sess *session.Session) error {
		return sess.Grid.ApplyStructuredFilter(c)
	})
}

func (s *Server) quickFilter(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	s.withGrid(w, r, func(sess *session.Session) error {
		if err := sess.Grid.ApplyQuickFilter(name); err != nil {
			return err
		}
		sess.ActiveSection = name
		return nil
	})
}

func (s *Server) clear(w http.ResponseWriter, r *http.Request) {
	s.withGrid(w, r, func(sess *session.Session) error {
		sess.Grid.ClearFilters()
		sess.ActiveSection = ""
		return nil
	})
}

func (s *Server) sortBy(w http.ResponseWriter, r *http.Request) {
	column := mux.Vars(r)["column"]
	s.withGrid(w, r, func(sess *session.Session) error {
		if !sess.Grid.SortBy(column) {
			return &tablegrid.ValidationError{Fields: map[string]string{"column": fmt.Sprintf("%s is not sortable", column)}}
		}
		return nil
	})
}

func pathInt(r *http.Request, key string) (int, error) {
	n, err := strconv.Atoi(mux.Vars(r)[key])
	if err != nil {
		return 0, &tablegrid.ValidationError{Fields: map[string]string{key: "must be an integer"}}
	}
	return n, nil
}

// goToPage ignores pages out of range; the result shows the page kept.
func (s *Server) goToPage(w http.ResponseWriter, r *http.Request) {
	n, err := pathInt(r, "n")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.withGrid(w, r, func(sess *session.Session) error {
		sess.Grid.GoToPage(n)
		return nil
	})
}

func (s *Server) setPageSize(w http.ResponseWriter, r *http.Request) {
	n, err := pathInt(r, "n")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.withGrid(w, r, func(sess *session.Session) error {
		return sess.Grid.SetPageSize(n)
	})
}

type selectionBody struct {
	IDs      []int `json:"ids"`
	Selected bool  `json:"selected"`
}

func (s *Server) toggleSelection(w http.ResponseWriter, r *http.Request) {
	var body selectionBody
	if err := decode(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	s.withGrid(w, r, func(sess *session.Session) error {
		for _, id := range body.IDs {
			sess.Grid.ToggleSelection(id, body.Selected)
		}
		return nil
	})
}

func (s *Server) selectAll(w http.ResponseWriter, r *http.Request) {
	var body selectionBody
	if err := decode(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	s.withGrid(w, r, func(sess *session.Session) error {
		sess.Grid.SelectAllVisible(body.Selected)
		return nil
	})
}

func (s *Server) breakdown(w http.ResponseWriter, r *http.Request) {
	field := mux.Vars(r)["field"]
	var buckets []tablegrid.Bucket
	err := s.pool.Do(mux.Vars(r)["sid"], func(sess *session.Session) error {
		buckets = sess.Grid.Breakdown(field)
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buckets)
}

func (s *Server) createRecord(w http.ResponseWriter, r *http.Request) {
	var fields tablegrid.Record
	if err := decode(r, &fields); err != nil {
		s.writeError(w, err)
		return
	}
	s.mutate(w, r, http.StatusCreated, func(sess *session.Session) (map[string]interface{}, error) {
		id, err := sess.Grid.Create(fields)
		if err != nil {
			return nil, err
		}
		gridMutations.WithLabelValues(sess.Page, "create").Inc()
		return map[string]interface{}{"id": id}, nil
	})
}

func (s *Server) updateRecord(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var fields tablegrid.Record
	if err := decode(r, &fields); err != nil {
		s.writeError(w, err)
		return
	}
	s.mutate(w, r, http.StatusOK, func(sess *session.Session) (map[string]interface{}, error) {
		ok, err := sess.Grid.Update(id, fields)
		if err != nil {
			return nil, err
		}
		if ok {
			gridMutations.WithLabelValues(sess.Page, "update").Inc()
		}
		return map[string]interface{}{"updated": ok}, nil
	})
}

func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.mutate(w, r, http.StatusOK, func(sess *session.Session) (map[string]interface{}, error) {
		n, err := sess.Grid.DeleteMany([]int{id})
		if err != nil {
			return nil, err
		}
		gridMutations.WithLabelValues(sess.Page, "delete").Add(float64(n))
		return map[string]interface{}{"deleted": n}, nil
	})
}

func (s *Server) deleteSelected(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, http.StatusOK, func(sess *session.Session) (map[string]interface{}, error) {
		n, err := sess.Grid.DeleteSelected()
		if err != nil {
			return nil, err
		}
		gridMutations.WithLabelValues(sess.Page, "delete").Add(float64(n))
		return map[string]interface{}{"deleted": n}, nil
	})
}

func (s *Server) language(r *http.Request) string {
	if lang := r.URL.Query().Get("lang"); lang != "" {
		return lang
	}
	return s.lang
}

func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request) {
	var csv, page string
	err := s.pool.Do(mux.Vars(r)["sid"], func(sess *session.Session) error {
		page = sess.Page
		csv = sess.Grid.ExportCSV(sess.Grid.Definition().ExportColumns(s.language(r)))
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, page))
	w.Write([]byte(csv))
}

func (s *Server) exportXLSX(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	var page string
	err := s.pool.Do(mux.Vars(r)["sid"], func(sess *session.Session) error {
		page = sess.Page
		return sess.Grid.ExportXLSX(&buf, sess.Grid.Definition().ExportColumns(s.language(r)))
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, page))
	w.Write(buf.Bytes())
}

func library(sess *session.Session) (*tablegrid.SearchLibrary, error) {
	if sess.Searches == nil {
		return nil, errNoLibrary
	}
	return sess.Searches, nil
}

func (s *Server) listSearches(w http.ResponseWriter, r *http.Request) {
	var list []tablegrid.SavedSearch
	err := s.pool.Do(mux.Vars(r)["sid"], func(sess *session.Session) error {
		lib, err := library(sess)
		if err != nil {
			return err
		}
		list, err = lib.List()
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// saveSearch stores the given criteria, or the session's current filter when
// the body has none.
func (s *Server) saveSearch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string                    `json:"name"`
		Criteria *tablegrid.FilterCriteria `json:"criteria"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	var saved tablegrid.SavedSearch
	err := s.pool.Do(mux.Vars(r)["sid"], func(sess *session.Session) error {
		lib, err := library(sess)
		if err != nil {
			return err
		}
		c := sess.Grid.Criteria()
		if body.Criteria != nil {
			c = *body.Criteria
		}
		saved, err = lib.Save(body.Name, c)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) applySearch(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	s.withGrid(w, r, func(sess *session.Session) error {
		lib, err := library(sess)
		if err != nil {
			return err
		}
		saved, ok, err := lib.Load(name)
		if err != nil {
			return err
		}
		if !ok {
			return errNoSuchSearch
		}
		return sess.Grid.ApplySaved(saved)
	})
}

func (s *Server) deleteSearch(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	err := s.pool.Do(mux.Vars(r)["sid"], func(sess *session.Session) error {
		lib, err := library(sess)
		if err != nil {
			return err
		}
		ok, err := lib.Delete(name)
		if err != nil {
			return err
		}
		if !ok {
			return errNoSuchSearch
		}
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
