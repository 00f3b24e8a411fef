package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/priority-ride/internal/accounts"
	"github.com/example/priority-ride/internal/models"
	"github.com/example/priority-ride/internal/routes"
	"github.com/example/priority-ride/internal/state"
	"github.com/example/priority-ride/internal/storage"
	"github.com/example/priority-ride/internal/vendor"
)

type accountView struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Default bool   `json:"default"`
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	list := s.accounts.List()
	out := make([]accountView, 0, len(list))
	for _, a := range list {
		out = append(out, accountView{Key: a.Key, Name: a.Name, Default: a.Key == s.accounts.DefaultKey()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.routes.Summaries())
}

type searchRequest struct {
	Account string `json:"account"`
	Route   string `json:"route"`
}

type proposalView struct {
	models.Proposal
	Priority bool `json:"priority"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decode(w, r, &req) {
		return
	}
	a, route, ok := s.resolve(w, req.Account, req.Route)
	if !ok {
		return
	}
	s.state.SetStatus(a.Key, state.Searching, "Searching for rides")
	res := s.client.Search(r.Context(), route.Origin, route.Destination, a.Credentials)
	if res.Failed {
		s.state.SetStatus(a.Key, state.Error, res.Reason)
		writeJSON(w, http.StatusBadGateway, map[string]any{"failed": true, "reason": res.Reason})
		return
	}
	s.settle(a.Key)
	out := make([]proposalView, 0, len(res.Proposals))
	for _, p := range res.Proposals {
		priority := s.classifier.Classify(p).IsPriorityRide
		p.Raw = nil
		out = append(out, proposalView{Proposal: p, Priority: priority})
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": a.Key, "route": route.Name, "proposals": out})
}

type bookRequest struct {
	Account            string `json:"account"`
	Route              string `json:"route"`
	PrescheduledRideID int64  `json:"prescheduled_ride_id"`
	ProposalUUID       string `json:"proposal_uuid"`
	Priority           bool   `json:"priority"`
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ProposalUUID == "" {
		writeError(w, http.StatusBadRequest, "proposal_uuid is required")
		return
	}
	a, route, ok := s.resolve(w, req.Account, req.Route)
	if !ok {
		return
	}
	rideType := models.RideTypeShuttle
	if req.Priority {
		rideType = models.RideTypePriority
	}

	s.state.SetStatus(a.Key, state.Booking, "Booking "+string(rideType))
	res := s.client.Book(r.Context(), vendor.BookRequest{
		PrescheduledRideID: req.PrescheduledRideID,
		ProposalUUID:       req.ProposalUUID,
		Origin:             route.Origin,
		Destination:        route.Destination,
	}, a.Credentials)

	switch res.Outcome {
	case vendor.Success:
		rec := models.BookingRecord{AccountKey: a.Key, RideType: rideType}
		if id, ok := vendor.ConfirmedRideID(res.Payload); ok {
			rec.RideID = &id
		}
		if req.PrescheduledRideID != 0 {
			id := req.PrescheduledRideID
			rec.PrescheduledRideID = &id
		}
		if id := rec.DisplayID(); id != 0 {
			s.state.AddReservation(a.Key, state.Reservation{RideID: id, RideType: rideType, Source: models.SourceIndividual})
		} else {
			s.settle(a.Key)
		}
		s.emit(r, models.EventBooked, a, rec)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "ride_id": rec.DisplayID(), "booking": res.Payload})
	case vendor.Failure:
		s.state.SetStatus(a.Key, state.Error, res.Message)
		writeJSON(w, http.StatusConflict, map[string]any{"success": false, "message": res.Message, "vendor_status": res.StatusCode})
	default:
		s.state.SetStatus(a.Key, state.Error, "vendor unavailable")
		writeJSON(w, http.StatusBadGateway, map[string]any{"success": false, "message": res.Message})
	}
}

type cancelRequest struct {
	Account string `json:"account"`
	RideID  int64  `json:"ride_id"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !decode(w, r, &req) {
		return
	}
	if req.RideID == 0 {
		writeError(w, http.StatusBadRequest, "ride_id is required")
		return
	}
	a, err := s.accounts.Lookup(req.Account)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.state.SetStatus(a.Key, state.Cancelling, "Cancelling ride "+strconv.FormatInt(req.RideID, 10))
	res := s.client.Cancel(r.Context(), req.RideID, a.Credentials)
	if !res.Confirmed {
		s.state.SetStatus(a.Key, state.Error, res.Reason)
		writeJSON(w, http.StatusBadGateway, map[string]any{"success": false, "reason": res.Reason})
		return
	}
	s.state.RemoveReservation(a.Key, req.RideID)
	s.settle(a.Key)
	id := req.RideID
	s.emit(r, models.EventCancelled, a, models.BookingRecord{AccountKey: a.Key, RideID: &id})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "ride_id": req.RideID})
}

type startRunRequest struct {
	Target string `json:"target"`
	Route  string `json:"route"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if !decode(w, r, &req) {
		return
	}
	a, route, ok := s.resolve(w, req.Target, req.Route)
	if !ok {
		return
	}
	o, err := s.runs.start(a.Key, route)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/orchestrations/"+o.RunID())
	writeJSON(w, http.StatusAccepted, map[string]any{"run_id": o.RunID(), "target": a.Key, "route": route.Name})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runs.list())
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if o, ok := s.runs.get(id); ok {
		writeJSON(w, http.StatusOK, o.Status())
		return
	}
	if s.rideLog == nil {
		writeErr(w, storage.ErrNotFound)
		return
	}
	lines, err := s.rideLog.RunLines(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": id, "log": lines})
}

func (s *Server) handleStopRun(w http.ResponseWriter, r *http.Request) {
	o, ok := s.runs.get(mux.Vars(r)["id"])
	if !ok {
		writeErr(w, storage.ErrNotFound)
		return
	}
	o.Stop()
	writeJSON(w, http.StatusAccepted, o.Status())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Snapshot())
}

func (s *Server) handleRides(w http.ResponseWriter, r *http.Request) {
	if s.rideLog == nil {
		writeJSON(w, http.StatusOK, []models.RideLogEntry{})
		return
	}
	q := r.URL.Query()
	f := storage.RideFilter{AccountKey: q.Get("account"), ActiveOnly: q.Get("active") == "true"}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = n
	}
	rides, err := s.rideLog.ListRides(r.Context(), f)
	if err != nil {
		writeErr(w, err)
		return
	}
	if rides == nil {
		rides = []models.RideLogEntry{}
	}
	writeJSON(w, http.StatusOK, rides)
}

// resolve looks up an account (default when empty) and a route (default when
// empty), writing a 404 on failure.
func (s *Server) resolve(w http.ResponseWriter, accountKey, routeName string) (models.Account, models.Route, bool) {
	if accountKey == "" {
		accountKey = s.accounts.DefaultKey()
	}
	a, err := s.accounts.Lookup(accountKey)
	if err != nil {
		writeErr(w, err)
		return models.Account{}, models.Route{}, false
	}
	route, err := s.routes.Lookup(routeName)
	if err != nil {
		writeErr(w, err)
		return models.Account{}, models.Route{}, false
	}
	return a, route, true
}

// settle returns an account to Booked or Idle after an individual operation.
func (s *Server) settle(key string) {
	if st, ok := s.state.Snapshot().Find(key); ok && len(st.Reservations) > 0 {
		s.state.SetStatus(key, state.Booked, "")
		return
	}
	s.state.SetStatus(key, state.Idle, "")
}

func (s *Server) emit(r *http.Request, typ models.BookingEventType, a models.Account, rec models.BookingRecord) {
	ev := models.BookingEvent{Type: typ, Source: models.SourceIndividual, AccountName: a.Name, Record: rec, At: timeNow()}
	if err := s.events.Publish(r.Context(), ev); err != nil {
		s.logger.Warn("booking event publish failed", "type", typ, "account", a.Key, "error", err)
	}
}

var timeNow = time.Now

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, accounts.ErrUnknownAccount), errors.Is(err, routes.ErrUnknownRoute), errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errRunActive):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
